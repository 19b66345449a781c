package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/ajitpratap0/flightprep/pkg/errors"
)

// Extract unpacks the zip archive at src into dir and returns the number of
// files written. Entries that would land outside dir are rejected before
// anything is written.
func Extract(ctx context.Context, src, dir string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeData, "open archive").WithDetail("archive", src)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "resolve datasets directory")
	}

	targets := make([]string, len(zr.File))
	for i, f := range zr.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeValidation, "unsafe archive entry").WithDetail("archive", src)
		}
		targets[i] = target
	}

	files := 0
	for i, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targets[i], 0o755); err != nil {
				return files, errors.Wrap(err, errors.ErrorTypeFile, "create directory").WithDetail("entry", f.Name)
			}
			continue
		}
		if err := extractFile(f, targets[i]); err != nil {
			return files, errors.Wrap(err, errors.ErrorTypeFile, "extract entry").WithDetail("entry", f.Name)
		}
		files++
	}
	return files, nil
}

func entryPath(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", fmt.Errorf("entry %q has an absolute or malformed path", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the target directory", name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
