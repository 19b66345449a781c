// Package acquire brings the raw dataset directory into a usable state:
// downloading the archive when the directory is missing or empty, and
// extracting it when the archive is all there is.
package acquire

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/pkg/errors"
)

// State is what Inspect found in a datasets directory
type State int

const (
	// StateMissing means the directory does not exist
	StateMissing State = iota
	// StateEmpty means the directory exists but holds nothing
	StateEmpty
	// StateArchive means the directory holds exactly one zip archive
	StateArchive
	// StateReady means anything else; raw files or artifacts are present
	StateReady
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateEmpty:
		return "empty"
	case StateArchive:
		return "archive"
	default:
		return "ready"
	}
}

// Downloader places the dataset archive into dir
type Downloader interface {
	Download(ctx context.Context, dir string) error
}

// DownloaderFunc adapts a function to Downloader
type DownloaderFunc func(ctx context.Context, dir string) error

// Download implements Downloader
func (f DownloaderFunc) Download(ctx context.Context, dir string) error { return f(ctx, dir) }

// Inspect classifies dir. For StateArchive the archive path is returned.
func Inspect(dir string) (State, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return StateMissing, "", nil
		}
		return StateMissing, "", errors.Wrap(err, errors.ErrorTypeFile, "read datasets directory").WithDetail("dir", dir)
	}
	switch {
	case len(entries) == 0:
		return StateEmpty, "", nil
	case len(entries) == 1 && entries[0].Type().IsRegular() &&
		strings.EqualFold(filepath.Ext(entries[0].Name()), ".zip"):
		return StateArchive, filepath.Join(dir, entries[0].Name()), nil
	default:
		return StateReady, "", nil
	}
}

// Preparer drives a datasets directory to StateReady
type Preparer struct {
	downloader Downloader
	logger     *zap.Logger
}

// NewPreparer creates a preparer. A nil downloader makes a missing or empty
// directory an error.
func NewPreparer(d Downloader, logger *zap.Logger) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{downloader: d, logger: logger}
}

// Prepare downloads and extracts as needed and returns the state found
// before any work was done. The archive is left in place after extraction.
func (p *Preparer) Prepare(ctx context.Context, dir string) (State, error) {
	initial, archive, err := Inspect(dir)
	if err != nil {
		return initial, err
	}

	state := initial
	if state == StateMissing || state == StateEmpty {
		if p.downloader == nil {
			return initial, errors.Newf(errors.ErrorTypeConfig,
				"datasets directory %s is %s and no downloader is configured", dir, state)
		}
		p.logger.Warn("dataset not found, downloading; this will take a while", zap.String("dir", dir))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return initial, errors.Wrap(err, errors.ErrorTypeFile, "create datasets directory").WithDetail("dir", dir)
		}
		if err := p.downloader.Download(ctx, dir); err != nil {
			return initial, errors.Wrap(err, errors.ErrorTypeConnection, "download dataset")
		}
		if state, archive, err = Inspect(dir); err != nil {
			return initial, err
		}
	}

	if state == StateArchive {
		p.logger.Info("extracting data", zap.String("archive", archive))
		n, err := Extract(ctx, archive, dir)
		if err != nil {
			return initial, err
		}
		p.logger.Info("extracted", zap.String("archive", archive), zap.Int("files", n))
	}
	return initial, nil
}
