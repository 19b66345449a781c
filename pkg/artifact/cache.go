// Package artifact stores optimized partitions as self-describing columnar
// files. Writes are atomic: a reader observes either no artifact or a whole
// one. Artifacts are never modified in place; writing an existing id
// supersedes the old file wholesale.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/pkg/compression"
	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// Cache maps partition ids to artifact files in one directory
type Cache struct {
	dir    string
	comp   compression.Compressor
	mem    memory.Allocator
	logger *zap.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithCompressor sets the block codec used for new artifacts
func WithCompressor(c compression.Compressor) Option {
	return func(cache *Cache) { cache.comp = c }
}

// WithAllocator sets the Arrow allocator used for encoding and decoding
func WithAllocator(mem memory.Allocator) Option {
	return func(cache *Cache) { cache.mem = mem }
}

// WithLogger sets the cache logger
func WithLogger(logger *zap.Logger) Option {
	return func(cache *Cache) { cache.logger = logger }
}

// NewCache opens (creating if needed) an artifact directory
func NewCache(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "create artifact directory").
			WithDetail("dir", dir)
	}

	c := &Cache{
		dir:    dir,
		mem:    memory.NewGoAllocator(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.comp == nil {
		comp, err := compression.NewCompressor(compression.DefaultConfig())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "create default compressor")
		}
		c.comp = comp
	}
	return c, nil
}

// Dir returns the artifact directory
func (c *Cache) Dir() string { return c.dir }

// ValidateID rejects ids that are empty, hidden, or not a single path element.
func ValidateID(id string) error {
	switch {
	case id == "":
		return errors.New(errors.ErrorTypeValidation, "partition id is empty")
	case strings.HasPrefix(id, "."):
		return errors.Newf(errors.ErrorTypeValidation, "partition id %q starts with a dot", id)
	case strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, os.PathSeparator):
		return errors.Newf(errors.ErrorTypeValidation, "partition id %q contains a path separator", id)
	}
	return nil
}

// Path returns the artifact path for id
func (c *Cache) Path(id string) string {
	return filepath.Join(c.dir, id+Extension)
}

// Exists reports whether an artifact for id is present
func (c *Cache) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	info, err := os.Stat(c.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// List returns the ids of every artifact, sorted
func (c *Cache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "list artifacts").WithDetail("dir", c.dir)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, Extension))
	}
	slices.Sort(ids)
	return ids, nil
}

// Write stores t as the artifact for id. The file is assembled under a
// unique temporary name in the same directory, synced, then renamed into
// place.
func (c *Cache) Write(id string, t *table.Table) (err error) {
	if err := ValidateID(id); err != nil {
		return err
	}

	tmpPath := filepath.Join(c.dir, fmt.Sprintf(".%s-%s.tmp", id, uuid.NewString()))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "create temporary artifact").WithDetail("partition", id)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	size, err := c.writeTo(f, id, t)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "encode artifact").WithDetail("partition", id)
	}
	if err = f.Sync(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "sync artifact").WithDetail("partition", id)
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "close artifact").WithDetail("partition", id)
	}
	if err = os.Rename(tmpPath, c.Path(id)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "publish artifact").WithDetail("partition", id)
	}
	syncDir(c.dir)

	c.logger.Debug("artifact written",
		zap.String("partition", id),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()),
		zap.Int64("bytes", size))
	return nil
}

func (c *Cache) writeTo(w io.Writer, id string, t *table.Table) (int64, error) {
	offset := int64(0)
	write := func(p []byte) error {
		n, err := w.Write(p)
		offset += int64(n)
		return err
	}

	if err := write([]byte(magic)); err != nil {
		return offset, err
	}

	footer := &Footer{Version: formatVersion, Partition: id, Rows: t.NumRows()}
	for _, name := range t.Names() {
		col, _ := t.Column(name)
		raw, err := encodeColumn(c.mem, name, col)
		if err != nil {
			return offset, fmt.Errorf("column %q: %w", name, err)
		}
		block, err := c.comp.Compress(raw)
		if err != nil {
			return offset, fmt.Errorf("compress column %q: %w", name, err)
		}

		info := ColumnInfo{
			Name:      name,
			Kind:      col.Kind().String(),
			Offset:    offset,
			Length:    int64(len(block)),
			RawLength: int64(len(raw)),
			Rows:      col.Len(),
			Codec:     string(c.comp.Algorithm()),
		}
		switch cc := col.(type) {
		case *table.IntColumn:
			info.Width = cc.Width().String()
		case *table.FloatColumn:
			info.Width = cc.Width().String()
		case *table.CategoricalColumn:
			info.Categories = len(cc.Categories())
		}
		footer.Columns = append(footer.Columns, info)

		if err := write(block); err != nil {
			return offset, err
		}
	}

	cw := &countingWriter{w: w}
	if err := writeTrailer(cw, footer); err != nil {
		return offset, err
	}
	return offset + cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// syncDir makes a rename durable on filesystems that need it. Failure is
// ignored: not every platform supports syncing a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Describe returns the footer of the artifact for id without decoding data
func (c *Cache) Describe(id string) (*Footer, error) {
	f, size, err := c.open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	footer, err := readFooter(f, size)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "corrupt artifact").WithDetail("partition", id)
	}
	return footer, nil
}

// Read loads every column of the artifact for id
func (c *Cache) Read(id string) (*table.Table, error) {
	return c.ReadColumns(id, nil)
}

// ReadColumns loads only the named columns, in the requested order; nil
// means all columns in stored order. Blocks of other columns are not read.
func (c *Cache) ReadColumns(id string, columns []string) (*table.Table, error) {
	f, size, err := c.open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	footer, err := readFooter(f, size)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "corrupt artifact").WithDetail("partition", id)
	}

	selected := footer.Columns
	if columns != nil {
		selected = make([]ColumnInfo, 0, len(columns))
		for _, name := range columns {
			info, ok := footer.Column(name)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeNotFound, "column %q not in artifact", name).
					WithDetail("partition", id)
			}
			selected = append(selected, info)
		}
	}

	out := table.New()
	for _, info := range selected {
		col, err := c.readColumn(f, info)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "decode column").
				WithDetail("partition", id).
				WithDetail("column", info.Name)
		}
		if err := out.Add(info.Name, col); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "assemble table").WithDetail("partition", id)
		}
	}
	return out, nil
}

func (c *Cache) open(id string) (*os.File, int64, error) {
	if err := ValidateID(id); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(c.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errors.Newf(errors.ErrorTypeNotFound, "no artifact for partition %q", id)
		}
		return nil, 0, errors.Wrap(err, errors.ErrorTypeFile, "open artifact").WithDetail("partition", id)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, errors.Wrap(err, errors.ErrorTypeFile, "stat artifact").WithDetail("partition", id)
	}
	return f, info.Size(), nil
}

func (c *Cache) readColumn(r io.ReaderAt, info ColumnInfo) (table.Column, error) {
	block := make([]byte, info.Length)
	if _, err := r.ReadAt(block, info.Offset); err != nil {
		return nil, fmt.Errorf("read block: %w", err)
	}

	algo, err := compression.ParseAlgorithm(info.Codec)
	if err != nil {
		return nil, err
	}
	codec, err := compression.ForDecoding(algo)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(block)
	if err != nil {
		return nil, fmt.Errorf("decompress block: %w", err)
	}
	if int64(len(raw)) != info.RawLength {
		return nil, fmt.Errorf("block decompressed to %d bytes, footer says %d", len(raw), info.RawLength)
	}
	return decodeColumn(c.mem, raw, info)
}
