// Package rawio reads raw partition files (CSV, optionally bzip2
// compressed) into tables, inferring a numeric or text kind per column the
// same way for every partition.
package rawio

import (
	"bufio"
	"compress/bzip2"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/pool"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// DefaultNullValues are the cell contents read as missing.
var DefaultNullValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null", `\N`,
}

const (
	defaultInternLimit = 1 << 16
	cancelCheckEvery   = 1 << 14
)

// Options controls how raw files are parsed
type Options struct {
	// ColumnNames names the columns of a headerless file. When empty the
	// first record is the header.
	ColumnNames []string
	// Encoding of the raw bytes; nil means ISO-8859-1.
	Encoding encoding.Encoding
	// NullValues replaces DefaultNullValues when non-nil.
	NullValues []string
	// InternLimit bounds the distinct strings interned per read.
	InternLimit int
}

// Reader parses raw partition files. It is safe for concurrent use; each
// call owns its own parsing state.
type Reader struct {
	opts   Options
	nulls  map[string]struct{}
	logger *zap.Logger
}

// NewReader creates a reader
func NewReader(opts Options, logger *zap.Logger) *Reader {
	if opts.Encoding == nil {
		opts.Encoding = charmap.ISO8859_1
	}
	if opts.NullValues == nil {
		opts.NullValues = DefaultNullValues
	}
	if opts.InternLimit == 0 {
		opts.InternLimit = defaultInternLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nulls := make(map[string]struct{}, len(opts.NullValues))
	for _, v := range opts.NullValues {
		nulls[v] = struct{}{}
	}
	return &Reader{opts: opts, nulls: nulls, logger: logger}
}

// ReadFile reads one raw file; names ending in .bz2 are decompressed.
func (r *Reader) ReadFile(ctx context.Context, path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "raw file %s not found", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "open raw file").WithDetail("path", path)
	}
	defer f.Close()

	var src io.Reader = bufio.NewReaderSize(f, 1<<20)
	if strings.HasSuffix(path, ".bz2") {
		src = bzip2.NewReader(src)
	}

	t, err := r.Read(ctx, src)
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			e.WithDetail("path", path)
		}
		return nil, err
	}
	r.logger.Debug("raw file read",
		zap.String("path", path),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()))
	return t, nil
}

// Read parses CSV from src
func (r *Reader) Read(ctx context.Context, src io.Reader) (*table.Table, error) {
	cr := csv.NewReader(transform.NewReader(src, r.opts.Encoding.NewDecoder()))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	names := r.opts.ColumnNames
	if len(names) == 0 {
		header, err := cr.Read()
		if err == io.EOF {
			return nil, errors.New(errors.ErrorTypeData, "raw file is empty")
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "read header")
		}
		names = headerNames(header)
	}

	interner := pool.NewStringInternPool(r.opts.InternLimit)
	cols := make([]rawColumn, len(names))
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "parse csv")
		}
		line++
		if line%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(record) > len(names) {
			return nil, errors.Newf(errors.ErrorTypeData,
				"record %d has %d fields, header has %d", line, len(record), len(names))
		}
		for i := range cols {
			if i >= len(record) {
				cols[i].appendNull()
				continue
			}
			cell := record[i]
			if _, null := r.nulls[cell]; null {
				cols[i].appendNull()
				continue
			}
			cols[i].append(interner.Intern(cell))
		}
	}

	t := table.New()
	for i, name := range names {
		if err := t.Add(name, cols[i].infer()); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "assemble table")
		}
	}
	return t, nil
}

// headerNames fills blank names and disambiguates duplicates with a
// numeric suffix.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

type rawColumn struct {
	values []string
	valid  []bool
}

func (c *rawColumn) append(v string) {
	c.values = append(c.values, v)
	c.valid = append(c.valid, true)
}

func (c *rawColumn) appendNull() {
	c.values = append(c.values, "")
	c.valid = append(c.valid, false)
}

// infer picks the column kind: integers when every value is an integer and
// none is missing, floats when values are numeric otherwise (NaN marks the
// gaps), text for anything else. A column with no values at all is float.
func (c *rawColumn) infer() table.Column {
	allInt := true
	hasNull := false
	for i, v := range c.values {
		if !c.valid[i] {
			hasNull = true
			continue
		}
		if allInt {
			if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				continue
			}
			allInt = false
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return table.NewTextColumn(c.values, c.valid)
		}
	}

	if allInt && !hasNull && len(c.values) > 0 {
		ints := make([]int64, len(c.values))
		for i, v := range c.values {
			ints[i], _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
		return table.NewIntColumn(ints)
	}

	floats := make([]float64, len(c.values))
	for i, v := range c.values {
		if !c.valid[i] {
			floats[i] = math.NaN()
			continue
		}
		floats[i], _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return table.NewFloatColumn(floats)
}
