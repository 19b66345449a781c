// Package merge concatenates optimized partitions into one table while
// reconciling their independently chosen categorical encodings.
package merge

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/metrics"
	"github.com/ajitpratap0/flightprep/pkg/optimize"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// ErrNoTables is returned when Concatenate is given nothing to merge.
var ErrNoTables = errors.New(errors.ErrorTypeValidation, "no tables to concatenate")

// Concatenator merges tables under a shared threshold policy
type Concatenator struct {
	threshold optimize.Threshold
	logger    *zap.Logger
}

// Option configures a Concatenator
type Option func(*Concatenator)

// WithLogger sets the logger used for reconciliation decisions
func WithLogger(logger *zap.Logger) Option {
	return func(c *Concatenator) { c.logger = logger }
}

// New creates a Concatenator
func New(threshold optimize.Threshold, opts ...Option) *Concatenator {
	c := &Concatenator{threshold: threshold, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Concatenate stacks tables row-wise in the given order. Every column that
// is categorical in the last table is re-evaluated against the combined row
// count: if the union of categories (extended with values from tables that
// held the column as text) stays within the threshold, all rows share one
// encoding, otherwise the column falls back to text. Inputs are not modified.
func (c *Concatenator) Concatenate(tables []*table.Table) (*table.Table, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	for i, t := range tables {
		if t == nil {
			return nil, errors.Newf(errors.ErrorTypeValidation, "table %d is nil", i)
		}
	}

	rows := make([]int, len(tables))
	targetSize := 0
	for i, t := range tables {
		rows[i] = t.NumRows()
		targetSize += rows[i]
	}

	last := tables[len(tables)-1]
	out := table.New()
	for _, name := range columnOrder(tables) {
		parts := make([]table.Column, len(tables))
		for i, t := range tables {
			if col, ok := t.Column(name); ok {
				parts[i] = col
			}
		}

		var merged table.Column
		if col, ok := last.Column(name); ok && col.Kind() == table.KindCategorical {
			merged = c.reconcile(name, parts, rows, targetSize)
		}
		if merged == nil {
			var err error
			merged, err = concatColumn(parts, rows)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeInternal, "concatenate column").
					WithDetail("column", name)
			}
		}

		if err := out.Add(name, merged); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "assemble merged table")
		}
	}
	return out, nil
}

// reconcile returns a categorical column under one shared category set, a
// text column when the shared set would be too dense, or nil when the
// initial union already exceeds the threshold and encodings are left alone.
func (c *Concatenator) reconcile(name string, parts []table.Column, rows []int, targetSize int) table.Column {
	union := newCategorySet()
	for _, p := range parts {
		if cat, ok := p.(*table.CategoricalColumn); ok {
			union.addAll(cat.Categories())
		}
	}

	if !c.threshold.Allows(union.len(), targetSize) {
		c.logger.Debug("categorical union over threshold, keeping encodings",
			zap.String("column", name),
			zap.Int("categories", union.len()),
			zap.Int("rows", targetSize))
		return nil
	}

	for _, p := range parts {
		switch col := p.(type) {
		case nil, *table.CategoricalColumn:
		case *table.TextColumn:
			for i := 0; i < col.Len(); i++ {
				if v, ok := col.Value(i); ok {
					union.add(v)
				}
			}
		default:
			if !allNull(col) {
				c.logger.Debug("non-text values in categorical column, keeping encodings",
					zap.String("column", name),
					zap.Stringer("kind", col.Kind()))
				return nil
			}
		}
	}

	if !c.threshold.Allows(union.len(), targetSize) {
		c.logger.Debug("extended categories over threshold, storing as text",
			zap.String("column", name),
			zap.Int("categories", union.len()),
			zap.Int("rows", targetSize))
		metrics.CategoricalFallbacks.Inc()
		return concatText(parts, rows)
	}

	categories := union.values()
	codes := make([]int32, 0, targetSize)
	for i, p := range parts {
		codes = appendCodes(codes, p, rows[i], union)
	}
	merged, err := table.NewCategoricalColumn(categories, codes)
	if err != nil {
		// unreachable: every code comes from union
		return concatText(parts, rows)
	}
	return merged
}

func appendCodes(codes []int32, p table.Column, n int, union *categorySet) []int32 {
	switch col := p.(type) {
	case *table.CategoricalColumn:
		remap := make([]int32, len(col.Categories()))
		for i, v := range col.Categories() {
			remap[i] = union.index[v]
		}
		for _, code := range col.Codes() {
			if code < 0 {
				codes = append(codes, -1)
				continue
			}
			codes = append(codes, remap[code])
		}
	case *table.TextColumn:
		for i := 0; i < col.Len(); i++ {
			v, ok := col.Value(i)
			if !ok {
				codes = append(codes, -1)
				continue
			}
			codes = append(codes, union.index[v])
		}
	default:
		// missing or all-null
		for i := 0; i < n; i++ {
			codes = append(codes, -1)
		}
	}
	return codes
}

// categorySet is an insertion-ordered set of strings
type categorySet struct {
	order []string
	index map[string]int32
}

func newCategorySet() *categorySet {
	return &categorySet{index: make(map[string]int32)}
}

func (s *categorySet) add(v string) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = int32(len(s.order))
	s.order = append(s.order, v)
}

func (s *categorySet) addAll(vs []string) {
	for _, v := range vs {
		s.add(v)
	}
}

func (s *categorySet) len() int { return len(s.order) }
func (s *categorySet) values() []string { return s.order }

// columnOrder lists column names by first appearance across tables
func columnOrder(tables []*table.Table) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range tables {
		for _, name := range t.Names() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
