package merge

import (
	"fmt"
	"math"
	"slices"

	"github.com/ajitpratap0/flightprep/pkg/table"
)

func allNull(col table.Column) bool {
	for i := 0; i < col.Len(); i++ {
		if !col.IsNull(i) {
			return false
		}
	}
	return true
}

// concatColumn stacks parts without re-deriving categories. Missing parts
// and parts holding only nulls become null gaps; the result takes the kind
// shared by the remaining parts, widening integers to float when gaps need
// a null marker and falling back to text when kinds disagree.
func concatColumn(parts []table.Column, rows []int) (table.Column, error) {
	var significant []table.Column
	gaps := false
	for _, p := range parts {
		if p == nil {
			gaps = true
			continue
		}
		if p.Len() == 0 {
			continue
		}
		if allNull(p) {
			gaps = true
			continue
		}
		significant = append(significant, p)
	}
	if len(significant) == 0 {
		for _, p := range parts {
			if p != nil {
				significant = append(significant, p)
			}
		}
	}
	if len(significant) == 0 {
		return nil, fmt.Errorf("column absent from every table")
	}

	kinds := make(map[table.Kind]struct{})
	for _, p := range significant {
		kinds[p.Kind()] = struct{}{}
	}
	if len(kinds) == 2 {
		_, hasInt := kinds[table.KindInteger]
		_, hasFloat := kinds[table.KindFloat]
		if hasInt && hasFloat {
			return concatFloat(parts, rows, false), nil
		}
	}
	if len(kinds) != 1 {
		return concatText(parts, rows), nil
	}

	switch significant[0].Kind() {
	case table.KindInteger:
		if gaps {
			return concatFloat(parts, rows, false), nil
		}
		return concatInt(parts), nil
	case table.KindFloat:
		all32 := true
		for _, p := range significant {
			if p.(*table.FloatColumn).Width() != table.Float32 {
				all32 = false
			}
		}
		return concatFloat(parts, rows, all32), nil
	case table.KindCategorical:
		if categories, ok := sharedCategories(significant); ok {
			return concatCategorical(parts, rows, categories)
		}
		return concatText(parts, rows), nil
	case table.KindTimestamp:
		return concatTimestamp(parts, rows), nil
	case table.KindList:
		return concatList(parts, rows), nil
	default:
		return concatText(parts, rows), nil
	}
}

func concatInt(parts []table.Column) table.Column {
	var values []int64
	for _, p := range parts {
		if ic, ok := p.(*table.IntColumn); ok {
			values = append(values, ic.Values()...)
		}
	}
	col := table.NewIntColumn(values)
	if len(values) == 0 {
		return col
	}
	narrowed, err := col.Narrow(table.SmallestWidth(col.Min(), col.Max()))
	if err != nil {
		return col
	}
	return narrowed
}

func concatFloat(parts []table.Column, rows []int, narrow bool) table.Column {
	var values []float64
	for i, p := range parts {
		for j := 0; j < rows[i]; j++ {
			values = append(values, floatAt(p, j))
		}
	}
	col := table.NewFloatColumn(values)
	if narrow {
		if f32, ok := col.Narrow32(); ok {
			return f32
		}
	}
	return col
}

func floatAt(p table.Column, i int) float64 {
	switch c := p.(type) {
	case *table.IntColumn:
		return float64(c.Value(i))
	case *table.FloatColumn:
		return c.Value(i)
	}
	return math.NaN()
}

// concatText renders every part through Format, so any mix of kinds
// survives with its values intact.
func concatText(parts []table.Column, rows []int) *table.TextColumn {
	var values []string
	var valid []bool
	for i, p := range parts {
		for j := 0; j < rows[i]; j++ {
			if p == nil {
				values = append(values, "")
				valid = append(valid, false)
				continue
			}
			v, ok := p.Format(j)
			values = append(values, v)
			valid = append(valid, ok)
		}
	}
	return table.NewTextColumn(values, valid)
}

func sharedCategories(parts []table.Column) ([]string, bool) {
	first := parts[0].(*table.CategoricalColumn).Categories()
	for _, p := range parts[1:] {
		if !slices.Equal(first, p.(*table.CategoricalColumn).Categories()) {
			return nil, false
		}
	}
	return first, true
}

func concatCategorical(parts []table.Column, rows []int, categories []string) (table.Column, error) {
	var codes []int32
	for i, p := range parts {
		if cat, ok := p.(*table.CategoricalColumn); ok && slices.Equal(cat.Categories(), categories) {
			codes = append(codes, cat.Codes()...)
			continue
		}
		for j := 0; j < rows[i]; j++ {
			codes = append(codes, -1)
		}
	}
	return table.NewCategoricalColumn(slices.Clone(categories), codes)
}

func concatTimestamp(parts []table.Column, rows []int) table.Column {
	var seconds []int64
	var valid []bool
	for i, p := range parts {
		ts, ok := p.(*table.TimestampColumn)
		if !ok {
			seconds = append(seconds, make([]int64, rows[i])...)
			valid = append(valid, make([]bool, rows[i])...)
			continue
		}
		seconds = append(seconds, ts.Seconds()...)
		valid = append(valid, ts.Valid()...)
	}
	return table.NewTimestampColumn(seconds, valid)
}

func concatList(parts []table.Column, rows []int) table.Column {
	var values [][]string
	var valid []bool
	for i, p := range parts {
		list, ok := p.(*table.ListColumn)
		if !ok {
			values = append(values, make([][]string, rows[i])...)
			valid = append(valid, make([]bool, rows[i])...)
			continue
		}
		values = append(values, list.Values()...)
		valid = append(valid, list.Valid()...)
	}
	return table.NewListColumn(values, valid)
}
