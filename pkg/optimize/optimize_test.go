package optimize

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

func newOptimizer(t *testing.T, cfg Config) *Optimizer {
	t.Helper()
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	o, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func column(t *testing.T, tbl *table.Table, name string) table.Column {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, "column %s", name)
	return col
}

func TestNewRejectsBadThreshold(t *testing.T) {
	_, err := New(Config{Threshold: 101}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = New(Config{Threshold: -1}, nil)
	assert.Error(t, err)
}

func TestThresholdAllows(t *testing.T) {
	th := Threshold(50)
	assert.True(t, th.Allows(5, 10), "exactly at the boundary")
	assert.False(t, th.Allows(6, 10), "one unit above")
	assert.False(t, th.Allows(0, 0), "empty column is ineligible")
	assert.True(t, th.Allows(0, 4), "all-null column with rows")
	assert.False(t, Threshold(0).Allows(1, 10))
	assert.True(t, Threshold(100).Allows(10, 10))
}

func TestOptimizeIntegers(t *testing.T) {
	original := map[string][]int64{
		"small":    {0, 1, 255},
		"signed":   {-5, 0, 100},
		"wide":     {0, 70000, 12},
		"negative": {math.MinInt32, 0, 1},
		"huge":     {math.MinInt64, math.MaxInt64, 0},
	}
	tbl := table.New()
	for _, name := range []string{"small", "signed", "wide", "negative", "huge"} {
		tbl.MustAdd(name, table.NewIntColumn(original[name]))
	}

	require.NoError(t, newOptimizer(t, Config{}).Optimize(tbl))

	want := map[string]table.IntWidth{
		"small":    table.Uint8,
		"signed":   table.Int8,
		"wide":     table.Uint32,
		"negative": table.Int32,
		"huge":     table.Int64,
	}
	for name, w := range want {
		col := column(t, tbl, name).(*table.IntColumn)
		assert.Equal(t, w, col.Width(), name)
		assert.Equal(t, original[name], col.Values(), name)
		assert.Equal(t, minOf(original[name]), col.Min(), name)
		assert.Equal(t, maxOf(original[name]), col.Max(), name)
	}
}

func minOf(v []int64) int64 {
	m := v[0]
	for _, x := range v[1:] {
		m = min(m, x)
	}
	return m
}

func maxOf(v []int64) int64 {
	m := v[0]
	for _, x := range v[1:] {
		m = max(m, x)
	}
	return m
}

func TestOptimizeFloats(t *testing.T) {
	tbl := table.New().
		MustAdd("exact", table.NewFloatColumn([]float64{1.5, math.NaN(), -2.25})).
		MustAdd("lossy", table.NewFloatColumn([]float64{0.1, 0.2, 0.3}))

	require.NoError(t, newOptimizer(t, Config{}).Optimize(tbl))

	exact := column(t, tbl, "exact").(*table.FloatColumn)
	assert.Equal(t, table.Float32, exact.Width())
	assert.True(t, exact.IsNull(1))
	assert.Equal(t, -2.25, exact.Value(2))

	lossy := column(t, tbl, "lossy").(*table.FloatColumn)
	assert.Equal(t, table.Float64, lossy.Width())
	assert.Equal(t, 0.1, lossy.Value(0))
}

func TestOptimizeTextThresholdBoundary(t *testing.T) {
	// 10 rows, 5 distinct: exactly 50%.
	atBoundary := []string{"a", "b", "c", "d", "e", "a", "b", "c", "d", "e"}
	// 10 rows, 6 distinct: above 50%.
	above := []string{"a", "b", "c", "d", "e", "f", "a", "b", "c", "d"}

	tbl := table.New().
		MustAdd("at", table.NewTextColumn(atBoundary, nil)).
		MustAdd("above", table.NewTextColumn(above, nil))

	require.NoError(t, newOptimizer(t, Config{Threshold: 50}).Optimize(tbl))

	assert.Equal(t, table.KindCategorical, column(t, tbl, "at").Kind())
	assert.Equal(t, table.KindText, column(t, tbl, "above").Kind())
}

func TestOptimizeCategoricalRoundTrip(t *testing.T) {
	values := []string{"UA", "", "AA", "UA", "AA", "", "UA", "UA"}
	valid := []bool{true, false, true, true, true, false, true, true}
	tbl := table.New().MustAdd("carrier", table.NewTextColumn(values, valid))

	require.NoError(t, newOptimizer(t, Config{}).Optimize(tbl))

	cat, ok := column(t, tbl, "carrier").(*table.CategoricalColumn)
	require.True(t, ok)
	for i := range values {
		got, gotOK := cat.Value(i)
		assert.Equal(t, valid[i], gotOK, "row %d", i)
		if valid[i] {
			assert.Equal(t, values[i], got, "row %d", i)
		}
	}
}

func TestOptimizeLeavesListsAlone(t *testing.T) {
	list := table.NewListColumn([][]string{{"a"}, {"a"}, {"a"}, {"a"}}, nil)
	tbl := table.New().MustAdd("tags", list)

	require.NoError(t, newOptimizer(t, Config{}).Optimize(tbl))
	assert.Same(t, list, column(t, tbl, "tags"))
}

func TestOptimizeDatetimeFeatures(t *testing.T) {
	tbl := table.New().
		MustAdd("issue_date", table.NewTextColumn(
			[]string{"01/15/1998", "02/30/1998", "", "1999-03-01"},
			[]bool{true, true, false, true})).
		MustAdd("status", table.NewTextColumn([]string{"Valid", "Valid", "Valid", "Valid"}, nil))

	o := newOptimizer(t, Config{DatetimeFeatures: []string{"issue_date"}})
	require.NoError(t, o.Optimize(tbl))

	ts, ok := column(t, tbl, "issue_date").(*table.TimestampColumn)
	require.True(t, ok)

	v, ok := ts.Value(0)
	require.True(t, ok)
	assert.Equal(t, time.Date(1998, 1, 15, 0, 0, 0, 0, time.UTC), v)
	assert.True(t, ts.IsNull(1), "impossible date")
	assert.True(t, ts.IsNull(2), "null input")
	v, ok = ts.Value(3)
	require.True(t, ok)
	assert.Equal(t, time.Date(1999, 3, 1, 0, 0, 0, 0, time.UTC), v)

	assert.Equal(t, table.KindCategorical, column(t, tbl, "status").Kind())
}

func TestNormalizeHHMM(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2430", "0030", true},
		{"2400", "0000", true},
		{"0", "0000", true},
		{"5", "0005", true},
		{"830", "0830", true},
		{"0000", "0000", true},
		{"2359", "2359", true},
		{"1200.0", "1200", true},
		{"1260", "", false},
		{"4800", "", false},
		{"-1", "", false},
		{"", "", false},
		{"ab", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeHHMM(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, 2400, CarryOver)
}

func flightTable() *table.Table {
	nan := math.NaN()
	return table.New().
		MustAdd("Year", table.NewIntColumn([]int64{2007, 2007, 2007, 2007})).
		MustAdd("Month", table.NewIntColumn([]int64{1, 1, 2, 12})).
		MustAdd("DayofMonth", table.NewIntColumn([]int64{1, 31, 30, 31})).
		MustAdd("DepTime", table.NewFloatColumn([]float64{2430, 5, 1200, nan})).
		MustAdd("CRSDepTime", table.NewIntColumn([]int64{2400, 2359, 1200, 1845})).
		MustAdd("ArrTime", table.NewFloatColumn([]float64{130, 1260, 1300, 2015})).
		MustAdd("CRSArrTime", table.NewIntColumn([]int64{100, 100, 100, 2010})).
		MustAdd("UniqueCarrier", table.NewTextColumn([]string{"WN", "WN", "WN", "WN"}, nil))
}

func TestOptimizeFlightTimes(t *testing.T) {
	tbl := flightTable()
	require.NoError(t, newOptimizer(t, Config{}).Optimize(tbl, WithFlightTimes()))

	assert.Equal(t, []string{"UniqueCarrier", "Departure", "CRSDeparture", "Arrival", "CRSArrival"}, tbl.Names())

	dep := column(t, tbl, "Departure").(*table.TimestampColumn)
	v, ok := dep.Value(0)
	require.True(t, ok)
	// Same day wraparound, not the next day.
	assert.Equal(t, time.Date(2007, 1, 1, 0, 30, 0, 0, time.UTC), v)

	v, ok = dep.Value(1)
	require.True(t, ok)
	assert.Equal(t, time.Date(2007, 1, 31, 0, 5, 0, 0, time.UTC), v)

	assert.True(t, dep.IsNull(2), "Feb 30 is not a date")
	assert.True(t, dep.IsNull(3), "missing departure time")

	crsDep := column(t, tbl, "CRSDeparture").(*table.TimestampColumn)
	v, ok = crsDep.Value(0)
	require.True(t, ok)
	assert.Equal(t, time.Date(2007, 1, 1, 0, 0, 0, 0, time.UTC), v)
	v, ok = crsDep.Value(3)
	require.True(t, ok)
	assert.Equal(t, time.Date(2007, 12, 31, 18, 45, 0, 0, time.UTC), v)

	arr := column(t, tbl, "Arrival").(*table.TimestampColumn)
	assert.True(t, arr.IsNull(1), "minute 60 is invalid")
	assert.False(t, arr.IsNull(0))
}

func TestOptimizeFlightTimesRequiresColumns(t *testing.T) {
	tbl := flightTable()
	tbl.Drop("Month")

	err := newOptimizer(t, Config{}).Optimize(tbl, WithFlightTimes())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestOptimizeIsIdempotent(t *testing.T) {
	tbl := table.New().
		MustAdd("n", table.NewIntColumn([]int64{1, 2, 3, 4})).
		MustAdd("s", table.NewTextColumn([]string{"x", "x", "y", "y"}, nil))

	o := newOptimizer(t, Config{})
	require.NoError(t, o.Optimize(tbl))
	first := tbl.MemoryUsage()
	n := column(t, tbl, "n")
	s := column(t, tbl, "s")

	require.NoError(t, o.Optimize(tbl))
	assert.Equal(t, first, tbl.MemoryUsage())
	assert.Same(t, n, column(t, tbl, "n"))
	assert.Same(t, s, column(t, tbl, "s"))
}
