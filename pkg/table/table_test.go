package table

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAddAndProject(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Add("a", NewIntColumn([]int64{1, 2, 3})))
	require.NoError(t, tbl.Add("b", NewTextColumn([]string{"x", "y", "z"}, nil)))

	assert.Error(t, tbl.Add("a", NewIntColumn([]int64{1, 2, 3})), "duplicate name")
	assert.Error(t, tbl.Add("c", NewIntColumn([]int64{1})), "row mismatch")

	assert.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, []string{"a", "b"}, tbl.Names())

	proj, err := tbl.Project([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, proj.Names())

	_, err = tbl.Project([]string{"missing"})
	assert.Error(t, err)
}

func TestTableDropAndClone(t *testing.T) {
	tbl := New().
		MustAdd("a", NewIntColumn([]int64{1, 2})).
		MustAdd("b", NewIntColumn([]int64{3, 4})).
		MustAdd("c", NewIntColumn([]int64{5, 6}))

	clone := tbl.Clone()
	tbl.Drop("b", "unknown")

	assert.Equal(t, []string{"a", "c"}, tbl.Names())
	assert.Equal(t, []string{"a", "b", "c"}, clone.Names())

	tbl.Drop("a", "c")
	assert.Equal(t, 0, tbl.NumRows())
	assert.Equal(t, 2, clone.NumRows())
}

func TestTableSet(t *testing.T) {
	tbl := New().MustAdd("a", NewIntColumn([]int64{1, 2}))
	require.NoError(t, tbl.Set("a", NewFloatColumn([]float64{1.5, 2.5})))

	col, ok := tbl.Column("a")
	require.True(t, ok)
	assert.Equal(t, KindFloat, col.Kind())

	assert.Error(t, tbl.Set("a", NewFloatColumn([]float64{1})))
	assert.Error(t, tbl.Set("b", NewFloatColumn([]float64{1, 2})))
}

func TestTableRow(t *testing.T) {
	tbl := New().
		MustAdd("n", NewIntColumn([]int64{7})).
		MustAdd("s", NewTextColumn([]string{""}, []bool{false}))

	row, err := tbl.Row(0)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"n": "7"}, row)

	_, err = tbl.Row(1)
	assert.Error(t, err)
}

func TestSmallestWidth(t *testing.T) {
	tests := []struct {
		min, max int64
		want     IntWidth
	}{
		{0, 255, Uint8},
		{0, 256, Uint16},
		{0, 65535, Uint16},
		{0, 70000, Uint32},
		{0, math.MaxInt64, Uint64},
		{-1, 127, Int8},
		{-129, 0, Int16},
		{-1, 40000, Int32},
		{math.MinInt64, 0, Int64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SmallestWidth(tt.min, tt.max), "[%d, %d]", tt.min, tt.max)
	}
}

func TestIntColumnNarrow(t *testing.T) {
	col := NewIntColumn([]int64{0, 200, 17})

	narrowed, err := col.Narrow(Uint8)
	require.NoError(t, err)
	assert.Equal(t, Uint8, narrowed.Width())
	assert.Equal(t, []uint8{0, 200, 17}, narrowed.Raw())
	assert.Equal(t, col.Values(), narrowed.Values())
	assert.Less(t, narrowed.MemoryUsage(), col.MemoryUsage())

	_, err = col.Narrow(Int8)
	assert.Error(t, err, "200 does not fit int8")
}

func TestFloatColumnNarrow32(t *testing.T) {
	exact := NewFloatColumn([]float64{0.5, math.NaN(), 1024})
	f32, ok := exact.Narrow32()
	require.True(t, ok)
	assert.Equal(t, Float32, f32.Width())
	assert.True(t, f32.IsNull(1))
	assert.Equal(t, 0.5, f32.Value(0))

	_, ok = NewFloatColumn([]float64{0.1}).Narrow32()
	assert.False(t, ok, "0.1 is not exact in float32")
}

func TestCategoricalEncodeDecode(t *testing.T) {
	text := NewTextColumn([]string{"b", "a", "", "b"}, []bool{true, true, false, true})
	cat := EncodeText(text)

	assert.Equal(t, []string{"a", "b"}, cat.Categories())
	assert.Equal(t, []int32{1, 0, -1, 1}, cat.Codes())
	assert.Equal(t, Int8, cat.CodeWidth())

	decoded := cat.Decode()
	for i := 0; i < text.Len(); i++ {
		want, wantOK := text.Value(i)
		got, gotOK := decoded.Value(i)
		assert.Equal(t, wantOK, gotOK)
		if wantOK {
			assert.Equal(t, want, got)
		}
	}
}

func TestCategoricalRecode(t *testing.T) {
	cat, err := NewCategoricalColumn([]string{"x", "y"}, []int32{0, 1, -1})
	require.NoError(t, err)

	recoded, err := cat.Recode([]string{"y", "z", "x"})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 0, -1}, recoded.Codes())

	_, err = cat.Recode([]string{"x"})
	assert.Error(t, err)
}

func TestNewCategoricalColumnValidates(t *testing.T) {
	_, err := NewCategoricalColumn([]string{"a", "a"}, nil)
	assert.Error(t, err)

	_, err = NewCategoricalColumn([]string{"a"}, []int32{1})
	assert.Error(t, err)
}

func TestEncodeWith(t *testing.T) {
	text := NewTextColumn([]string{"q", "p"}, nil)

	cat, err := EncodeWith(text, []string{"p", "q", "r"})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0}, cat.Codes())

	_, err = EncodeWith(text, []string{"p"})
	assert.Error(t, err)
}

func TestTimestampAndListFormat(t *testing.T) {
	ts := NewTimestampColumn([]int64{0, 86400 + 3661}, []bool{true, true})
	s, ok := ts.Format(1)
	require.True(t, ok)
	assert.Equal(t, "1970-01-02 01:01:01", s)

	list := NewListColumn([][]string{{"a", "b"}, nil}, []bool{true, false})
	s, ok = list.Format(0)
	require.True(t, ok)
	assert.Equal(t, "[a, b]", s)
	assert.True(t, list.IsNull(1))
}

func TestDescribe(t *testing.T) {
	tbl := New().
		MustAdd("n", NewIntColumn([]int64{1})).
		MustAdd("name", NewTextColumn([]string{"x"}, nil)).
		MustAdd("when", NewTextColumn([]string{"2020-01-01"}, nil)).
		MustAdd("tags", NewListColumn([][]string{{"a"}}, nil))

	schema := Describe(tbl, map[string]struct{}{"when": {}})

	f, ok := schema.Field("name")
	require.True(t, ok)
	assert.Equal(t, RoleCategoricalCandidate, f.Role)

	f, _ = schema.Field("when")
	assert.Equal(t, RoleTime, f.Role)

	f, _ = schema.Field("tags")
	assert.Equal(t, KindList, f.Kind)
	assert.Equal(t, RoleNone, f.Role)

	f, _ = schema.Field("n")
	assert.Equal(t, RoleNone, f.Role)
}

func TestParseKindRoundTrip(t *testing.T) {
	for k := KindInteger; k <= KindList; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("bogus")
	assert.Error(t, err)
}
