package table

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Column is the base interface for all column representations
type Column interface {
	Kind() Kind
	Len() int
	IsNull(i int) bool
	// Format renders row i as text; false for null rows.
	Format(i int) (string, bool)
	MemoryUsage() int64
}

// Integer is the set of Go types an IntColumn may be backed by.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type intStore interface {
	len() int
	at(i int) int64
}

type intSlice[T Integer] []T

func (s intSlice[T]) len() int { return len(s) }
func (s intSlice[T]) at(i int) int64 { return int64(s[i]) }

func packInts[T Integer](src intStore) intSlice[T] {
	out := make(intSlice[T], src.len())
	for i := range out {
		out[i] = T(src.at(i))
	}
	return out
}

// IntColumn stores non-null integers in a narrowed backing slice.
type IntColumn struct {
	width    IntWidth
	data     intStore
	min, max int64
}

// NewIntColumn creates an int64-backed column
func NewIntColumn(values []int64) *IntColumn {
	return NewIntColumnOf(values)
}

// NewIntColumnOf creates a column backed by values without copying them.
func NewIntColumnOf[T Integer](values []T) *IntColumn {
	c := &IntColumn{data: intSlice[T](values), width: widthOf(values)}
	for i, v := range values {
		iv := int64(v)
		if i == 0 || iv < c.min {
			c.min = iv
		}
		if i == 0 || iv > c.max {
			c.max = iv
		}
	}
	return c
}

func widthOf[T Integer](values []T) IntWidth {
	switch any(values).(type) {
	case []int8:
		return Int8
	case []int16:
		return Int16
	case []int32:
		return Int32
	case []uint8:
		return Uint8
	case []uint16:
		return Uint16
	case []uint32:
		return Uint32
	case []uint64:
		return Uint64
	default:
		return Int64
	}
}

func (c *IntColumn) Kind() Kind { return KindInteger }
func (c *IntColumn) Len() int { return c.data.len() }
func (c *IntColumn) IsNull(int) bool { return false }
func (c *IntColumn) Width() IntWidth { return c.width }
func (c *IntColumn) Value(i int) int64 { return c.data.at(i) }
func (c *IntColumn) MemoryUsage() int64 { return int64(c.Len() * c.width.Bytes()) }
func (c *IntColumn) Min() int64 { return c.min }
func (c *IntColumn) Max() int64 { return c.max }

func (c *IntColumn) Format(i int) (string, bool) {
	return strconv.FormatInt(c.data.at(i), 10), true
}

// Values copies the column out as int64
func (c *IntColumn) Values() []int64 {
	out := make([]int64, c.Len())
	for i := range out {
		out[i] = c.data.at(i)
	}
	return out
}

// Raw returns the typed backing slice ([]int8 ... []uint64).
func (c *IntColumn) Raw() any {
	switch s := c.data.(type) {
	case intSlice[int8]:
		return []int8(s)
	case intSlice[int16]:
		return []int16(s)
	case intSlice[int32]:
		return []int32(s)
	case intSlice[int64]:
		return []int64(s)
	case intSlice[uint8]:
		return []uint8(s)
	case intSlice[uint16]:
		return []uint16(s)
	case intSlice[uint32]:
		return []uint32(s)
	case intSlice[uint64]:
		return []uint64(s)
	}
	return nil
}

// Narrow repacks the column into width w. It refuses widths that would
// truncate any observed value.
func (c *IntColumn) Narrow(w IntWidth) (*IntColumn, error) {
	if c.Len() > 0 && !w.Fits(c.min, c.max) {
		return nil, fmt.Errorf("range [%d, %d] does not fit %s", c.min, c.max, w)
	}
	out := &IntColumn{width: w, min: c.min, max: c.max}
	switch w {
	case Int8:
		out.data = packInts[int8](c.data)
	case Int16:
		out.data = packInts[int16](c.data)
	case Int32:
		out.data = packInts[int32](c.data)
	case Int64:
		out.data = packInts[int64](c.data)
	case Uint8:
		out.data = packInts[uint8](c.data)
	case Uint16:
		out.data = packInts[uint16](c.data)
	case Uint32:
		out.data = packInts[uint32](c.data)
	case Uint64:
		out.data = packInts[uint64](c.data)
	default:
		return nil, fmt.Errorf("unsupported integer width %v", w)
	}
	return out, nil
}

// FloatColumn stores floating point values; NaN marks a null.
type FloatColumn struct {
	f64 []float64
	f32 []float32
}

// NewFloatColumn creates a float64-backed column
func NewFloatColumn(values []float64) *FloatColumn {
	return &FloatColumn{f64: values}
}

// NewFloat32Column creates a float32-backed column
func NewFloat32Column(values []float32) *FloatColumn {
	return &FloatColumn{f32: values}
}

func (c *FloatColumn) Kind() Kind { return KindFloat }

func (c *FloatColumn) Len() int {
	if c.f32 != nil {
		return len(c.f32)
	}
	return len(c.f64)
}

func (c *FloatColumn) Width() FloatWidth {
	if c.f32 != nil {
		return Float32
	}
	return Float64
}

func (c *FloatColumn) Value(i int) float64 {
	if c.f32 != nil {
		return float64(c.f32[i])
	}
	return c.f64[i]
}

func (c *FloatColumn) IsNull(i int) bool { return math.IsNaN(c.Value(i)) }

func (c *FloatColumn) Format(i int) (string, bool) {
	v := c.Value(i)
	if math.IsNaN(v) {
		return "", false
	}
	bits := 64
	if c.f32 != nil {
		bits = 32
	}
	return strconv.FormatFloat(v, 'g', -1, bits), true
}

func (c *FloatColumn) MemoryUsage() int64 {
	if c.f32 != nil {
		return int64(len(c.f32) * 4)
	}
	return int64(len(c.f64) * 8)
}

// Float64s returns the float64 backing slice, nil for float32 columns.
func (c *FloatColumn) Float64s() []float64 { return c.f64 }

// Float32s returns the float32 backing slice, nil for float64 columns.
func (c *FloatColumn) Float32s() []float32 { return c.f32 }

// Narrow32 converts the column to float32 if every value survives the
// round trip unchanged. NaN is carried through.
func (c *FloatColumn) Narrow32() (*FloatColumn, bool) {
	if c.f32 != nil {
		return c, true
	}
	out := make([]float32, len(c.f64))
	for i, v := range c.f64 {
		f := float32(v)
		if math.IsNaN(v) {
			out[i] = f
			continue
		}
		if float64(f) != v {
			return nil, false
		}
		out[i] = f
	}
	return &FloatColumn{f32: out}, true
}

// TextColumn stores plain strings with a validity mask
type TextColumn struct {
	values []string
	valid  []bool
}

// NewTextColumn creates a text column. A nil valid mask means all rows are valid.
func NewTextColumn(values []string, valid []bool) *TextColumn {
	if valid == nil {
		valid = make([]bool, len(values))
		for i := range valid {
			valid[i] = true
		}
	}
	return &TextColumn{values: values, valid: valid}
}

func (c *TextColumn) Kind() Kind { return KindText }
func (c *TextColumn) Len() int { return len(c.values) }
func (c *TextColumn) IsNull(i int) bool { return !c.valid[i] }

func (c *TextColumn) Value(i int) (string, bool) {
	return c.values[i], c.valid[i]
}

func (c *TextColumn) Format(i int) (string, bool) { return c.Value(i) }

func (c *TextColumn) MemoryUsage() int64 {
	var total int64
	for _, v := range c.values {
		total += int64(len(v)) + 16 // string header overhead
	}
	return total + int64(len(c.valid))
}

// Values returns the backing strings; null rows hold "".
func (c *TextColumn) Values() []string { return c.values }

// Valid returns the validity mask
func (c *TextColumn) Valid() []bool { return c.valid }

// Distinct counts distinct non-null values
func (c *TextColumn) Distinct() int {
	seen := make(map[string]struct{})
	for i, v := range c.values {
		if c.valid[i] {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// CategoricalColumn stores a category set plus per-row codes; -1 is null.
type CategoricalColumn struct {
	categories []string
	codes      []int32
}

// NewCategoricalColumn validates that categories hold no duplicates and every
// code is -1 or a valid index.
func NewCategoricalColumn(categories []string, codes []int32) (*CategoricalColumn, error) {
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("duplicate category %q", c)
		}
		seen[c] = struct{}{}
	}
	for i, code := range codes {
		if code < -1 || int(code) >= len(categories) {
			return nil, fmt.Errorf("code %d at row %d out of range [0, %d)", code, i, len(categories))
		}
	}
	return &CategoricalColumn{categories: categories, codes: codes}, nil
}

// EncodeText builds a categorical column from a text column. Categories are
// sorted so that equal value sets always produce equal encodings.
func EncodeText(c *TextColumn) *CategoricalColumn {
	seen := make(map[string]struct{})
	for i, v := range c.values {
		if c.valid[i] {
			seen[v] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for v := range seen {
		categories = append(categories, v)
	}
	slices.Sort(categories)

	return encodeAgainst(c, categories)
}

// EncodeWith encodes c against a caller-supplied category set, which must
// contain every non-null value of c and no duplicates.
func EncodeWith(c *TextColumn, categories []string) (*CategoricalColumn, error) {
	index := make(map[string]struct{}, len(categories))
	for _, v := range categories {
		if _, dup := index[v]; dup {
			return nil, fmt.Errorf("duplicate category %q", v)
		}
		index[v] = struct{}{}
	}
	for i, v := range c.values {
		if !c.valid[i] {
			continue
		}
		if _, ok := index[v]; !ok {
			return nil, fmt.Errorf("value %q at row %d missing from category set", v, i)
		}
	}
	return encodeAgainst(c, categories), nil
}

func encodeAgainst(c *TextColumn, categories []string) *CategoricalColumn {
	index := make(map[string]int32, len(categories))
	for i, v := range categories {
		index[v] = int32(i)
	}
	codes := make([]int32, len(c.values))
	for i, v := range c.values {
		if !c.valid[i] {
			codes[i] = -1
			continue
		}
		codes[i] = index[v]
	}
	return &CategoricalColumn{categories: categories, codes: codes}
}

func (c *CategoricalColumn) Kind() Kind { return KindCategorical }
func (c *CategoricalColumn) Len() int { return len(c.codes) }
func (c *CategoricalColumn) IsNull(i int) bool { return c.codes[i] < 0 }

func (c *CategoricalColumn) Value(i int) (string, bool) {
	code := c.codes[i]
	if code < 0 {
		return "", false
	}
	return c.categories[code], true
}

func (c *CategoricalColumn) Format(i int) (string, bool) { return c.Value(i) }

// Categories returns the ordered category set
func (c *CategoricalColumn) Categories() []string { return c.categories }

// Codes returns the per-row category indices
func (c *CategoricalColumn) Codes() []int32 { return c.codes }

// CodeWidth is the narrowest signed width holding every code.
func (c *CategoricalColumn) CodeWidth() IntWidth {
	n := int64(len(c.categories))
	switch {
	case n <= math.MaxInt8:
		return Int8
	case n <= math.MaxInt16:
		return Int16
	default:
		return Int32
	}
}

func (c *CategoricalColumn) MemoryUsage() int64 {
	total := int64(len(c.codes) * c.CodeWidth().Bytes())
	for _, v := range c.categories {
		total += int64(len(v)) + 16
	}
	return total
}

// Decode expands the column back to plain text
func (c *CategoricalColumn) Decode() *TextColumn {
	values := make([]string, len(c.codes))
	valid := make([]bool, len(c.codes))
	for i, code := range c.codes {
		if code >= 0 {
			values[i] = c.categories[code]
			valid[i] = true
		}
	}
	return &TextColumn{values: values, valid: valid}
}

// Recode re-expresses the column against categories, which must contain
// every category of c.
func (c *CategoricalColumn) Recode(categories []string) (*CategoricalColumn, error) {
	index := make(map[string]int32, len(categories))
	for i, v := range categories {
		index[v] = int32(i)
	}
	remap := make([]int32, len(c.categories))
	for i, v := range c.categories {
		code, ok := index[v]
		if !ok {
			return nil, fmt.Errorf("category %q missing from target set", v)
		}
		remap[i] = code
	}
	codes := make([]int32, len(c.codes))
	for i, code := range c.codes {
		if code < 0 {
			codes[i] = -1
			continue
		}
		codes[i] = remap[code]
	}
	return &CategoricalColumn{categories: categories, codes: codes}, nil
}

// TimestampColumn stores second-resolution wall-clock timestamps
type TimestampColumn struct {
	seconds []int64
	valid   []bool
}

// NewTimestampColumn creates a timestamp column from Unix seconds. A nil
// valid mask means all rows are valid.
func NewTimestampColumn(seconds []int64, valid []bool) *TimestampColumn {
	if valid == nil {
		valid = make([]bool, len(seconds))
		for i := range valid {
			valid[i] = true
		}
	}
	return &TimestampColumn{seconds: seconds, valid: valid}
}

func (c *TimestampColumn) Kind() Kind { return KindTimestamp }
func (c *TimestampColumn) Len() int { return len(c.seconds) }
func (c *TimestampColumn) IsNull(i int) bool { return !c.valid[i] }

func (c *TimestampColumn) Value(i int) (time.Time, bool) {
	if !c.valid[i] {
		return time.Time{}, false
	}
	return time.Unix(c.seconds[i], 0).UTC(), true
}

func (c *TimestampColumn) Format(i int) (string, bool) {
	t, ok := c.Value(i)
	if !ok {
		return "", false
	}
	return t.Format(TimestampLayout), true
}

func (c *TimestampColumn) MemoryUsage() int64 {
	return int64(len(c.seconds)*8 + len(c.valid))
}

// Seconds returns the Unix-second backing slice
func (c *TimestampColumn) Seconds() []int64 { return c.seconds }

// Valid returns the validity mask
func (c *TimestampColumn) Valid() []bool { return c.valid }

// ListColumn stores variable-length string sequences per row
type ListColumn struct {
	values [][]string
	valid  []bool
}

// NewListColumn creates a list column. A nil valid mask means all rows are valid.
func NewListColumn(values [][]string, valid []bool) *ListColumn {
	if valid == nil {
		valid = make([]bool, len(values))
		for i := range valid {
			valid[i] = true
		}
	}
	return &ListColumn{values: values, valid: valid}
}

func (c *ListColumn) Kind() Kind { return KindList }
func (c *ListColumn) Len() int { return len(c.values) }
func (c *ListColumn) IsNull(i int) bool { return !c.valid[i] }

func (c *ListColumn) Value(i int) ([]string, bool) {
	return c.values[i], c.valid[i]
}

func (c *ListColumn) Format(i int) (string, bool) {
	if !c.valid[i] {
		return "", false
	}
	return "[" + strings.Join(c.values[i], ", ") + "]", true
}

func (c *ListColumn) MemoryUsage() int64 {
	var total int64
	for _, row := range c.values {
		total += 24
		for _, v := range row {
			total += int64(len(v)) + 16
		}
	}
	return total + int64(len(c.valid))
}

// Values returns the backing rows
func (c *ListColumn) Values() [][]string { return c.values }

// Valid returns the validity mask
func (c *ListColumn) Valid() []bool { return c.valid }
