package artifact

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/ajitpratap0/flightprep/pkg/table"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Second}

// encodeColumn serializes one column as a single-record IPC stream
func encodeColumn(mem memory.Allocator, name string, col table.Column) ([]byte, error) {
	arr, err := toArrow(mem, col)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	schema := arrow.NewSchema([]arrow.Field{{Name: name, Type: arr.DataType(), Nullable: true}}, nil)
	rec := array.NewRecord(schema, []arrow.Array{arr}, int64(arr.Len()))
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write ipc record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close ipc writer: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeColumn reads a block written by encodeColumn. Values are copied out
// of Arrow buffers before the reader is released.
func decodeColumn(mem memory.Allocator, block []byte, info ColumnInfo) (table.Column, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(block), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("open ipc stream: %w", err)
	}
	defer rdr.Release()

	if !rdr.Next() {
		if err := rdr.Err(); err != nil {
			return nil, fmt.Errorf("read ipc record: %w", err)
		}
		return nil, fmt.Errorf("ipc stream holds no record")
	}
	rec := rdr.Record()
	if rec.NumCols() != 1 {
		return nil, fmt.Errorf("ipc record has %d columns, want 1", rec.NumCols())
	}

	col, err := fromArrow(rec.Column(0))
	if err != nil {
		return nil, err
	}
	if col.Kind().String() != info.Kind {
		return nil, fmt.Errorf("decoded %s column, footer says %s", col.Kind(), info.Kind)
	}
	if col.Len() != info.Rows {
		return nil, fmt.Errorf("decoded %d rows, footer says %d", col.Len(), info.Rows)
	}
	return col, nil
}

func toArrow(mem memory.Allocator, col table.Column) (arrow.Array, error) {
	switch c := col.(type) {
	case *table.IntColumn:
		return intArray(mem, c)
	case *table.FloatColumn:
		if c.Width() == table.Float32 {
			b := array.NewFloat32Builder(mem)
			defer b.Release()
			b.AppendValues(c.Float32s(), nil)
			return b.NewArray(), nil
		}
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(c.Float64s(), nil)
		return b.NewArray(), nil
	case *table.TextColumn:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(c.Values(), c.Valid())
		return b.NewArray(), nil
	case *table.CategoricalColumn:
		return dictionaryArray(mem, c)
	case *table.TimestampColumn:
		b := array.NewTimestampBuilder(mem, timestampType)
		defer b.Release()
		values := make([]arrow.Timestamp, c.Len())
		for i, s := range c.Seconds() {
			values[i] = arrow.Timestamp(s)
		}
		b.AppendValues(values, c.Valid())
		return b.NewArray(), nil
	case *table.ListColumn:
		b := array.NewListBuilder(mem, arrow.BinaryTypes.String)
		defer b.Release()
		vb := b.ValueBuilder().(*array.StringBuilder)
		valid := c.Valid()
		for i, row := range c.Values() {
			if !valid[i] {
				b.AppendNull()
				continue
			}
			b.Append(true)
			for _, v := range row {
				vb.Append(v)
			}
		}
		return b.NewArray(), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", col)
	}
}

func intArray(mem memory.Allocator, c *table.IntColumn) (arrow.Array, error) {
	switch v := c.Raw().(type) {
	case []int8:
		b := array.NewInt8Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int16:
		b := array.NewInt16Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint8:
		b := array.NewUint8Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint16:
		b := array.NewUint16Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint32:
		b := array.NewUint32Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint64:
		b := array.NewUint64Builder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	default:
		return nil, fmt.Errorf("unsupported integer storage %T", v)
	}
}

// dictionaryArray stores a categorical column as an Arrow dictionary array
// so the category set travels with the codes.
func dictionaryArray(mem memory.Allocator, c *table.CategoricalColumn) (arrow.Array, error) {
	codes := c.Codes()
	valid := make([]bool, len(codes))
	for i, code := range codes {
		valid[i] = code >= 0
	}

	var (
		indices   arrow.Array
		indexType arrow.DataType
	)
	switch c.CodeWidth() {
	case table.Int8:
		b := array.NewInt8Builder(mem)
		defer b.Release()
		b.AppendValues(narrowCodes[int8](codes), valid)
		indices, indexType = b.NewArray(), arrow.PrimitiveTypes.Int8
	case table.Int16:
		b := array.NewInt16Builder(mem)
		defer b.Release()
		b.AppendValues(narrowCodes[int16](codes), valid)
		indices, indexType = b.NewArray(), arrow.PrimitiveTypes.Int16
	default:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.AppendValues(narrowCodes[int32](codes), valid)
		indices, indexType = b.NewArray(), arrow.PrimitiveTypes.Int32
	}
	defer indices.Release()

	db := array.NewStringBuilder(mem)
	defer db.Release()
	db.AppendValues(c.Categories(), nil)
	dict := db.NewArray()
	defer dict.Release()

	typ := &arrow.DictionaryType{IndexType: indexType, ValueType: arrow.BinaryTypes.String}
	return array.NewDictionaryArray(typ, indices, dict), nil
}

func narrowCodes[T int8 | int16 | int32](codes []int32) []T {
	out := make([]T, len(codes))
	for i, code := range codes {
		if code >= 0 {
			out[i] = T(code)
		}
	}
	return out
}

func fromArrow(arr arrow.Array) (table.Column, error) {
	switch a := arr.(type) {
	case *array.Int8:
		return table.NewIntColumnOf(slices.Clone(a.Int8Values())), nil
	case *array.Int16:
		return table.NewIntColumnOf(slices.Clone(a.Int16Values())), nil
	case *array.Int32:
		return table.NewIntColumnOf(slices.Clone(a.Int32Values())), nil
	case *array.Int64:
		return table.NewIntColumnOf(slices.Clone(a.Int64Values())), nil
	case *array.Uint8:
		return table.NewIntColumnOf(slices.Clone(a.Uint8Values())), nil
	case *array.Uint16:
		return table.NewIntColumnOf(slices.Clone(a.Uint16Values())), nil
	case *array.Uint32:
		return table.NewIntColumnOf(slices.Clone(a.Uint32Values())), nil
	case *array.Uint64:
		return table.NewIntColumnOf(slices.Clone(a.Uint64Values())), nil
	case *array.Float32:
		return table.NewFloat32Column(slices.Clone(a.Float32Values())), nil
	case *array.Float64:
		return table.NewFloatColumn(slices.Clone(a.Float64Values())), nil
	case *array.String:
		values := make([]string, a.Len())
		valid := make([]bool, a.Len())
		for i := range values {
			if a.IsNull(i) {
				continue
			}
			values[i] = strings.Clone(a.Value(i))
			valid[i] = true
		}
		return table.NewTextColumn(values, valid), nil
	case *array.Dictionary:
		dict, ok := a.Dictionary().(*array.String)
		if !ok {
			return nil, fmt.Errorf("dictionary values are %s, want utf8", a.Dictionary().DataType())
		}
		categories := make([]string, dict.Len())
		for i := range categories {
			categories[i] = strings.Clone(dict.Value(i))
		}
		codes := make([]int32, a.Len())
		for i := range codes {
			if a.IsNull(i) {
				codes[i] = -1
				continue
			}
			codes[i] = int32(a.GetValueIndex(i))
		}
		return table.NewCategoricalColumn(categories, codes)
	case *array.Timestamp:
		raw := a.TimestampValues()
		seconds := make([]int64, a.Len())
		valid := make([]bool, a.Len())
		for i := range seconds {
			if a.IsNull(i) {
				continue
			}
			seconds[i] = int64(raw[i])
			valid[i] = true
		}
		return table.NewTimestampColumn(seconds, valid), nil
	case *array.List:
		values, ok := a.ListValues().(*array.String)
		if !ok {
			return nil, fmt.Errorf("list values are %s, want utf8", a.ListValues().DataType())
		}
		rows := make([][]string, a.Len())
		valid := make([]bool, a.Len())
		for i := range rows {
			if a.IsNull(i) {
				continue
			}
			start, end := a.ValueOffsets(i)
			row := make([]string, 0, end-start)
			for j := start; j < end; j++ {
				row = append(row, strings.Clone(values.Value(int(j))))
			}
			rows[i] = row
			valid[i] = true
		}
		return table.NewListColumn(rows, valid), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}
