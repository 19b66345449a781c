// Package table provides the in-memory columnar table that every stage of
// the flight pipeline reads and rewrites.
package table

import (
	"fmt"
	"math"
)

// Kind is the closed set of column representations a table may hold.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindText
	KindCategorical
	KindTimestamp
	KindList
)

var kindNames = map[Kind]string{
	KindInteger:     "integer",
	KindFloat:       "float",
	KindText:        "text",
	KindCategorical: "categorical",
	KindTimestamp:   "timestamp",
	KindList:        "list",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

// IntWidth is the storage width of an integer column.
type IntWidth int

const (
	Int8 IntWidth = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
)

var intWidthNames = [...]string{"int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64"}

func (w IntWidth) String() string {
	if w < Int8 || w > Uint64 {
		return fmt.Sprintf("intwidth(%d)", int(w))
	}
	return intWidthNames[w]
}

// ParseIntWidth is the inverse of IntWidth.String
func ParseIntWidth(s string) (IntWidth, error) {
	for i, name := range intWidthNames {
		if name == s {
			return IntWidth(i), nil
		}
	}
	return 0, fmt.Errorf("unknown integer width %q", s)
}

// Signed reports whether the width stores negative values.
func (w IntWidth) Signed() bool { return w <= Int64 }

// Bytes is the per-value storage size.
func (w IntWidth) Bytes() int {
	switch w {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32:
		return 4
	default:
		return 8
	}
}

// Fits reports whether every value in [min, max] is representable.
func (w IntWidth) Fits(min, max int64) bool {
	switch w {
	case Int8:
		return min >= math.MinInt8 && max <= math.MaxInt8
	case Int16:
		return min >= math.MinInt16 && max <= math.MaxInt16
	case Int32:
		return min >= math.MinInt32 && max <= math.MaxInt32
	case Int64:
		return true
	case Uint8:
		return min >= 0 && max <= math.MaxUint8
	case Uint16:
		return min >= 0 && max <= math.MaxUint16
	case Uint32:
		return min >= 0 && max <= math.MaxUint32
	case Uint64:
		return min >= 0
	}
	return false
}

// SmallestWidth returns the narrowest width holding [min, max]: unsigned
// when min is non-negative, signed otherwise.
func SmallestWidth(min, max int64) IntWidth {
	candidates := []IntWidth{Int8, Int16, Int32, Int64}
	if min >= 0 {
		candidates = []IntWidth{Uint8, Uint16, Uint32, Uint64}
	}
	for _, w := range candidates {
		if w.Fits(min, max) {
			return w
		}
	}
	return Int64
}

// FloatWidth is the storage width of a float column.
type FloatWidth int

const (
	Float64 FloatWidth = iota
	Float32
)

func (w FloatWidth) String() string {
	if w == Float32 {
		return "float32"
	}
	return "float64"
}

// ParseFloatWidth is the inverse of FloatWidth.String
func ParseFloatWidth(s string) (FloatWidth, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	}
	return 0, fmt.Errorf("unknown float width %q", s)
}

// TimestampLayout is used when timestamps are rendered as text.
const TimestampLayout = "2006-01-02 15:04:05"
