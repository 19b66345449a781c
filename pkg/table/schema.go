package table

// Role refines a Kind with how the optimizer should treat the column.
type Role int

const (
	// RoleNone needs no further classification (numeric, already encoded, lists).
	RoleNone Role = iota
	// RoleCategoricalCandidate is plain text eligible for categorical encoding.
	RoleCategoricalCandidate
	// RoleTime is plain text declared to carry dates or times.
	RoleTime
)

func (r Role) String() string {
	switch r {
	case RoleCategoricalCandidate:
		return "categorical-candidate"
	case RoleTime:
		return "time"
	default:
		return "none"
	}
}

// Field describes one column of a table.
type Field struct {
	Name string
	Kind Kind
	Role Role
}

// Schema is the per-table column descriptor, computed once so callers branch
// on a closed set of kinds instead of probing values.
type Schema struct {
	Fields []Field
}

// Describe computes the schema of t. timeColumns names text columns that
// carry dates or times.
func Describe(t *Table, timeColumns map[string]struct{}) Schema {
	fields := make([]Field, 0, t.NumCols())
	for _, name := range t.names {
		col := t.columns[name]
		f := Field{Name: name, Kind: col.Kind()}
		if f.Kind == KindText {
			if _, ok := timeColumns[name]; ok {
				f.Role = RoleTime
			} else {
				f.Role = RoleCategoricalCandidate
			}
		}
		fields = append(fields, f)
	}
	return Schema{Fields: fields}
}

// Field looks up a field by name
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
