package table

import (
	"fmt"
	"slices"
)

// Table is an ordered set of equal-length named columns. A table has a
// single owner at a time and is not safe for concurrent mutation.
type Table struct {
	names   []string
	columns map[string]Column
	rows    int
}

// New creates an empty table
func New() *Table {
	return &Table{columns: make(map[string]Column)}
}

// Add appends a column. The first column fixes the row count.
func (t *Table) Add(name string, col Column) error {
	if _, exists := t.columns[name]; exists {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(t.names) > 0 && col.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", name, col.Len(), t.rows)
	}
	if len(t.names) == 0 {
		t.rows = col.Len()
	}
	t.names = append(t.names, name)
	t.columns[name] = col
	return nil
}

// MustAdd is Add for table literals in tests and fixtures; it panics on error.
func (t *Table) MustAdd(name string, col Column) *Table {
	if err := t.Add(name, col); err != nil {
		panic(err)
	}
	return t
}

// Set replaces an existing column, keeping its position.
func (t *Table) Set(name string, col Column) error {
	if _, exists := t.columns[name]; !exists {
		return fmt.Errorf("column %q not found", name)
	}
	if col.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", name, col.Len(), t.rows)
	}
	t.columns[name] = col
	return nil
}

// Drop removes columns; unknown names are ignored.
func (t *Table) Drop(names ...string) {
	for _, name := range names {
		if _, exists := t.columns[name]; !exists {
			continue
		}
		delete(t.columns, name)
		t.names = slices.DeleteFunc(t.names, func(n string) bool { return n == name })
	}
	if len(t.names) == 0 {
		t.rows = 0
	}
}

// Column retrieves a column by name
func (t *Table) Column(name string) (Column, bool) {
	col, ok := t.columns[name]
	return col, ok
}

// Names returns the column names in table order
func (t *Table) Names() []string {
	return slices.Clone(t.names)
}

// NumRows returns the number of rows
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns
func (t *Table) NumCols() int { return len(t.names) }

// Project returns a table holding only the named columns, in the requested
// order. Columns are shared, not copied.
func (t *Table) Project(names []string) (*Table, error) {
	out := New()
	for _, name := range names {
		col, ok := t.columns[name]
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		if err := out.Add(name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Clone returns a shallow copy: the column set is independent, the column
// data is shared.
func (t *Table) Clone() *Table {
	out := &Table{
		names:   slices.Clone(t.names),
		columns: make(map[string]Column, len(t.columns)),
		rows:    t.rows,
	}
	for name, col := range t.columns {
		out.columns[name] = col
	}
	return out
}

// MemoryUsage returns the approximate bytes held by column data
func (t *Table) MemoryUsage() int64 {
	var total int64
	for _, name := range t.names {
		total += int64(len(name))
		total += t.columns[name].MemoryUsage()
	}
	return total
}

// Row renders row i as text keyed by column name; null cells are omitted.
func (t *Table) Row(i int) (map[string]string, error) {
	if i < 0 || i >= t.rows {
		return nil, fmt.Errorf("index %d out of range [0, %d)", i, t.rows)
	}
	row := make(map[string]string, len(t.names))
	for _, name := range t.names {
		if v, ok := t.columns[name].Format(i); ok {
			row[name] = v
		}
	}
	return row, nil
}
