package tables

import (
	"fmt"
	"sort"
)

// Table is an ordered-column, row-major result set. Rows are stored as
// maps keyed by column name; the Columns slice fixes display and
// serialization order. Query drivers return Tables and the pivot layer
// concatenates and merges them.
type Table struct {
	columns []string
	colSet  map[string]int
	rows    []map[string]interface{}
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		colSet:  make(map[string]int, len(columns)),
	}
	for i, c := range t.columns {
		t.colSet[c] = i
	}
	return t
}

// FromRows builds a table from pre-existing rows. Column order is taken
// from the columns argument; columns present in rows but not listed are
// appended in sorted order so output stays deterministic.
func FromRows(columns []string, rows []map[string]interface{}) *Table {
	t := New(columns...)
	var extra []string
	seen := map[string]bool{}
	for _, row := range rows {
		for col := range row {
			if _, ok := t.colSet[col]; !ok && !seen[col] {
				extra = append(extra, col)
				seen[col] = true
			}
		}
	}
	sort.Strings(extra)
	for _, col := range extra {
		t.addColumn(col)
	}
	t.rows = rows
	return t
}

func (t *Table) addColumn(name string) {
	if _, ok := t.colSet[name]; ok {
		return
	}
	t.colSet[name] = len(t.columns)
	t.columns = append(t.columns, name)
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colSet[name]
	return ok
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// Row returns the i-th row. The returned map is the stored row, not a
// copy; callers must not mutate it.
func (t *Table) Row(i int) map[string]interface{} {
	return t.rows[i]
}

// Rows returns the underlying row slice.
func (t *Table) Rows() []map[string]interface{} {
	return t.rows
}

// AppendRow adds a row. Unknown columns are added to the column list.
func (t *Table) AppendRow(row map[string]interface{}) {
	for col := range row {
		t.addColumn(col)
	}
	t.rows = append(t.rows, row)
}

// Column returns the values of the named column, one per row. Missing
// cells are nil.
func (t *Table) Column(name string) []interface{} {
	vals := make([]interface{}, len(t.rows))
	for i, row := range t.rows {
		vals[i] = row[name]
	}
	return vals
}

// SetColumn sets a constant value for the named column on every row,
// creating the column if needed.
func (t *Table) SetColumn(name string, value interface{}) {
	t.addColumn(name)
	for _, row := range t.rows {
		row[name] = value
	}
}

// DropColumn removes a column. Dropping a column that does not exist is
// a no-op.
func (t *Table) DropColumn(name string) {
	idx, ok := t.colSet[name]
	if !ok {
		return
	}
	t.columns = append(t.columns[:idx], t.columns[idx+1:]...)
	delete(t.colSet, name)
	for i := idx; i < len(t.columns); i++ {
		t.colSet[t.columns[i]] = i
	}
	for _, row := range t.rows {
		delete(row, name)
	}
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() *Table {
	out := New(t.columns...)
	out.rows = make([]map[string]interface{}, 0, len(t.rows))
	for _, row := range t.rows {
		nr := make(map[string]interface{}, len(row))
		for k, v := range row {
			nr[k] = v
		}
		out.rows = append(out.rows, nr)
	}
	return out
}

// Concat appends the rows of each table in order, producing a new table
// whose column set is the union of all inputs. Row order follows input
// order, matching the order queries were issued in.
func Concat(ts ...*Table) *Table {
	out := New()
	for _, t := range ts {
		if t == nil {
			continue
		}
		for _, col := range t.columns {
			out.addColumn(col)
		}
		for _, row := range t.rows {
			nr := make(map[string]interface{}, len(row))
			for k, v := range row {
				nr[k] = v
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out
}

func (t *Table) String() string {
	return fmt.Sprintf("Table(%d cols, %d rows)", len(t.columns), len(t.rows))
}
