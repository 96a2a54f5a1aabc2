package tables

import (
	"testing"
)

func TestAppendRowAddsColumns(t *testing.T) {
	tbl := New("host_name")
	tbl.AppendRow(map[string]interface{}{"host_name": "h1", "os": "linux"})

	if tbl.NumRows() != 1 {
		t.Fatalf("Expected 1 row, got %d", tbl.NumRows())
	}
	if !tbl.HasColumn("os") {
		t.Error("Expected 'os' column to be added from row")
	}
	cols := tbl.Columns()
	if cols[0] != "host_name" {
		t.Errorf("Expected first column 'host_name', got %q", cols[0])
	}
}

func TestColumnValues(t *testing.T) {
	tbl := New("host_name")
	tbl.AppendRow(map[string]interface{}{"host_name": "h1"})
	tbl.AppendRow(map[string]interface{}{"host_name": "h2"})

	vals := tbl.Column("host_name")
	if len(vals) != 2 || vals[0] != "h1" || vals[1] != "h2" {
		t.Errorf("Unexpected column values: %v", vals)
	}

	// Missing cells come back as nil
	missing := tbl.Column("no_such")
	if len(missing) != 2 || missing[0] != nil {
		t.Errorf("Expected nil values for missing column, got %v", missing)
	}
}

func TestDropColumnIgnoresMissing(t *testing.T) {
	tbl := New("a", "b")
	tbl.AppendRow(map[string]interface{}{"a": 1, "b": 2})

	tbl.DropColumn("no_such") // must not panic or error
	tbl.DropColumn("a")

	if tbl.HasColumn("a") {
		t.Error("Column 'a' should have been dropped")
	}
	if _, ok := tbl.Row(0)["a"]; ok {
		t.Error("Row cell for dropped column should be removed")
	}
	if !tbl.HasColumn("b") {
		t.Error("Column 'b' should survive")
	}
}

func TestConcatPreservesOrder(t *testing.T) {
	t1 := New("v")
	t1.AppendRow(map[string]interface{}{"v": "a"})
	t2 := New("v", "extra")
	t2.AppendRow(map[string]interface{}{"v": "b", "extra": 1})

	out := Concat(t1, t2)
	if out.NumRows() != 2 {
		t.Fatalf("Expected 2 rows, got %d", out.NumRows())
	}
	if out.Row(0)["v"] != "a" || out.Row(1)["v"] != "b" {
		t.Error("Concat should preserve input row order")
	}
	if !out.HasColumn("extra") {
		t.Error("Concat should union column sets")
	}
}

func TestSetColumn(t *testing.T) {
	tbl := New("v")
	tbl.AppendRow(map[string]interface{}{"v": 1})
	tbl.AppendRow(map[string]interface{}{"v": 2})
	tbl.SetColumn("tag", "x")

	for i := 0; i < tbl.NumRows(); i++ {
		if tbl.Row(i)["tag"] != "x" {
			t.Errorf("Row %d missing constant column value", i)
		}
	}
}
