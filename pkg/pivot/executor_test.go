package pivot

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrelsec/huntkit/pkg/query"
	"github.com/kestrelsec/huntkit/pkg/tables"
)

// callRecorder returns a query func capturing every parameter map it
// receives and a pointer to the recorded calls.
func callRecorder(result func(params map[string]interface{}) *tables.Table) (query.Func, *[]map[string]interface{}) {
	var calls []map[string]interface{}
	fn := func(ctx context.Context, params map[string]interface{}) (*tables.Table, error) {
		calls = append(calls, params)
		if result != nil {
			return result(params), nil
		}
		t := tables.New("out")
		t.AppendRow(map[string]interface{}{"out": len(calls)})
		return t, nil
	}
	return fn, &calls
}

func hostTable(names ...string) *tables.Table {
	t := tables.New("host_name")
	for _, n := range names {
		t.AppendRow(map[string]interface{}{"host_name": n})
	}
	return t
}

func TestTabularBulkSingleCall(t *testing.T) {
	fn, calls := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name": {Type: "list", Query: "q", Family: "f"},
	})

	_, err := exec.Execute(context.Background(), map[string]interface{}{
		"data":      hostTable("h1", "h2"),
		"host_name": "host_name",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("List-capable column param should execute once, got %d calls", len(*calls))
	}
	got, ok := (*calls)[0]["host_name"].([]interface{})
	if !ok || len(got) != 2 || got[0] != "h1" || got[1] != "h2" {
		t.Errorf("Bulk call should receive full column values, got %v", (*calls)[0]["host_name"])
	}
}

func TestTabularPerRowIteration(t *testing.T) {
	fn, calls := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name": {Type: "str", Query: "q", Family: "f"},
	})

	out, err := exec.Execute(context.Background(), map[string]interface{}{
		"data":      hostTable("h1", "h2"),
		"host_name": "host_name",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("Scalar column param should execute per row, got %d calls", len(*calls))
	}
	if (*calls)[0]["host_name"] != "h1" || (*calls)[1]["host_name"] != "h2" {
		t.Errorf("Per-row calls out of order: %v", *calls)
	}
	if out.NumRows() != 2 {
		t.Fatalf("Expected concatenated output of 2 rows, got %d", out.NumRows())
	}
	if out.Row(0)["out"] != 1 || out.Row(1)["out"] != 2 {
		t.Error("Concatenated output should preserve source row order")
	}
	if out.HasColumn(srcRowIndexCol) {
		t.Error("Helper src_row_index column must not survive into output")
	}
}

func TestTabularMixedDegradesToPerRow(t *testing.T) {
	fn, calls := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name":    {Type: "list"},
		"account_name": {Type: "str"},
	})

	data := tables.New("host_name", "account_name")
	data.AppendRow(map[string]interface{}{"host_name": "h1", "account_name": "a1"})
	data.AppendRow(map[string]interface{}{"host_name": "h2", "account_name": "a2"})

	_, err := exec.Execute(context.Background(), map[string]interface{}{
		"data":         data,
		"host_name":    "host_name",
		"account_name": "account_name",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// one scalar-only param forces per-row treatment for all params
	if len(*calls) != 2 {
		t.Fatalf("Mixed params must degrade to per-row, got %d calls", len(*calls))
	}
	if _, isList := (*calls)[0]["host_name"].([]interface{}); isList {
		t.Error("Per-row call must not receive bulk list values")
	}
}

func TestTabularIndexJoinRoundTrip(t *testing.T) {
	fn, _ := callRecorder(func(params map[string]interface{}) *tables.Table {
		t := tables.New("found")
		t.AppendRow(map[string]interface{}{"found": "for-" + params["host_name"].(string)})
		return t
	})
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name": {Type: "str"},
	})

	src := tables.New("host_name", "key")
	src.AppendRow(map[string]interface{}{"host_name": "h1", "key": "k1"})
	src.AppendRow(map[string]interface{}{"host_name": "h2", "key": "k2"})

	out, err := exec.Execute(context.Background(), map[string]interface{}{
		"data":      src,
		"host_name": "host_name",
		"join":      "left",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("Index left join should yield one row per source row, got %d", out.NumRows())
	}
	if out.HasColumn(srcRowIndexCol) {
		t.Error("Helper column must be dropped from joined output")
	}
	if out.Row(0)["key"] != "k1" || out.Row(0)["found"] != "for-h1" {
		t.Errorf("Row 0 misjoined: %v", out.Row(0))
	}
	if out.Row(1)["key"] != "k2" || out.Row(1)["found"] != "for-h2" {
		t.Errorf("Row 1 misjoined: %v", out.Row(1))
	}
}

func TestTabularExplicitKeyJoin(t *testing.T) {
	fn, _ := callRecorder(func(params map[string]interface{}) *tables.Table {
		t := tables.New("rhost", "severity")
		t.AppendRow(map[string]interface{}{"rhost": params["host_name"], "severity": "high"})
		return t
	})
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name": {Type: "str"},
	})

	out, err := exec.Execute(context.Background(), map[string]interface{}{
		"data":      hostTable("h1", "h2"),
		"host_name": "host_name",
		"join":      "inner",
		"left_on":   "host_name",
		"right_on":  "rhost",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("Expected 2 joined rows, got %d", out.NumRows())
	}
	if out.Row(0)["severity"] != "high" {
		t.Errorf("Join did not carry result columns: %v", out.Row(0))
	}
}

func TestTabularJoinMissingKeysWarnsAndFallsBack(t *testing.T) {
	var warnings []string
	origWarnf := warnf
	warnf = func(format string, args ...interface{}) { warnings = append(warnings, format) }
	defer func() { warnf = origWarnf }()

	fn, _ := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name": {Type: "list"},
	})

	// bulk path: result has no src_row_index, so an index join cannot work
	out, err := exec.Execute(context.Background(), map[string]interface{}{
		"data":      hostTable("h1"),
		"host_name": "host_name",
		"join":      "left",
	})
	if err != nil {
		t.Fatalf("Join misconfiguration must not fail: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("Expected a warning about index join fallback")
	}
	if out.HasColumn(srcRowIndexCol) {
		t.Error("Helper column must be dropped on fallback path")
	}
}

func TestTabularJoinBadColumnsWarnsAndFallsBack(t *testing.T) {
	var warnings []string
	origWarnf := warnf
	warnf = func(format string, args ...interface{}) { warnings = append(warnings, format) }
	defer func() { warnf = origWarnf }()

	fn, _ := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name": {Type: "str"},
	})

	out, err := exec.Execute(context.Background(), map[string]interface{}{
		"data":      hostTable("h1"),
		"host_name": "host_name",
		"join":      "left",
		"left_on":   "no_such_col",
		"right_on":  "also_missing",
	})
	if err != nil {
		t.Fatalf("Bad join columns must degrade, not fail: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("Expected a warning for nonexistent join columns")
	}
	if out == nil || out.NumRows() == 0 {
		t.Error("Fallback should return the unjoined result")
	}
}

func TestValuesBulkListCall(t *testing.T) {
	fn, calls := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"ip_address_list": {Type: "list"},
	})

	_, err := exec.Execute(context.Background(), map[string]interface{}{
		"ip_address_list": []string{"10.0.0.1", "10.0.0.2"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("List value for list-capable param should execute once, got %d", len(*calls))
	}
}

func TestValuesZipTruncation(t *testing.T) {
	fn, calls := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name":    {Type: "str"},
		"account_name": {Type: "str"},
	})

	_, err := exec.Execute(context.Background(), map[string]interface{}{
		"host_name":    []string{"h1", "h2", "h3"},
		"account_name": []string{"a1", "a2"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("Zip must truncate at shortest iterable, got %d calls", len(*calls))
	}
	c0, c1 := (*calls)[0], (*calls)[1]
	if c0["host_name"] != "h1" || c0["account_name"] != "a1" {
		t.Errorf("Call 0 pairing wrong: %v", c0)
	}
	if c1["host_name"] != "h2" || c1["account_name"] != "a2" {
		t.Errorf("Call 1 pairing wrong: %v", c1)
	}
	for _, c := range *calls {
		if c["host_name"] == "h3" {
			t.Error("Third value of longer iterable must never be used")
		}
	}
}

func TestValuesScalarAndIterableMix(t *testing.T) {
	fn, calls := callRecorder(nil)
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name":    {Type: "str"},
		"account_name": {Type: "str"},
	})

	_, err := exec.Execute(context.Background(), map[string]interface{}{
		"host_name":    []string{"h1", "h2"},
		"account_name": "admin",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("Expected per-value iteration, got %d calls", len(*calls))
	}
	for i, c := range *calls {
		if c["account_name"] != "admin" {
			t.Errorf("Call %d should carry the scalar param: %v", i, c)
		}
	}
}

func TestUnderlyingErrorPropagates(t *testing.T) {
	sentinel := errors.New("backend down")
	fn := func(ctx context.Context, params map[string]interface{}) (*tables.Table, error) {
		return nil, sentinel
	}
	exec := NewQueryExecutor(fn, map[string]ParamAttrs{
		"host_name": {Type: "str"},
	})

	_, err := exec.Execute(context.Background(), map[string]interface{}{"host_name": "h1"})
	if !errors.Is(err, sentinel) {
		t.Errorf("Underlying errors must propagate unchanged, got %v", err)
	}
}
