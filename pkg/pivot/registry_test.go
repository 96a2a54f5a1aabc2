package pivot

import (
	"context"
	"testing"

	"github.com/kestrelsec/huntkit/pkg/query"
	"github.com/kestrelsec/huntkit/pkg/tables"
)

// fakeProvider is an in-memory Provider recording executed calls.
type fakeProvider struct {
	env      string
	families map[string]map[string]*query.Source
	calls    []map[string]interface{}
	result   func(params map[string]interface{}) *tables.Table
}

func (f *fakeProvider) Environment() string { return f.env }

func (f *fakeProvider) Families() map[string]map[string]*query.Source { return f.families }

func (f *fakeProvider) QueryFunc(family, name string) (query.Func, bool) {
	fam, ok := f.families[family]
	if !ok {
		return nil, false
	}
	if _, ok := fam[name]; !ok {
		return nil, false
	}
	return func(ctx context.Context, params map[string]interface{}) (*tables.Table, error) {
		f.calls = append(f.calls, params)
		if f.result != nil {
			return f.result(params), nil
		}
		t := tables.New("echo")
		t.AppendRow(map[string]interface{}{"echo": name})
		return t, nil
	}, true
}

func testProvider() *fakeProvider {
	return &fakeProvider{
		env: "LogAnalytics",
		families: map[string]map[string]*query.Source{
			"WindowsSecurity": {
				"list_host_events": {
					Name:   "list_host_events",
					Family: "WindowsSecurity",
					Table:  "SecurityEvent",
					Query:  "q",
					Params: map[string]query.ParamDecl{
						"host_name": {Type: "str", Required: true},
						"start":     {Type: "datetime", Required: true},
						"end":       {Type: "datetime", Required: true},
					},
				},
				"list_flows_by_ip": {
					Name:   "list_flows_by_ip",
					Family: "WindowsSecurity",
					Query:  "q",
					Params: map[string]query.ParamDecl{
						"ip_address_list": {Type: "list", Required: true},
						"start":           {Type: "datetime", Required: true},
						"end":             {Type: "datetime", Required: true},
					},
				},
				"no_param_query": {
					Name:   "no_param_query",
					Family: "WindowsSecurity",
					Query:  "q",
					Params: map[string]query.ParamDecl{},
				},
			},
		},
	}
}

func TestRegistryUnknownParamEmpty(t *testing.T) {
	pq := NewProviderQueries(testProvider(), nil)

	if refs := pq.QueriesForParam("no_such_param"); len(refs) != 0 {
		t.Errorf("Unknown parameter should return no queries, got %d", len(refs))
	}
	if attrs := pq.AttrsForParam("no_such_param"); len(attrs) != 0 {
		t.Errorf("Unknown parameter should return no attrs, got %d", len(attrs))
	}
	if _, ok := pq.Params("WindowsSecurity.no_such_query"); ok {
		t.Error("Unknown query key should return ok=false")
	}
}

func TestRegistryRequiredExcludesTimeParams(t *testing.T) {
	pq := NewProviderQueries(testProvider(), nil)

	qp, ok := pq.Params("WindowsSecurity.list_host_events")
	if !ok {
		t.Fatal("Expected query params for known query")
	}
	for _, name := range qp.Required {
		if name == "start" || name == "end" {
			t.Errorf("Ignored time parameter %q must not appear in required set", name)
		}
	}
	if len(qp.Required) != 1 || qp.Required[0] != "host_name" {
		t.Errorf("Unexpected required set: %v", qp.Required)
	}
	if len(qp.FullRequired) != 3 {
		t.Errorf("FullRequired should keep time params, got %v", qp.FullRequired)
	}
	if qp.Table != "SecurityEvent" {
		t.Errorf("Expected table metadata, got %q", qp.Table)
	}
}

func TestRegistryParamUsage(t *testing.T) {
	pq := NewProviderQueries(testProvider(), nil)

	refs := pq.QueriesForParam("host_name")
	if len(refs) != 1 || refs[0].Query != "list_host_events" {
		t.Fatalf("Unexpected queries for host_name: %+v", refs)
	}
	if refs[0].Func == nil {
		t.Error("Query ref should carry an executable func")
	}

	typed := pq.QueriesAndTypesForParam("ip_address_list")
	if len(typed) != 1 || typed[0].Type != "list" {
		t.Errorf("Expected list-typed usage, got %+v", typed)
	}

	attrs := pq.AttrsForParam("start")
	if len(attrs) != 2 {
		t.Errorf("start is used by two queries, got %d usages", len(attrs))
	}
	for _, pa := range attrs {
		if pa.Required {
			t.Errorf("Ignored param must not be marked required: %+v", pa)
		}
	}
}

func TestRegistryCustomIgnoreList(t *testing.T) {
	pq := NewProviderQueries(testProvider(), []string{"host_name"})

	qp, _ := pq.Params("WindowsSecurity.list_host_events")
	for _, name := range qp.Required {
		if name == "host_name" {
			t.Error("Custom-ignored parameter must not appear in required set")
		}
	}
	// start/end are required again under a custom ignore list
	found := false
	for _, name := range qp.Required {
		if name == "start" {
			found = true
		}
	}
	if !found {
		t.Error("start should be required when not in the ignore list")
	}
}
