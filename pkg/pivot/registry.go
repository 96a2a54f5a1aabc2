package pivot

import (
	"sort"

	"github.com/kestrelsec/huntkit/pkg/query"
)

// defaultIgnoreParams are excluded from required-parameter sets because
// they are supplied from the current timespan, not by callers.
var defaultIgnoreParams = []string{"start", "end"}

// ParamAttrs records one use of a parameter by one query.
type ParamAttrs struct {
	Type     string
	Query    string
	Family   string
	Required bool
}

// QueryParams summarizes the parameter set of a single query.
type QueryParams struct {
	// All lists every declared parameter name.
	All []string
	// Required lists required parameters minus the ignored set.
	Required []string
	// FullRequired lists required parameters without exclusions.
	FullRequired []string
	// ParamAttrs maps parameter name to its attributes for this query.
	ParamAttrs map[string]ParamAttrs
	// Table is the query's default table name, if declared.
	Table string
}

// QueryRef identifies a query using a parameter, with its executable.
type QueryRef struct {
	Query  string
	Family string
	Func   query.Func
}

// QueryTypeRef is a QueryRef plus the parameter's declared type for
// that query.
type QueryTypeRef struct {
	Query  string
	Family string
	Type   string
	Func   query.Func
}

// Provider is the upstream collaborator the registry indexes: a query
// store keyed by data family with executable query functions.
type Provider interface {
	Environment() string
	Families() map[string]map[string]*query.Source
	QueryFunc(family, name string) (query.Func, bool)
}

// ProviderQueries indexes a provider's queries by parameter name and by
// fully-qualified query key. Built once at provider-attach time; pure
// indexing, no I/O.
type ProviderQueries struct {
	provider    Provider
	paramUsage  map[string][]ParamAttrs
	queryParams map[string]QueryParams
}

// NewProviderQueries builds the registry for a provider. ignoreParams
// lists parameter names excluded from required sets; nil selects the
// default {start, end}.
func NewProviderQueries(provider Provider, ignoreParams []string) *ProviderQueries {
	if ignoreParams == nil {
		ignoreParams = defaultIgnoreParams
	}
	ignored := make(map[string]bool, len(ignoreParams))
	for _, p := range ignoreParams {
		ignored[p] = true
	}

	pq := &ProviderQueries{
		provider:    provider,
		paramUsage:  make(map[string][]ParamAttrs),
		queryParams: make(map[string]QueryParams),
	}

	families := provider.Families()
	familyNames := make([]string, 0, len(families))
	for name := range families {
		familyNames = append(familyNames, name)
	}
	sort.Strings(familyNames)

	for _, family := range familyNames {
		sources := families[family]
		queryNames := make([]string, 0, len(sources))
		for name := range sources {
			queryNames = append(queryNames, name)
		}
		sort.Strings(queryNames)

		for _, name := range queryNames {
			src := sources[name]
			required := make(map[string]bool)
			var fullRequired []string
			for pname, decl := range src.Params {
				if decl.Required {
					fullRequired = append(fullRequired, pname)
					if !ignored[pname] {
						required[pname] = true
					}
				}
			}
			sort.Strings(fullRequired)

			attrs := make(map[string]ParamAttrs, len(src.Params))
			all := make([]string, 0, len(src.Params))
			for pname := range src.Params {
				all = append(all, pname)
			}
			sort.Strings(all)

			for _, pname := range all {
				pa := ParamAttrs{
					Type:     src.Params[pname].Type,
					Query:    name,
					Family:   family,
					Required: required[pname],
				}
				attrs[pname] = pa
				pq.paramUsage[pname] = append(pq.paramUsage[pname], pa)
			}

			requiredNames := make([]string, 0, len(required))
			for pname := range required {
				requiredNames = append(requiredNames, pname)
			}
			sort.Strings(requiredNames)

			pq.queryParams[src.Key()] = QueryParams{
				All:          all,
				Required:     requiredNames,
				FullRequired: fullRequired,
				ParamAttrs:   attrs,
				Table:        src.Table,
			}
		}
	}
	return pq
}

// Provider returns the indexed provider.
func (pq *ProviderQueries) Provider() Provider {
	return pq.provider
}

// QueriesForParam returns the queries that accept the named parameter.
// Unknown parameter names return an empty slice, never an error.
func (pq *ProviderQueries) QueriesForParam(param string) []QueryRef {
	var out []QueryRef
	for _, pa := range pq.paramUsage[param] {
		fn, ok := pq.provider.QueryFunc(pa.Family, pa.Query)
		if !ok {
			continue
		}
		out = append(out, QueryRef{Query: pa.Query, Family: pa.Family, Func: fn})
	}
	return out
}

// QueriesAndTypesForParam is QueriesForParam with the declared type of
// the parameter for each query included.
func (pq *ProviderQueries) QueriesAndTypesForParam(param string) []QueryTypeRef {
	var out []QueryTypeRef
	for _, pa := range pq.paramUsage[param] {
		fn, ok := pq.provider.QueryFunc(pa.Family, pa.Query)
		if !ok {
			continue
		}
		out = append(out, QueryTypeRef{Query: pa.Query, Family: pa.Family, Type: pa.Type, Func: fn})
	}
	return out
}

// Params returns the parameter summary for a fully-qualified
// "family.name" query key.
func (pq *ProviderQueries) Params(queryKey string) (QueryParams, bool) {
	qp, ok := pq.queryParams[queryKey]
	return qp, ok
}

// AttrsForParam returns every use of the named parameter across
// queries. A parameter may appear in many queries with different types
// or requiredness.
func (pq *ProviderQueries) AttrsForParam(param string) []ParamAttrs {
	return append([]ParamAttrs(nil), pq.paramUsage[param]...)
}
