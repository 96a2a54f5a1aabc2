package pivot

import (
	"context"
	"sort"

	"github.com/kestrelsec/huntkit/pkg/entities"
	"github.com/kestrelsec/huntkit/pkg/tables"
)

// BoundQuery is a query function bound for use from an entity type:
// a ParameterResolver feeding a QueryExecutor.
type BoundQuery struct {
	// Name is the registered (possibly table-prefixed) function name.
	Name string
	// Query and Family identify the underlying query source.
	Query  string
	Family string
	// Environment is the provider environment this binding came from.
	Environment string
	// Entity is the entity type the binding is registered under.
	Entity string

	resolver *ParameterResolver
	executor *QueryExecutor
}

// Run executes the bound query without an entity instance: explicit
// arguments plus timespan defaults only.
func (b *BoundQuery) Run(ctx context.Context, args map[string]interface{}) (*tables.Table, error) {
	return b.executor.Execute(ctx, b.resolver.Resolve(nil, args))
}

// RunEntity executes the bound query as a method of ent, sourcing
// mapped parameters from the entity's current attribute values.
// Explicit arguments override extracted ones.
func (b *BoundQuery) RunEntity(ctx context.Context, ent entities.Entity, args map[string]interface{}) (*tables.Table, error) {
	return b.executor.Execute(ctx, b.resolver.Resolve(ent, args))
}

// Pivot is the registry of bound queries per entity type. It replaces
// runtime attribute injection with explicit registration: lookups go
// through Get/Lookup rather than dynamic attributes on entity types.
// Bindings are namespaced by provider environment, so providers with
// overlapping query names coexist.
type Pivot struct {
	timespan TimespanFunc
	// entity type -> environment -> bound name
	byEntity map[string]map[string]map[string]*BoundQuery
}

// New creates an empty pivot registry with a timespan accessor.
func New(timespan TimespanFunc) *Pivot {
	return &Pivot{
		timespan: timespan,
		byEntity: make(map[string]map[string]map[string]*BoundQuery),
	}
}

// AttachProvider indexes a provider and registers a bound query for
// every (entity type × query) pair that shares a mapped parameter.
// Re-attaching the same provider overwrites its previous bindings.
func (p *Pivot) AttachProvider(provider Provider) *ProviderQueries {
	pq := NewProviderQueries(provider, nil)
	p.attach(pq)
	return pq
}

func (p *Pivot) attach(pq *ProviderQueries) {
	env := pq.Provider().Environment()

	// Re-attach replaces this environment's bindings only; other
	// environments' entries stay untouched.
	for _, envs := range p.byEntity {
		delete(envs, env)
	}

	paramNames := make([]string, 0, len(ParamEntityMap))
	for name := range ParamEntityMap {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)

	for _, paramName := range paramNames {
		bindings := ParamEntityMap[paramName]
		queries := pq.QueriesForParam(paramName)
		if len(bindings) == 0 || len(queries) == 0 {
			continue
		}
		for _, binding := range bindings {
			for _, ref := range queries {
				qp, ok := pq.Params(ref.Family + "." + ref.Query)
				if !ok || len(qp.All) == 0 {
					// queries without parameters are not bindable
					continue
				}
				attrMap := attrMapFor(qp, binding.Entity)
				bound := &BoundQuery{
					Name:        boundName(qp, ref.Query),
					Query:       ref.Query,
					Family:      ref.Family,
					Environment: env,
					Entity:      binding.Entity,
					resolver:    NewParameterResolver(attrMap, p.timespan),
					executor:    NewQueryExecutor(ref.Func, qp.ParamAttrs),
				}
				envs, ok := p.byEntity[binding.Entity]
				if !ok {
					envs = make(map[string]map[string]*BoundQuery)
					p.byEntity[binding.Entity] = envs
				}
				ns, ok := envs[env]
				if !ok {
					ns = make(map[string]*BoundQuery)
					envs[env] = ns
				}
				ns[bound.Name] = bound
			}
		}
	}
}

// attrMapFor restricts ParamEntityMap to parameters this query declares
// that are sourced from the given entity type.
func attrMapFor(qp QueryParams, entityType string) map[string]string {
	out := make(map[string]string)
	for _, param := range qp.All {
		for _, binding := range ParamEntityMap[param] {
			if binding.Entity == entityType {
				out[param] = binding.Attr
				break
			}
		}
	}
	return out
}

// boundName prefixes the query name with its default table for
// disambiguation when several families expose same-named queries.
func boundName(qp QueryParams, queryName string) string {
	if qp.Table != "" {
		return qp.Table + "_" + queryName
	}
	return queryName
}

// EntityTypes returns the entity types that have bound queries.
func (p *Pivot) EntityTypes() []string {
	out := make([]string, 0, len(p.byEntity))
	for name, envs := range p.byEntity {
		total := 0
		for _, ns := range envs {
			total += len(ns)
		}
		if total > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Lookup returns the bound queries for an entity type across all
// attached environments, sorted by name then environment. Unknown
// entity types return an empty slice.
func (p *Pivot) Lookup(entityType string) []*BoundQuery {
	var out []*BoundQuery
	for _, ns := range p.byEntity[entityType] {
		for _, b := range ns {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Environment < out[j].Environment
	})
	return out
}

// Get returns a bound query by entity type and registered name. When
// several environments bind the same name, the lowest environment name
// wins; use GetIn to address one environment explicitly.
func (p *Pivot) Get(entityType, name string) (*BoundQuery, bool) {
	envs := p.byEntity[entityType]
	envNames := make([]string, 0, len(envs))
	for env := range envs {
		envNames = append(envNames, env)
	}
	sort.Strings(envNames)
	for _, env := range envNames {
		if b, ok := envs[env][name]; ok {
			return b, true
		}
	}
	return nil, false
}

// GetIn returns a bound query from one environment's namespace.
func (p *Pivot) GetIn(entityType, environment, name string) (*BoundQuery, bool) {
	b, ok := p.byEntity[entityType][environment][name]
	return b, ok
}
