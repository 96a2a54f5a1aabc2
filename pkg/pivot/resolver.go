package pivot

import (
	"github.com/kestrelsec/huntkit/pkg/entities"
)

// ParameterResolver is the first execution stage: it turns an optional
// entity instance plus explicit arguments into the parameter map handed
// to the QueryExecutor. Entity attributes are read at call time, never
// cached; the timespan accessor is likewise evaluated per call.
type ParameterResolver struct {
	attrMap  map[string]string
	timespan TimespanFunc
}

// NewParameterResolver creates a resolver over a parameter→attribute
// map and a timespan accessor.
func NewParameterResolver(attrMap map[string]string, timespan TimespanFunc) *ParameterResolver {
	return &ParameterResolver{attrMap: attrMap, timespan: timespan}
}

// Resolve builds the executor parameter map. Precedence, lowest first:
// entity attribute values, timespan defaults, explicit arguments.
// Entity attributes that are unset are silently omitted.
func (r *ParameterResolver) Resolve(ent entities.Entity, args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(r.attrMap)+len(args)+2)

	if ent != nil {
		for param, attr := range r.attrMap {
			if val, ok := ent.Attr(attr); ok {
				out[param] = val
			}
		}
	}

	_, haveStart := args["start"]
	_, haveEnd := args["end"]
	if !haveStart || !haveEnd {
		ts := r.timespan()
		if !haveStart {
			out["start"] = ts.Start
		}
		if !haveEnd {
			out["end"] = ts.End
		}
	}

	for name, val := range args {
		out[name] = val
	}
	return out
}
