package pivot

import (
	"context"
	"log"
	"reflect"
	"sort"

	"github.com/kestrelsec/huntkit/pkg/query"
	"github.com/kestrelsec/huntkit/pkg/tables"
)

// srcRowIndexCol tags per-row results with their source row so index
// joins can reassemble them. It never survives into final output.
const srcRowIndexCol = "src_row_index"

// warnf reports non-fatal execution problems (join misconfiguration and
// the like). Package-level so tests can intercept it.
var warnf = log.Printf

// QueryExecutor is the second execution stage: given a resolved
// parameter map it decides the call shape (single, bulk, or iterated)
// and performs any requested join of results back onto tabular input.
// Underlying query errors propagate unchanged.
type QueryExecutor struct {
	fn     query.Func
	params map[string]ParamAttrs
}

// NewQueryExecutor wraps a query function with its parameter metadata.
func NewQueryExecutor(fn query.Func, params map[string]ParamAttrs) *QueryExecutor {
	return &QueryExecutor{fn: fn, params: params}
}

// Execute dispatches on input shape. A "data" argument holding a
// *tables.Table selects tabular mode; anything else is scalar/list mode.
func (e *QueryExecutor) Execute(ctx context.Context, args map[string]interface{}) (*tables.Table, error) {
	if data, ok := args["data"].(*tables.Table); ok {
		return e.executeTabular(ctx, data, args)
	}
	return e.executeValues(ctx, args)
}

// joinSpec holds the extracted join directives for tabular mode.
type joinSpec struct {
	how     string
	leftOn  string
	rightOn string
}

// extractJoin pops join/left_on/right_on from args and applies the
// inference rules: left_on without right_on degrades to an index join
// with a warning; right_on without left_on tries to infer left_on from
// a sole remaining column argument, else warns and degrades.
func extractJoin(args map[string]interface{}) joinSpec {
	how, _ := args["join"].(string)
	delete(args, "join")
	if how == "" {
		return joinSpec{}
	}
	leftOn, _ := args["left_on"].(string)
	rightOn, _ := args["right_on"].(string)
	delete(args, "left_on")
	delete(args, "right_on")

	if leftOn != "" && rightOn == "" {
		warnf("pivot: explicit join keys need both 'left_on' and 'right_on'; results will be joined on index")
		leftOn = ""
	}
	if leftOn == "" {
		var candidates []string
		for name := range args {
			if name == "start" || name == "end" || name == "data" {
				continue
			}
			candidates = append(candidates, name)
		}
		if len(candidates) == 1 {
			if col, ok := args[candidates[0]].(string); ok {
				leftOn = col
			}
		}
	}
	if rightOn != "" && leftOn == "" {
		warnf("pivot: could not infer 'left_on' join column from source data; results will be joined on index")
		rightOn = ""
	}
	return joinSpec{how: how, leftOn: leftOn, rightOn: rightOn}
}

// executeTabular runs the query over a source table. Column-bound
// parameters either go as one bulk list argument (list-capable
// declarations) or force one call per source row; a single parameter
// requiring per-row handling degrades all of them to per-row.
func (e *QueryExecutor) executeTabular(ctx context.Context, data *tables.Table, args map[string]interface{}) (*tables.Table, error) {
	callArgs := make(map[string]interface{}, len(args))
	for k, v := range args {
		if k == "data" {
			continue
		}
		callArgs[k] = v
	}
	join := extractJoin(callArgs)

	// Classify column-bound parameters.
	iterParams := make(map[string]string)      // param name -> column name
	bulkParams := make(map[string]interface{}) // param name -> full column values
	for name, val := range callArgs {
		if name == "start" || name == "end" {
			continue
		}
		col, isStr := val.(string)
		if !isStr || !data.HasColumn(col) {
			continue
		}
		decl, declared := e.params[name]
		if !declared {
			continue
		}
		delete(callArgs, name)
		iterParams[name] = col
		if decl.Type == "list" {
			bulkParams[name] = data.Column(col)
		}
	}

	var result *tables.Table
	var err error
	if coveredByBulk(iterParams, bulkParams) {
		merged := make(map[string]interface{}, len(callArgs)+len(bulkParams))
		for k, v := range callArgs {
			merged[k] = v
		}
		for k, v := range bulkParams {
			merged[k] = v
		}
		result, err = e.fn(ctx, merged)
	} else {
		result, err = e.iterateRows(ctx, data, iterParams, callArgs)
	}
	if err != nil {
		return nil, err
	}

	if join.how == "" {
		result.DropColumn(srcRowIndexCol)
		return result, nil
	}
	return e.joinResult(data, result, join)
}

// iterateRows executes the query once per source row, tagging each
// partial result with the source row index. Row order follows the
// source table.
func (e *QueryExecutor) iterateRows(ctx context.Context, data *tables.Table, iterParams map[string]string, callArgs map[string]interface{}) (*tables.Table, error) {
	var parts []*tables.Table
	for i := 0; i < data.NumRows(); i++ {
		row := data.Row(i)
		params := make(map[string]interface{}, len(callArgs)+len(iterParams))
		for k, v := range callArgs {
			params[k] = v
		}
		for param, col := range iterParams {
			params[param] = row[col]
		}
		part, err := e.fn(ctx, params)
		if err != nil {
			return nil, err
		}
		part.SetColumn(srcRowIndexCol, i)
		parts = append(parts, part)
	}
	return tables.Concat(parts...), nil
}

// joinResult merges the source table against the query result per the
// join directives. Misconfiguration warns and returns the unjoined
// result; it never fails.
func (e *QueryExecutor) joinResult(src, result *tables.Table, join joinSpec) (*tables.Table, error) {
	if !tables.ValidJoinType(join.how) {
		warnf("pivot: unknown join type %q; returning unjoined results", join.how)
		result.DropColumn(srcRowIndexCol)
		return result, nil
	}
	if join.leftOn != "" && join.rightOn != "" {
		if !src.HasColumn(join.leftOn) || !result.HasColumn(join.rightOn) {
			warnf("pivot: join columns %q/%q not present in source/result; returning unjoined results",
				join.leftOn, join.rightOn)
			result.DropColumn(srcRowIndexCol)
			return result, nil
		}
		merged, err := src.Merge(result, tables.MergeOptions{
			How:     tables.JoinType(join.how),
			LeftOn:  join.leftOn,
			RightOn: join.rightOn,
		})
		if err != nil {
			return nil, err
		}
		merged.DropColumn(srcRowIndexCol)
		return merged, nil
	}
	if result.HasColumn(srcRowIndexCol) {
		merged, err := src.Merge(result, tables.MergeOptions{
			How:       tables.JoinType(join.how),
			LeftIndex: true,
			RightOn:   srcRowIndexCol,
		})
		if err != nil {
			return nil, err
		}
		merged.DropColumn(srcRowIndexCol)
		return merged, nil
	}
	warnf("pivot: cannot join this result set on index; use explicit 'left_on' and 'right_on' join columns")
	result.DropColumn(srcRowIndexCol)
	return result, nil
}

// executeValues runs the query for scalar and/or list arguments.
// Iterable arguments of list-capable parameters go in one bulk call;
// any iterable bound to a scalar-only parameter forces per-value calls,
// zipping all iterables positionally and truncating at the shortest.
func (e *QueryExecutor) executeValues(ctx context.Context, args map[string]interface{}) (*tables.Table, error) {
	callArgs := make(map[string]interface{}, len(args))
	simpleParams := make(map[string]interface{})
	iterParams := make(map[string][]interface{})

	for name, val := range args {
		if name == "start" || name == "end" {
			callArgs[name] = val
			continue
		}
		vals, iterable := toValueList(val)
		if !iterable {
			simpleParams[name] = val
			continue
		}
		if e.params[name].Type == "list" {
			simpleParams[name] = vals
		}
		iterParams[name] = vals
	}

	if coveredBySimple(iterParams, simpleParams) {
		merged := make(map[string]interface{}, len(callArgs)+len(simpleParams))
		for k, v := range callArgs {
			merged[k] = v
		}
		for k, v := range simpleParams {
			merged[k] = v
		}
		return e.fn(ctx, merged)
	}

	// Mixed shapes: per-value iteration only, bulk copies discarded.
	for name := range iterParams {
		delete(simpleParams, name)
	}

	names := make([]string, 0, len(iterParams))
	for name := range iterParams {
		names = append(names, name)
	}
	sort.Strings(names)

	n := -1
	for _, name := range names {
		if n < 0 || len(iterParams[name]) < n {
			n = len(iterParams[name])
		}
	}

	var parts []*tables.Table
	for i := 0; i < n; i++ {
		params := make(map[string]interface{}, len(callArgs)+len(simpleParams)+len(names))
		for k, v := range callArgs {
			params[k] = v
		}
		for k, v := range simpleParams {
			params[k] = v
		}
		for _, name := range names {
			params[name] = iterParams[name][i]
		}
		part, err := e.fn(ctx, params)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return tables.Concat(parts...), nil
}

// coveredByBulk reports whether every iteration parameter has a bulk
// counterpart, in which case a single bulk call suffices.
func coveredByBulk(iterParams map[string]string, bulkParams map[string]interface{}) bool {
	for name := range iterParams {
		if _, ok := bulkParams[name]; !ok {
			return false
		}
	}
	return true
}

// coveredBySimple is coveredByBulk for scalar/list mode.
func coveredBySimple(iterParams map[string][]interface{}, simpleParams map[string]interface{}) bool {
	for name := range iterParams {
		if _, ok := simpleParams[name]; !ok {
			return false
		}
	}
	return true
}

// toValueList reports whether val is a non-string iterable and if so
// returns its elements. Strings are always scalar.
func toValueList(val interface{}) ([]interface{}, bool) {
	if _, isStr := val.(string); isStr || val == nil {
		return nil, false
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
