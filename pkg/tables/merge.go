package tables

import (
	"fmt"
)

// JoinType selects relational join semantics for Merge.
type JoinType string

const (
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinInner JoinType = "inner"
	JoinOuter JoinType = "outer"
)

// ValidJoinType reports whether s names a supported join type.
func ValidJoinType(s string) bool {
	switch JoinType(s) {
	case JoinLeft, JoinRight, JoinInner, JoinOuter:
		return true
	}
	return false
}

// MergeOptions controls a Merge call. Either LeftOn/RightOn name the key
// columns on each side, or LeftIndex joins the left table's row index
// against the RightOn column of the right table.
type MergeOptions struct {
	How       JoinType
	LeftOn    string
	RightOn   string
	LeftIndex bool
}

// Merge joins t (left) against right using hash-join semantics. Columns
// present on both sides (other than the join keys) are disambiguated
// with _x / _y suffixes. Unmatched rows contribute nil cells for the
// other side's columns under left/right/outer joins.
func (t *Table) Merge(right *Table, opts MergeOptions) (*Table, error) {
	how := opts.How
	if how == "" {
		how = JoinLeft
	}
	if !ValidJoinType(string(how)) {
		return nil, fmt.Errorf("unsupported join type %q", how)
	}
	if opts.LeftIndex {
		if opts.RightOn == "" {
			return nil, fmt.Errorf("index merge requires a right key column")
		}
		if !right.HasColumn(opts.RightOn) {
			return nil, fmt.Errorf("right table has no column %q", opts.RightOn)
		}
	} else {
		if opts.LeftOn == "" || opts.RightOn == "" {
			return nil, fmt.Errorf("merge requires both left and right key columns")
		}
		if !t.HasColumn(opts.LeftOn) {
			return nil, fmt.Errorf("left table has no column %q", opts.LeftOn)
		}
		if !right.HasColumn(opts.RightOn) {
			return nil, fmt.Errorf("right table has no column %q", opts.RightOn)
		}
	}

	leftCols, rightCols, renames := mergeColumns(t, right, opts)
	out := New(append(append([]string(nil), leftCols...), rightCols...)...)

	// Index the right side by join key.
	rightByKey := make(map[string][]int)
	for i, row := range right.rows {
		k := keyString(row[opts.RightOn])
		rightByKey[k] = append(rightByKey[k], i)
	}

	matchedRight := make([]bool, len(right.rows))
	for li, lrow := range t.rows {
		var k string
		if opts.LeftIndex {
			k = keyString(li)
		} else {
			k = keyString(lrow[opts.LeftOn])
		}
		matches := rightByKey[k]
		if len(matches) == 0 {
			if how == JoinLeft || how == JoinOuter {
				out.rows = append(out.rows, mergedRow(t, lrow, right, nil, renames))
			}
			continue
		}
		for _, ri := range matches {
			matchedRight[ri] = true
			if how == JoinRight {
				// emitted in right-order pass below
				continue
			}
			out.rows = append(out.rows, mergedRow(t, lrow, right, right.rows[ri], renames))
		}
	}

	if how == JoinRight || how == JoinOuter {
		for ri, rrow := range right.rows {
			if how == JoinOuter && matchedRight[ri] {
				continue
			}
			if how == JoinRight {
				k := keyString(rrow[opts.RightOn])
				emitted := false
				for li, lrow := range t.rows {
					var lk string
					if opts.LeftIndex {
						lk = keyString(li)
					} else {
						lk = keyString(lrow[opts.LeftOn])
					}
					if lk == k {
						out.rows = append(out.rows, mergedRow(t, lrow, right, rrow, renames))
						emitted = true
					}
				}
				if !emitted {
					out.rows = append(out.rows, mergedRow(t, nil, right, rrow, renames))
				}
				continue
			}
			out.rows = append(out.rows, mergedRow(t, nil, right, rrow, renames))
		}
	}
	return out, nil
}

// mergeColumns computes the output column order and the rename map for
// columns that collide across the two sides.
func mergeColumns(left, right *Table, opts MergeOptions) (leftCols, rightCols []string, renames map[string]string) {
	renames = make(map[string]string)
	leftSet := make(map[string]bool, len(left.columns))
	for _, c := range left.columns {
		leftSet[c] = true
	}
	leftCols = append([]string(nil), left.columns...)
	for _, c := range right.columns {
		if leftSet[c] {
			// shared join key collapses to one column
			if !opts.LeftIndex && c == opts.LeftOn && c == opts.RightOn {
				continue
			}
			renames[c] = c + "_y"
			for i, lc := range leftCols {
				if lc == c {
					leftCols[i] = c + "_x"
				}
			}
			rightCols = append(rightCols, c+"_y")
			continue
		}
		rightCols = append(rightCols, c)
	}
	return leftCols, rightCols, renames
}

func mergedRow(left *Table, lrow map[string]interface{}, right *Table, rrow map[string]interface{}, renames map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(left.columns)+len(right.columns))
	for _, c := range left.columns {
		name := c
		if _, clash := renames[c]; clash {
			name = c + "_x"
		}
		if lrow != nil {
			out[name] = lrow[c]
		} else {
			out[name] = nil
		}
	}
	for _, c := range right.columns {
		name := c
		if ren, clash := renames[c]; clash {
			name = ren
		}
		if rrow != nil {
			out[name] = rrow[c]
			continue
		}
		// no right match: keep the left value for a collapsed join key
		if _, set := out[name]; !set {
			out[name] = nil
		}
	}
	return out
}

// keyString normalizes join-key values so numerically-equal keys of
// different Go types still match (driver row indexes arrive as int,
// JSON-decoded keys as float64).
func keyString(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return "<nil>"
	case int:
		return fmt.Sprintf("%d", n)
	case int32:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%v", n)
	case float32:
		return keyString(float64(n))
	default:
		return fmt.Sprintf("%v", v)
	}
}
