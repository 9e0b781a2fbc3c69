package storage

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// The mem and bolt backends filter rows in memory.  The helpers here
// keep their semantics identical.

func asFloat(x interface{}) (float64, bool) {
	switch v := x.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Eq compares two row values, treating all numeric types as one.
func Eq(a, b interface{}) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// MatchWhere reports whether the row satisfies every equality in
// where.  An empty (or nil) where matches everything.
func MatchWhere(row, where map[string]interface{}) bool {
	for col, want := range where {
		got, has := row[col]
		if !has || !Eq(got, want) {
			return false
		}
	}
	return true
}

// Compare orders two row values for OrderBy: nils first, then bools,
// numbers, strings, and finally everything else by its JSON image.
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case bb:
			return -1
		}
		return 1
	case 2:
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		switch {
		case fa < fb:
			return -1
		case fb < fa:
			return 1
		}
		return 0
	case 3:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sb < sa:
			return 1
		}
		return 0
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	switch {
	case string(ja) < string(jb):
		return -1
	case string(jb) < string(ja):
		return 1
	}
	return 0
}

func rank(x interface{}) int {
	if x == nil {
		return 0
	}
	if _, ok := x.(bool); ok {
		return 1
	}
	if _, ok := asFloat(x); ok {
		return 2
	}
	if _, ok := x.(string); ok {
		return 3
	}
	return 4
}

// ApplyQuery filters, orders, and windows rows per q.  The returned
// slice aliases the given rows.
func ApplyQuery(rows []map[string]interface{}, q QueryOptions) []map[string]interface{} {
	acc := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if MatchWhere(row, q.Where) {
			acc = append(acc, row)
		}
	}
	if q.OrderBy != "" {
		col := q.OrderBy
		sort.SliceStable(acc, func(i, j int) bool {
			c := Compare(acc[i][col], acc[j][col])
			if q.Desc {
				return 0 < c
			}
			return c < 0
		})
	}
	if 0 < q.Offset {
		if len(acc) <= q.Offset {
			return nil
		}
		acc = acc[q.Offset:]
	}
	if 0 < q.Limit && q.Limit < len(acc) {
		acc = acc[:q.Limit]
	}
	return acc
}

// CopyRow makes a shallow copy, which is enough to keep callers from
// mutating a backend's storage in place.
func CopyRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// PrepareRow checks an incoming row against the table definition,
// fills column defaults, and assigns an "_id" when the row doesn't
// bring one.  A supplied "_id" must be a non-empty string: ids are
// compared and stored as strings, so a numeric id would never match a
// later lookup.  The input row is not modified.
func PrepareRow(table string, def *TableDef, row map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(def.Columns)+1)
	for col, v := range row {
		if col != "_id" {
			if _, ok := def.Columns[col]; !ok {
				return nil, &UnknownColumn{Table: table, Column: col}
			}
		}
		out[col] = v
	}
	for col, cd := range def.Columns {
		if _, ok := out[col]; !ok && cd.Default != nil {
			out[col] = cd.Default
		}
	}
	if v, ok := out["_id"]; ok {
		if id, is := v.(string); !is || id == "" {
			return nil, &BadRowID{Table: table, Value: v}
		}
	} else {
		out["_id"] = uuid.NewString()
	}
	return out, nil
}

// CheckColumns verifies that every key in m is a defined column (or
// "_id").
func CheckColumns(table string, def *TableDef, m map[string]interface{}) error {
	for col := range m {
		if col == "_id" {
			continue
		}
		if _, ok := def.Columns[col]; !ok {
			return &UnknownColumn{Table: table, Column: col}
		}
	}
	return nil
}
