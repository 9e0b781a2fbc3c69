package expr

import (
	"math"
	"reflect"

	"github.com/dop251/goja"
)

// Host functions see whatever goja exports: float64 or int64 for
// numbers, []interface{} for arrays, map[string]interface{} for
// objects, and sometimes a raw goja.Value.  The helpers here flatten
// all of that.

func exported(x interface{}) interface{} {
	if v, is := x.(goja.Value); is {
		return v.Export()
	}
	return x
}

func toFloat(x interface{}) (float64, bool) {
	switch v := exported(x).(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toInt(x interface{}) (int, bool) {
	f, ok := toFloat(x)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func toStr(x interface{}) string {
	return jsString(exported(x))
}

func toSlice(x interface{}) ([]interface{}, bool) {
	v, is := exported(x).([]interface{})
	return v, is
}

func toMap(x interface{}) (map[string]interface{}, bool) {
	v, is := exported(x).(map[string]interface{})
	return v, is
}

// looseEq compares like JavaScript's === would for primitives,
// treating all numeric widths as one type, and falls back to deep
// equality for containers.
func looseEq(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if sa, is := a.(string); is {
		sb, is := b.(string)
		return is && sa == sb
	}
	if ba, is := a.(bool); is {
		bb, is := b.(bool)
		return is && ba == bb
	}
	return reflect.DeepEqual(a, b)
}
