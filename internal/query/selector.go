package query

import (
	"reflect"

	"github.com/kilupskalvis/doclink/internal/models"
)

// Match reports whether doc satisfies the selector. An empty selector
// matches every document.
//
// Supported operators: $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists,
// and the combinators $and, $or, $not.
func (s Selector) Match(doc *models.Document) bool {
	for key, cond := range s {
		switch key {
		case "$and":
			for _, sub := range asList(cond) {
				if !asSelector(sub).Match(doc) {
					return false
				}
			}
		case "$or":
			matched := false
			for _, sub := range asList(cond) {
				if asSelector(sub).Match(doc) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		case "$not":
			if asSelector(cond).Match(doc) {
				return false
			}
		default:
			if !matchField(doc, key, cond) {
				return false
			}
		}
	}
	return true
}

// EqualityFields returns the top-level fields compared against a scalar
// with implicit equality or $eq.
func (s Selector) EqualityFields() map[string]interface{} {
	fields := make(map[string]interface{})
	for key, cond := range s {
		if len(key) > 0 && key[0] == '$' {
			continue
		}
		if ops, ok := operators(cond); ok {
			if v, ok := ops["$eq"]; ok && isScalar(v) {
				fields[key] = v
			}
			continue
		}
		if isScalar(cond) {
			fields[key] = cond
		}
	}
	return fields
}

func matchField(doc *models.Document, path string, cond interface{}) bool {
	val, present := doc.Get(path)

	ops, ok := operators(cond)
	if !ok {
		return present && equalValues(val, cond)
	}

	for op, arg := range ops {
		if !applyOperator(op, val, present, arg) {
			return false
		}
	}
	return true
}

func applyOperator(op string, val interface{}, present bool, arg interface{}) bool {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$eq":
		return present && equalValues(val, arg)
	case "$ne":
		return !present || !equalValues(val, arg)
	case "$gt":
		return present && orderable(val, arg) && compareValues(val, arg) > 0
	case "$gte":
		return present && orderable(val, arg) && compareValues(val, arg) >= 0
	case "$lt":
		return present && orderable(val, arg) && compareValues(val, arg) < 0
	case "$lte":
		return present && orderable(val, arg) && compareValues(val, arg) <= 0
	case "$in":
		if !present {
			return false
		}
		for _, candidate := range asList(arg) {
			if equalValues(val, candidate) {
				return true
			}
		}
		return false
	case "$nin":
		if !present {
			return true
		}
		for _, candidate := range asList(arg) {
			if equalValues(val, candidate) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// operators returns cond as an operator map when every key is an operator.
func operators(cond interface{}) (map[string]interface{}, bool) {
	m := asMap(cond)
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case Selector:
		return m
	default:
		return nil
	}
}

func asSelector(v interface{}) Selector {
	return Selector(asMap(v))
}

func asList(v interface{}) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case []Selector:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func equalValues(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// rank orders values of different kinds: nil < bool < number < string < other.
func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 4
}

func orderable(a, b interface{}) bool {
	return rank(a) == rank(b) && rank(a) < 4
}

func compareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 1:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	}
	return 0
}
