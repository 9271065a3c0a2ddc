package engine

import (
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// Condition operators. The set is closed; anything else fails safe to
// non-match at evaluation time and is rejected at rule-save time.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

var operators = map[string]bool{
	OpEquals:      true,
	OpNotEquals:   true,
	OpContains:    true,
	OpNotContains: true,
	OpGreaterThan: true,
	OpLessThan:    true,
	OpIsEmpty:     true,
	OpIsNotEmpty:  true,
	OpIn:          true,
	OpNotIn:       true,
}

// KnownOperator reports whether op belongs to the closed operator set.
func KnownOperator(op string) bool {
	return operators[op]
}

// Condition is a single predicate over event fields. Conditions on one
// automation combine with AND semantics.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// EvaluateConditions applies every condition against the event data with AND
// semantics, short-circuiting on the first miss. An empty list matches.
// Evaluation never errors: malformed operands make the condition non-matching.
func EvaluateConditions(conds []Condition, ev *Event) bool {
	for _, c := range conds {
		if !evaluateCondition(c, ev) {
			return false
		}
	}
	return true
}

func evaluateCondition(c Condition, ev *Event) bool {
	val, _ := lookupField(ev.Data, c.Field)

	switch c.Operator {
	case OpEquals:
		return looseEqual(val, c.Value)
	case OpNotEquals:
		return !looseEqual(val, c.Value)
	case OpContains:
		return containsValue(val, c.Value)
	case OpNotContains:
		return !containsValue(val, c.Value)
	case OpGreaterThan:
		a, errA := cast.ToFloat64E(val)
		b, errB := cast.ToFloat64E(c.Value)
		return errA == nil && errB == nil && a > b
	case OpLessThan:
		a, errA := cast.ToFloat64E(val)
		b, errB := cast.ToFloat64E(c.Value)
		return errA == nil && errB == nil && a < b
	case OpIsEmpty:
		return isEmptyValue(val)
	case OpIsNotEmpty:
		return !isEmptyValue(val)
	case OpIn:
		list, ok := asList(c.Value)
		return ok && memberOf(list, val)
	case OpNotIn:
		list, ok := asList(c.Value)
		return ok && !memberOf(list, val)
	default:
		// Unknown operator: fail safe. The matcher logs the occurrence.
		return false
	}
}

// lookupField resolves a field name against the event data, descending
// through nested maps on dots. Missing fields resolve to nil.
func lookupField(data map[string]interface{}, field string) (interface{}, bool) {
	if data == nil {
		return nil, false
	}
	if v, ok := data[field]; ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}
	cur := interface{}(data)
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// looseEqual compares with string coercion so numbers and numeric strings
// compare equal; falls back to numeric comparison for float formatting skew.
func looseEqual(a, b interface{}) bool {
	if cast.ToString(a) == cast.ToString(b) {
		return true
	}
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	return errA == nil && errB == nil && fa == fb
}

// containsValue is a substring test for string fields and a membership test
// for list fields.
func containsValue(val, needle interface{}) bool {
	if list, ok := asList(val); ok {
		return memberOf(list, needle)
	}
	if s, ok := val.(string); ok {
		return strings.Contains(s, cast.ToString(needle))
	}
	return false
}

func memberOf(list []interface{}, val interface{}) bool {
	for _, item := range list {
		if looseEqual(item, val) {
			return true
		}
	}
	return false
}

func asList(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]interface{}); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	if list, ok := asList(v); ok {
		return len(list) == 0
	}
	return false
}
