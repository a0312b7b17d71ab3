package model

import (
	"fmt"
	"strconv"
)

// EvaluateClause implements the §4.A comparison semantics shared by the
// condition node and by edge conditions: equals/not_equals compare
// string-coerced operands, contains tests substring on the string-coerced
// left operand, and greater_than/less_than coerce both operands to float64,
// failing the clause (false) when either side does not parse as a number.
func EvaluateClause(fieldValue interface{}, operator ClauseOperator, compareValue interface{}) bool {
	switch operator {
	case OpEquals:
		return stringify(fieldValue) == stringify(compareValue)
	case OpNotEquals:
		return stringify(fieldValue) != stringify(compareValue)
	case OpContains:
		return containsSubstring(stringify(fieldValue), stringify(compareValue))
	case OpGreaterThan:
		a, aok := toFloat(fieldValue)
		b, bok := toFloat(compareValue)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toFloat(fieldValue)
		b, bok := toFloat(compareValue)
		return aok && bok && a < b
	default:
		return false
	}
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return toString(v)
}

func containsSubstring(haystack, needle string) bool {
	return indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
