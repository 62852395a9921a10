package rules

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// undefined is gjson's sentinel for a missing field path. It compares
// unequal to any concrete value, is never contains-able, and fails exists,
// per the field-path resolution contract.
var undefined = gjson.Result{}

// resolveField walks doc (any JSON-marshalable value) via a dotted gjson
// path. Missing intermediate objects resolve to the undefined sentinel
// rather than an error — field-path resolution is total.
func resolveField(doc interface{}, path string) gjson.Result {
	raw, err := json.Marshal(doc)
	if err != nil {
		return undefined
	}
	return gjson.GetBytes(raw, path)
}

func evaluateSimple(rule *Rule, ctx *RuleContext) Result {
	field := resolveField(ctx.Token, rule.FieldPath)

	switch rule.Operator {
	case OpExists:
		if field.Exists() {
			return passed()
		}
		return passed().failing(rule.ID, "field does not exist: "+rule.FieldPath)
	case OpEquals:
		if !field.Exists() {
			return passed().failing(rule.ID, "field does not exist: "+rule.FieldPath)
		}
		if compareEqual(field, rule.Value) {
			return passed()
		}
		return passed().failing(rule.ID, "value mismatch")
	case OpNotEquals:
		if !field.Exists() {
			// undefined compares unequal to any concrete value.
			return passed()
		}
		if !compareEqual(field, rule.Value) {
			return passed()
		}
		return passed().failing(rule.ID, "value matched when not-equals expected")
	case OpContains:
		if !field.Exists() {
			return passed().failing(rule.ID, "field does not exist: "+rule.FieldPath)
		}
		needle, ok := rule.Value.(string)
		if !ok {
			return passed().failing(rule.ID, "contains requires a string operand")
		}
		if strings.Contains(field.String(), needle) {
			return passed()
		}
		return passed().failing(rule.ID, "field does not contain value")
	case OpStartsWith:
		if !field.Exists() {
			return passed().failing(rule.ID, "field does not exist: "+rule.FieldPath)
		}
		prefix, ok := rule.Value.(string)
		if !ok {
			return passed().failing(rule.ID, "starts-with requires a string operand")
		}
		if strings.HasPrefix(field.String(), prefix) {
			return passed()
		}
		return passed().failing(rule.ID, "field does not start with value")
	case OpEndsWith:
		if !field.Exists() {
			return passed().failing(rule.ID, "field does not exist: "+rule.FieldPath)
		}
		suffix, ok := rule.Value.(string)
		if !ok {
			return passed().failing(rule.ID, "ends-with requires a string operand")
		}
		if strings.HasSuffix(field.String(), suffix) {
			return passed()
		}
		return passed().failing(rule.ID, "field does not end with value")
	case OpGT, OpLT, OpGE, OpLE:
		return evaluateNumeric(rule, field)
	default:
		return passed().failing(rule.ID, "unsupported operator: "+string(rule.Operator))
	}
}

// compareEqual compares a resolved field against a raw rule value. Numbers
// compare numerically when both sides parse as numbers; everything else
// compares as their JSON string form.
func compareEqual(field gjson.Result, value interface{}) bool {
	if num, ok := asNumber(value); ok && field.Type == gjson.Number {
		return field.Num == num
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return field.Raw == string(raw) || field.String() == gjson.ParseBytes(raw).String()
}

func evaluateNumeric(rule *Rule, field gjson.Result) Result {
	if !field.Exists() || field.Type != gjson.Number {
		return passed().failing(rule.ID, "left operand is not numeric")
	}
	rhs, ok := asNumber(rule.Value)
	if !ok {
		return passed().failing(rule.ID, "right operand is not numeric")
	}
	lhs := field.Num

	var ok2 bool
	switch rule.Operator {
	case OpGT:
		ok2 = lhs > rhs
	case OpLT:
		ok2 = lhs < rhs
	case OpGE:
		ok2 = lhs >= rhs
	case OpLE:
		ok2 = lhs <= rhs
	}
	if ok2 {
		return passed()
	}
	return passed().failing(rule.ID, "numeric comparison failed")
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
