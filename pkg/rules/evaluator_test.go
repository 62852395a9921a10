package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenCtx(data map[string]interface{}) *RuleContext {
	return &RuleContext{Token: map[string]interface{}{"data": data}}
}

func TestEvaluateSimple(t *testing.T) {
	e := NewEvaluator(nil)

	cases := []struct {
		name   string
		rule   *Rule
		data   map[string]interface{}
		passed bool
	}{
		{"equals true", &Rule{ID: "r1", Kind: KindSimple, FieldPath: "data.title", Operator: OpEquals, Value: "T"}, map[string]interface{}{"title": "T"}, true},
		{"equals false", &Rule{ID: "r1", Kind: KindSimple, FieldPath: "data.title", Operator: OpEquals, Value: "X"}, map[string]interface{}{"title": "T"}, false},
		{"exists true", &Rule{ID: "r2", Kind: KindSimple, FieldPath: "data.reviewer", Operator: OpExists}, map[string]interface{}{"reviewer": "r"}, true},
		{"exists false on missing", &Rule{ID: "r2", Kind: KindSimple, FieldPath: "data.reviewer", Operator: OpExists}, map[string]interface{}{}, false},
		{"gt numeric", &Rule{ID: "r3", Kind: KindSimple, FieldPath: "data.word_count", Operator: OpGT, Value: 500.0}, map[string]interface{}{"word_count": 600}, true},
		{"gt fails on non-numeric", &Rule{ID: "r3", Kind: KindSimple, FieldPath: "data.word_count", Operator: OpGT, Value: 500.0}, map[string]interface{}{"word_count": "many"}, false},
		{"not-equals on missing field passes", &Rule{ID: "r4", Kind: KindSimple, FieldPath: "data.missing", Operator: OpNotEquals, Value: "x"}, map[string]interface{}{}, true},
		{"contains", &Rule{ID: "r5", Kind: KindSimple, FieldPath: "data.title", Operator: OpContains, Value: "itl"}, map[string]interface{}{"title": "title"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := e.Evaluate(tc.rule, tokenCtx(tc.data))
			assert.Equal(t, tc.passed, result.Passed)
		})
	}
}

func TestEvaluateComposite_ScenarioFromPublishRule(t *testing.T) {
	// OR[AND[exists(title), exists(reviewer), word_count > 500], equals(emergency, true)]
	rule := &Rule{
		Kind:      KindComposite,
		LogicalOp: LogicalOr,
		Children: []*Rule{
			{
				Kind:      KindComposite,
				LogicalOp: LogicalAnd,
				Children: []*Rule{
					{Kind: KindSimple, FieldPath: "data.title", Operator: OpExists},
					{Kind: KindSimple, FieldPath: "data.reviewer", Operator: OpExists},
					{Kind: KindSimple, FieldPath: "data.word_count", Operator: OpGT, Value: 500.0},
				},
			},
			{Kind: KindSimple, FieldPath: "data.emergency", Operator: OpEquals, Value: true},
		},
	}

	e := NewEvaluator(nil)

	ok := e.Evaluate(rule, tokenCtx(map[string]interface{}{"title": "T", "reviewer": "r", "word_count": 600, "emergency": false}))
	assert.True(t, ok.Passed)

	denied := e.Evaluate(rule, tokenCtx(map[string]interface{}{"title": "T", "word_count": 50, "emergency": false}))
	assert.False(t, denied.Passed)

	emergency := e.Evaluate(rule, tokenCtx(map[string]interface{}{"emergency": true}))
	assert.True(t, emergency.Passed)
}

func TestEvaluateComposite_Not(t *testing.T) {
	e := NewEvaluator(nil)
	rule := &Rule{
		Kind:      KindComposite,
		LogicalOp: LogicalNot,
		Children:  []*Rule{{Kind: KindSimple, FieldPath: "data.archived", Operator: OpExists}},
	}
	result := e.Evaluate(rule, tokenCtx(map[string]interface{}{}))
	assert.True(t, result.Passed)

	result = e.Evaluate(rule, tokenCtx(map[string]interface{}{"archived": true}))
	assert.False(t, result.Passed)
}

func TestEvaluateExpression_CEL(t *testing.T) {
	e := NewEvaluator(nil)
	rule := &Rule{Kind: KindExpression, Language: "cel", Expression: `token.data.word_count > 100`}

	result := e.Evaluate(rule, tokenCtx(map[string]interface{}{"word_count": 200}))
	assert.True(t, result.Passed)

	result = e.Evaluate(rule, tokenCtx(map[string]interface{}{"word_count": 10}))
	assert.False(t, result.Passed)

	require.Equal(t, 1, e.CacheSize(), "second evaluation should reuse the compiled program")
}

func TestEvaluateCustom(t *testing.T) {
	reg := NewRegistry()
	reg.Register("always_true", func(params map[string]interface{}, ctx *RuleContext) (bool, error) {
		return true, nil
	})
	e := NewEvaluator(reg)

	result := e.Evaluate(&Rule{Kind: KindCustom, EvaluatorName: "always_true"}, tokenCtx(nil))
	assert.True(t, result.Passed)

	result = e.Evaluate(&Rule{Kind: KindCustom, EvaluatorName: "missing"}, tokenCtx(nil))
	assert.False(t, result.Passed)
	assert.Contains(t, result.Diagnostics[0].Reason, "unknown rule")
}

func TestEvaluateIsPure(t *testing.T) {
	e := NewEvaluator(nil)
	rule := &Rule{Kind: KindSimple, FieldPath: "data.x", Operator: OpEquals, Value: float64(1)}
	ctx := tokenCtx(map[string]interface{}{"x": 1})

	r1 := e.Evaluate(rule, ctx)
	r2 := e.Evaluate(rule, ctx)
	assert.Equal(t, r1.Passed, r2.Passed)
}
