package workflow

import "github.com/castingclouds/circuit-breaker-sub001/pkg/rules"

// Evaluator adapts a *rules.Evaluator into the engine's RuleEval
// interface, converting a transition's wire-format RuleNode to an
// evaluable tree and building the RuleContext from the token/
// transition pair.
type Evaluator struct {
	inner *rules.Evaluator
}

// NewEvaluator wraps a rules.Evaluator for use by Engine.
func NewEvaluator(inner *rules.Evaluator) *Evaluator {
	return &Evaluator{inner: inner}
}

// EvaluateNode implements RuleEval.
func (a *Evaluator) EvaluateNode(node *RuleNode, token *Token, transition *TransitionDefinition) (bool, string) {
	tree := ToRulesTree(node)
	result := a.inner.Evaluate(tree, &rules.RuleContext{
		Token:      token,
		Transition: transition,
	})
	return result.Passed, result.FailingRuleID
}

// ToRulesTree converts the wire-format RuleNode into the rules package's
// evaluable *rules.Rule tree. Returns nil for a nil node (a transition
// with no rule tree always evaluates to passed, per §4.2).
func ToRulesTree(n *RuleNode) *rules.Rule {
	if n == nil {
		return nil
	}
	r := &rules.Rule{
		ID:            n.ID,
		Kind:          rules.Kind(n.Kind),
		FieldPath:     n.FieldPath,
		Operator:      rules.Operator(n.Operator),
		Value:         n.Value,
		LogicalOp:     rules.LogicalOp(n.LogicalOp),
		EvaluatorName: n.EvaluatorName,
		Params:        n.Params,
		Expression:    n.Expression,
		Language:      n.Language,
	}
	for _, child := range n.Children {
		r.Children = append(r.Children, ToRulesTree(child))
	}
	return r
}
