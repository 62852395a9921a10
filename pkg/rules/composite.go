package rules

func evaluateComposite(rule *Rule, ctx *RuleContext, eval func(*Rule, *RuleContext) Result) Result {
	switch rule.LogicalOp {
	case LogicalAnd:
		for _, child := range rule.Children {
			r := eval(child, ctx)
			if !r.Passed {
				return r
			}
		}
		return passed()
	case LogicalOr:
		var last Result
		if len(rule.Children) == 0 {
			return passed().failing(rule.ID, "or with no children")
		}
		for _, child := range rule.Children {
			r := eval(child, ctx)
			if r.Passed {
				return passed()
			}
			last = r
		}
		last.FailingRuleID = rule.ID
		return last
	case LogicalNot:
		if len(rule.Children) != 1 {
			return passed().failing(rule.ID, "not requires exactly one child")
		}
		r := eval(rule.Children[0], ctx)
		if r.Passed {
			return passed().failing(rule.ID, "negated child passed")
		}
		return passed()
	default:
		return passed().failing(rule.ID, "unsupported logical operator: "+string(rule.LogicalOp))
	}
}
