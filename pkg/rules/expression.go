package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celCompiler compiles and caches CEL programs keyed by expression text,
// generalizing the compile-once-reuse-many shape of a CEL condition
// evaluator to the rule tree's token/transition/ambient vocabulary.
type celCompiler struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

func newCELCompiler() *celCompiler {
	return &celCompiler{cache: make(map[string]cel.Program)}
}

func (c *celCompiler) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.cache[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("token", cel.DynType),
		cel.Variable("transition", cel.DynType),
		cel.Variable("ambient", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	c.mu.Lock()
	c.cache[expr] = prg
	c.mu.Unlock()
	return prg, nil
}

func (c *celCompiler) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cel.Program)
}

func (c *celCompiler) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func evaluateExpression(compiler *celCompiler, rule *Rule, ctx *RuleContext) Result {
	if rule.Language != "" && rule.Language != "cel" {
		return passed().failing(rule.ID, "unsupported expression language: "+rule.Language)
	}

	prg, err := compiler.program(rule.Expression)
	if err != nil {
		return passed().failing(rule.ID, err.Error())
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"token":      ctx.Token,
		"transition": ctx.Transition,
		"ambient":    ctx.AmbientMetadata,
	})
	if err != nil {
		return passed().failing(rule.ID, fmt.Sprintf("CEL evaluation error: %v", err))
	}

	result, ok := out.Value().(bool)
	if !ok {
		return passed().failing(rule.ID, fmt.Sprintf("expression did not return boolean, got %T", out.Value()))
	}
	if result {
		return passed()
	}
	return passed().failing(rule.ID, "expression evaluated to false")
}
