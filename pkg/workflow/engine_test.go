package workflow

import (
	"context"
	"testing"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/rules"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	tokens map[string]*Token
	events []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{tokens: make(map[string]*Token)}
}

func (s *fakeStore) PublishToken(ctx context.Context, token *Token) error {
	token.Sequence++
	s.tokens[token.ID] = cloneToken(token)
	return nil
}

func (s *fakeStore) GetToken(ctx context.Context, workflowID, tokenID string) (*Token, error) {
	tok, ok := s.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	return cloneToken(tok), nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, workflowID, subject string, payload interface{}) error {
	s.events = append(s.events, subject)
	return nil
}

func cloneToken(t *Token) *Token {
	cp := *t
	cp.Data = cloneMap(t.Data)
	cp.Metadata = cloneMap(t.Metadata)
	cp.History = append([]TransitionRecord{}, t.History...)
	return &cp
}

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Debug(string, ...interface{}) {}

type fakeBinder struct {
	agentOutput map[string]interface{}
	funcOutput  map[string]interface{}
}

func (b *fakeBinder) InvokeAgent(ctx context.Context, ref *BindingRef, input map[string]interface{}) (BindingOutcome, error) {
	return BindingOutcome{Output: b.agentOutput}, nil
}

func (b *fakeBinder) InvokeFunction(ctx context.Context, ref *BindingRef, input map[string]interface{}) (BindingOutcome, error) {
	return BindingOutcome{Output: b.funcOutput}, nil
}

func articleReviewDef() *WorkflowDefinition {
	return &WorkflowDefinition{
		Identifier:   "article-review",
		Places:       []string{"draft", "review", "published"},
		InitialPlace: "draft",
		Transitions: []TransitionDefinition{
			{Identifier: "submit", FromPlaces: []string{"draft"}, ToPlace: "review"},
			{
				Identifier: "publish", FromPlaces: []string{"review"}, ToPlace: "published",
				Rule: &RuleNode{
					Kind: "composite", LogicalOp: "or",
					Children: []*RuleNode{
						{
							Kind: "composite", LogicalOp: "and",
							Children: []*RuleNode{
								{Kind: "simple", FieldPath: "data.title", Operator: "exists"},
								{Kind: "simple", FieldPath: "data.reviewer", Operator: "exists"},
								{Kind: "simple", FieldPath: "data.word_count", Operator: "gt", Value: 500.0},
							},
						},
						{Kind: "simple", FieldPath: "data.emergency", Operator: "equals", Value: true},
					},
				},
			},
		},
	}
}

func TestEngine_CreateInstance(t *testing.T) {
	store := newFakeStore()
	eng := NewEngine(store, NewEvaluator(rules.NewEvaluator(nil)), nil, noopLogger{})

	def := articleReviewDef()
	tok, err := eng.CreateInstance(context.Background(), def, map[string]interface{}{"title": "T"}, nil, "user-1")
	require.NoError(t, err)
	require.Equal(t, "draft", tok.Place)
	require.Len(t, tok.History, 1)
	require.EqualValues(t, 1, tok.Sequence)
	require.Len(t, store.events, 1)
}

func TestEngine_Fire_RuleGatedTransition(t *testing.T) {
	store := newFakeStore()
	eng := NewEngine(store, NewEvaluator(rules.NewEvaluator(nil)), nil, noopLogger{})
	def := articleReviewDef()

	mk := func(data map[string]interface{}) *Token {
		tok, err := eng.CreateInstance(context.Background(), def, data, nil, "")
		require.NoError(t, err)
		tok, err = eng.Fire(context.Background(), def, tok, "submit", "", nil)
		require.NoError(t, err)
		return tok
	}

	passing := mk(map[string]interface{}{"title": "T", "reviewer": "r", "word_count": 600, "emergency": false})
	out, err := eng.Fire(context.Background(), def, passing, "publish", "", nil)
	require.NoError(t, err)
	require.Equal(t, "published", out.Place)

	denied := mk(map[string]interface{}{"title": "T", "word_count": 50, "emergency": false})
	_, err = eng.Fire(context.Background(), def, denied, "publish", "", nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindRuleDenied))

	emergency := mk(map[string]interface{}{"emergency": true})
	out, err = eng.Fire(context.Background(), def, emergency, "publish", "", nil)
	require.NoError(t, err)
	require.Equal(t, "published", out.Place)
}

func TestEngine_Fire_StaleSnapshotRejected(t *testing.T) {
	store := newFakeStore()
	eng := NewEngine(store, NewEvaluator(rules.NewEvaluator(nil)), nil, noopLogger{})
	def := articleReviewDef()

	tok, err := eng.CreateInstance(context.Background(), def, map[string]interface{}{}, nil, "")
	require.NoError(t, err)

	// simulate a concurrent writer advancing the stored version
	stored := store.tokens[tok.ID]
	stored.Sequence = tok.Sequence + 5
	store.tokens[tok.ID] = stored

	_, err = eng.Fire(context.Background(), def, tok, "submit", "", nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindStale))
}

func TestEngine_Fire_TerminalPlaceRejected(t *testing.T) {
	store := newFakeStore()
	eng := NewEngine(store, NewEvaluator(rules.NewEvaluator(nil)), nil, noopLogger{})
	def := articleReviewDef()

	tok, err := eng.CreateInstance(context.Background(), def, map[string]interface{}{"emergency": true}, nil, "")
	require.NoError(t, err)
	tok, err = eng.Fire(context.Background(), def, tok, "submit", "", nil)
	require.NoError(t, err)
	tok, err = eng.Fire(context.Background(), def, tok, "publish", "", nil)
	require.NoError(t, err)
	require.True(t, def.IsTerminal(tok.Place))

	// no outgoing transition exists from "published" at all
	require.Empty(t, def.TransitionsFrom(tok.Place))

	_, err = eng.Fire(context.Background(), def, tok, "publish", "", nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidTransition))
}

func TestEngine_Fire_InvokesBindingsAndMapsOutput(t *testing.T) {
	store := newFakeStore()
	binder := &fakeBinder{agentOutput: map[string]interface{}{"summary": "ok"}}
	eng := NewEngine(store, NewEvaluator(rules.NewEvaluator(nil)), binder, noopLogger{})

	def := &WorkflowDefinition{
		Identifier: "wf", Places: []string{"a", "b"}, InitialPlace: "a",
		Transitions: []TransitionDefinition{
			{
				Identifier: "go", FromPlaces: []string{"a"}, ToPlace: "b",
				AgentBinding: &BindingRef{ID: "summarizer", OutputMapping: map[string]string{"summary": "summary_text"}},
			},
		},
	}

	tok, err := eng.CreateInstance(context.Background(), def, map[string]interface{}{}, nil, "")
	require.NoError(t, err)
	tok, err = eng.Fire(context.Background(), def, tok, "go", "", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", tok.Data["summary_text"])
}

func TestEngine_AvailableTransitions(t *testing.T) {
	store := newFakeStore()
	eng := NewEngine(store, NewEvaluator(rules.NewEvaluator(nil)), nil, noopLogger{})
	def := articleReviewDef()

	tok, err := eng.CreateInstance(context.Background(), def, map[string]interface{}{}, nil, "")
	require.NoError(t, err)
	tok, err = eng.Fire(context.Background(), def, tok, "submit", "", nil)
	require.NoError(t, err)

	avail := eng.AvailableTransitions(def, tok)
	require.Empty(t, avail) // no rule-satisfying data yet

	require.True(t, eng.CanFire(def, tok, "publish") == false)
}
