package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/eventstore"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/rules"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// subjectCapturingStore records the subject every AppendEvent call used,
// so the Engine's default (un-injected) subject builders can be checked
// against eventstore's canonical ones from outside pkg/workflow, which
// cannot import pkg/eventstore itself without cycling.
type subjectCapturingStore struct {
	token    *workflow.Token
	subjects []string
}

func (s *subjectCapturingStore) PublishToken(ctx context.Context, token *workflow.Token) error {
	s.token = token
	return nil
}

func (s *subjectCapturingStore) GetToken(ctx context.Context, workflowID, tokenID string) (*workflow.Token, error) {
	return s.token, nil
}

func (s *subjectCapturingStore) AppendEvent(ctx context.Context, workflowID, subject string, payload interface{}) error {
	s.subjects = append(s.subjects, subject)
	return nil
}

type passLogger struct{}

func (passLogger) Info(string, ...interface{})  {}
func (passLogger) Warn(string, ...interface{})  {}
func (passLogger) Error(string, ...interface{}) {}
func (passLogger) Debug(string, ...interface{}) {}

func TestEngineSubjects_MatchEventstoreFormat(t *testing.T) {
	store := &subjectCapturingStore{}
	eng := workflow.NewEngine(store, workflow.NewEvaluator(rules.NewEvaluator(nil)), nil, passLogger{})

	def := &workflow.WorkflowDefinition{
		Identifier:   "article-review",
		Places:       []string{"draft", "published"},
		InitialPlace: "draft",
		Transitions: []workflow.TransitionDefinition{
			{Identifier: "publish", FromPlaces: []string{"draft"}, ToPlace: "published"},
		},
	}

	tok, err := eng.CreateInstance(context.Background(), def, nil, nil, "tester")
	require.NoError(t, err)
	require.Len(t, store.subjects, 1)
	require.Equal(t, eventstore.LifecycleSubject(def.Identifier), store.subjects[0])

	_, err = eng.Fire(context.Background(), def, tok, "publish", "tester", nil)
	require.NoError(t, err)
	require.Len(t, store.subjects, 2)
	require.Equal(t, eventstore.TransitionsSubject(def.Identifier), store.subjects[1])
}
