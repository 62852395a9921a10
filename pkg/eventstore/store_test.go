package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Info(msg string, kv ...interface{})  {}
func (testLogger) Warn(msg string, kv ...interface{})  {}
func (testLogger) Error(msg string, kv ...interface{}) {}
func (testLogger) Debug(msg string, kv ...interface{}) {}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, testLogger{})
}

func TestPublishToken_AssignsLogCoordinates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := &workflow.Token{
		ID:         "tok-1",
		WorkflowID: "wf-1",
		Place:      "draft",
		Data:       map[string]interface{}{"title": "hello"},
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	require.NoError(t, s.PublishToken(ctx, tok))
	require.NotZero(t, tok.Sequence)
	require.False(t, tok.LogTimestamp.IsZero())
	require.Equal(t, TokenSubject("wf-1", "draft", "tok-1"), tok.CurrentSubject)

	got, err := s.GetToken(ctx, "wf-1", "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "draft", got.Place)
	require.Equal(t, tok.Sequence, got.Sequence)
	require.Equal(t, "hello", got.Data["title"])
}

func TestPublishToken_RepublishSupersedesPriorVersionOnSameSubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := &workflow.Token{
		ID: "tok-1", WorkflowID: "wf-1", Place: "draft",
		Data: map[string]interface{}{"title": "v1"},
	}
	require.NoError(t, s.PublishToken(ctx, tok))

	tok.Data["title"] = "v2"
	require.NoError(t, s.PublishToken(ctx, tok))

	got, err := s.GetToken(ctx, "wf-1", "tok-1")
	require.NoError(t, err)
	require.Equal(t, "v2", got.Data["title"])

	// only the latest version should remain indexed on this subject
	entries, err := s.redis.HGetAll(ctx, indexKey("wf-1")).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestGetToken_CrossPlaceLookupPicksGreatestVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := &workflow.Token{
		ID: "tok-1", WorkflowID: "wf-1", Place: "draft",
		Data: map[string]interface{}{"step": 1},
	}
	require.NoError(t, s.PublishToken(ctx, tok))

	// simulate a transition: token moves to a new place/subject, so it now
	// has two known subjects in the per-token subject set.
	tok.Place = "review"
	tok.Data["step"] = 2
	require.NoError(t, s.PublishToken(ctx, tok))

	got, err := s.GetToken(ctx, "wf-1", "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "review", got.Place)
	require.EqualValues(t, 2, got.Data["step"])

	subjects, err := s.redis.SMembers(ctx, tokenSubjectsKey("wf-1", "tok-1")).Result()
	require.NoError(t, err)
	require.Len(t, subjects, 2)
}

func TestGetTokensInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &workflow.Token{ID: "a", WorkflowID: "wf-1", Place: "draft", Data: map[string]interface{}{}}
	b := &workflow.Token{ID: "b", WorkflowID: "wf-1", Place: "draft", Data: map[string]interface{}{}}
	c := &workflow.Token{ID: "c", WorkflowID: "wf-1", Place: "review", Data: map[string]interface{}{}}
	require.NoError(t, s.PublishToken(ctx, a))
	require.NoError(t, s.PublishToken(ctx, b))
	require.NoError(t, s.PublishToken(ctx, c))

	draft, err := s.GetTokensInPlace(ctx, "wf-1", "draft")
	require.NoError(t, err)
	require.Len(t, draft, 2)

	review, err := s.GetTokensInPlace(ctx, "wf-1", "review")
	require.NoError(t, err)
	require.Len(t, review, 1)
	require.Equal(t, "c", review[0].ID)
}

func TestListWorkflowTokens_DedupesAcrossPlaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := &workflow.Token{ID: "tok-1", WorkflowID: "wf-1", Place: "draft", Data: map[string]interface{}{}}
	require.NoError(t, s.PublishToken(ctx, tok))
	tok.Place = "review"
	require.NoError(t, s.PublishToken(ctx, tok))

	other := &workflow.Token{ID: "tok-2", WorkflowID: "wf-1", Place: "draft", Data: map[string]interface{}{}}
	require.NoError(t, s.PublishToken(ctx, other))

	all, err := s.ListWorkflowTokens(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAppendEvent_IsNotIndexedOrLookupable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, "wf-1", "cb.workflows.wf-1.events.published", map[string]interface{}{"kind": "published"}))

	entries, err := s.redis.HGetAll(ctx, indexKey("wf-1")).Result()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPublishDefinition_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def := &workflow.WorkflowDefinition{
		Identifier:   "article-review",
		Version:      1,
		Places:       []string{"draft", "review", "published"},
		InitialPlace: "draft",
		Transitions: []workflow.TransitionDefinition{
			{Identifier: "submit", FromPlaces: []string{"draft"}, ToPlace: "review"},
			{Identifier: "publish", FromPlaces: []string{"review"}, ToPlace: "published"},
		},
	}
	require.NoError(t, s.PublishDefinition(ctx, def))

	got, err := s.GetDefinition(ctx, "article-review")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, def.Identifier, got.Identifier)
	require.Len(t, got.Transitions, 2)
}

func TestPublishDefinition_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def := &workflow.WorkflowDefinition{Identifier: "bad", Places: []string{"draft"}, InitialPlace: "nowhere"}
	err := s.PublishDefinition(ctx, def)
	require.Error(t, err)
	require.True(t, workflow.IsKind(err, workflow.KindUnknownWorkflow))
}

func TestGetDefinition_UnknownWorkflowReturnsNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetDefinition(ctx, "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListDefinitions_ReturnsEveryPublishedWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"article-review", "order-intake"} {
		def := &workflow.WorkflowDefinition{
			Identifier:   id,
			Places:       []string{"start", "end"},
			InitialPlace: "start",
			Transitions: []workflow.TransitionDefinition{
				{Identifier: "finish", FromPlaces: []string{"start"}, ToPlace: "end"},
			},
		}
		require.NoError(t, s.PublishDefinition(ctx, def))
	}

	defs, err := s.ListDefinitions(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.Identifier)
	}
	require.ElementsMatch(t, []string{"article-review", "order-intake"}, ids)
}

func TestListDefinitions_EmptyRegistryReturnsEmptySlice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	defs, err := s.ListDefinitions(ctx)
	require.NoError(t, err)
	require.Empty(t, defs)
}
