package dispatcher

import (
	"context"
	"testing"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Debug(string, ...interface{}) {}

type fakeStore struct {
	tokens map[string]*workflow.Token
}

func newFakeStore() *fakeStore {
	return &fakeStore{tokens: map[string]*workflow.Token{}}
}

func (s *fakeStore) ListWorkflowTokens(ctx context.Context, workflowID string) ([]*workflow.Token, error) {
	var out []*workflow.Token
	for _, t := range s.tokens {
		if t.WorkflowID == workflowID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) GetToken(ctx context.Context, workflowID, tokenID string) (*workflow.Token, error) {
	if t, ok := s.tokens[tokenID]; ok {
		return t, nil
	}
	return nil, nil
}

func (s *fakeStore) PublishToken(ctx context.Context, token *workflow.Token) error {
	s.tokens[token.ID] = token
	return nil
}

type fakeEngine struct {
	created []map[string]interface{}
	nextID  int
	store   *fakeStore
}

func (e *fakeEngine) CreateInstance(ctx context.Context, def *workflow.WorkflowDefinition, initialData, metadata map[string]interface{}, triggeredBy string) (*workflow.Token, error) {
	e.created = append(e.created, initialData)
	e.nextID++
	tok := &workflow.Token{
		ID:         "tok-" + def.Identifier + "-" + itoa(e.nextID),
		WorkflowID: def.Identifier,
		Place:      def.InitialPlace,
		Data:       initialData,
	}
	e.store.tokens[tok.ID] = tok
	return tok, nil
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
}

func testDef() *workflow.WorkflowDefinition {
	return &workflow.WorkflowDefinition{
		Identifier:   "order-intake",
		Places:       []string{"new", "fulfilled"},
		InitialPlace: "new",
		Transitions: []workflow.TransitionDefinition{
			{Identifier: "fulfill", FromPlaces: []string{"new"}, ToPlace: "fulfilled"},
		},
	}
}

func TestHandleEvent_CreateNewInstance(t *testing.T) {
	store := newFakeStore()
	engine := &fakeEngine{store: store}
	d := New(store, engine, nil, nil, nil, noopLogger{})

	trigger := workflow.TriggerDefinition{
		SubjectPattern:     "orders.created",
		Action:             workflow.ActionCreateNewInstance,
		Correlation:        workflow.CorrelationConfig{PayloadPath: "order_id", TokenField: "order_id"},
		InitialDataMapping: map[string]string{"order_id": "order_id", "amount": "amount"},
	}

	payload := []byte(`{"order_id":"ord-1","amount":42}`)
	err := d.HandleEvent(context.Background(), testDef(), trigger, "evt-1", "orders.created", payload)
	require.NoError(t, err)
	require.Len(t, engine.created, 1)
	assert.Equal(t, "ord-1", engine.created[0]["order_id"])
	assert.EqualValues(t, 42, engine.created[0]["amount"])
}

func TestHandleEvent_CreateNewInstance_DuplicateActiveTokenIsAckedWithoutCreating(t *testing.T) {
	store := newFakeStore()
	store.tokens["tok-existing"] = &workflow.Token{
		ID: "tok-existing", WorkflowID: "order-intake", Place: "new",
		Data: map[string]interface{}{"order_id": "ord-1"},
	}
	engine := &fakeEngine{store: store}
	d := New(store, engine, nil, nil, nil, noopLogger{})

	trigger := workflow.TriggerDefinition{
		SubjectPattern: "orders.created",
		Action:         workflow.ActionCreateNewInstance,
		Correlation:    workflow.CorrelationConfig{PayloadPath: "order_id", TokenField: "order_id"},
	}

	err := d.HandleEvent(context.Background(), testDef(), trigger, "evt-1", "orders.created", []byte(`{"order_id":"ord-1"}`))
	require.NoError(t, err)
	assert.Empty(t, engine.created)
}

func TestHandleEvent_UpdateExistingInstance_AppliesMapping(t *testing.T) {
	store := newFakeStore()
	store.tokens["tok-existing"] = &workflow.Token{
		ID: "tok-existing", WorkflowID: "order-intake", Place: "new",
		Data: map[string]interface{}{"order_id": "ord-1"},
	}
	engine := &fakeEngine{store: store}
	d := New(store, engine, nil, nil, nil, noopLogger{})

	trigger := workflow.TriggerDefinition{
		SubjectPattern: "orders.shipped",
		Action:         workflow.ActionUpdateExistingInstance,
		Correlation:    workflow.CorrelationConfig{PayloadPath: "order_id", TokenField: "order_id"},
		UpdateMapping:  map[string]string{"tracking_number": "tracking_number"},
	}

	err := d.HandleEvent(context.Background(), testDef(), trigger, "evt-2", "orders.shipped", []byte(`{"order_id":"ord-1","tracking_number":"1Z999"}`))
	require.NoError(t, err)
	assert.Equal(t, "1Z999", store.tokens["tok-existing"].Data["tracking_number"])
}

func TestHandleEvent_UpdateExistingInstance_OrphanEventIsDeadLettered(t *testing.T) {
	store := newFakeStore()
	engine := &fakeEngine{store: store}
	d := New(store, engine, nil, nil, nil, noopLogger{})

	trigger := workflow.TriggerDefinition{
		SubjectPattern: "orders.shipped",
		Action:         workflow.ActionUpdateExistingInstance,
		Correlation:    workflow.CorrelationConfig{PayloadPath: "order_id", TokenField: "order_id"},
		UpdateMapping:  map[string]string{"tracking_number": "tracking_number"},
	}

	err := d.HandleEvent(context.Background(), testDef(), trigger, "evt-3", "orders.shipped", []byte(`{"order_id":"missing","tracking_number":"1Z999"}`))
	require.NoError(t, err) // no dlq configured: logged and acked, not an error
	assert.Empty(t, store.tokens)
}

func TestHandleEvent_CreateOrUpdate_CreatesThenUpdates(t *testing.T) {
	store := newFakeStore()
	engine := &fakeEngine{store: store}
	d := New(store, engine, nil, nil, nil, noopLogger{})

	trigger := workflow.TriggerDefinition{
		SubjectPattern:     "orders.events",
		Action:             workflow.ActionCreateOrUpdate,
		Correlation:        workflow.CorrelationConfig{PayloadPath: "order_id", TokenField: "order_id"},
		InitialDataMapping: map[string]string{"order_id": "order_id"},
		UpdateMapping:      map[string]string{"status": "status"},
	}

	require.NoError(t, d.HandleEvent(context.Background(), testDef(), trigger, "evt-a", "orders.events", []byte(`{"order_id":"ord-9"}`)))
	require.Len(t, engine.created, 1)

	require.NoError(t, d.HandleEvent(context.Background(), testDef(), trigger, "evt-b", "orders.events", []byte(`{"order_id":"ord-9","status":"shipped"}`)))
	require.Len(t, engine.created, 1) // second event updates, does not create again

	var updated *workflow.Token
	for _, tok := range store.tokens {
		if tok.Data["order_id"] == "ord-9" {
			updated = tok
		}
	}
	require.NotNil(t, updated)
	assert.Equal(t, "shipped", updated.Data["status"])
}

func TestHandleEvent_FilterDropsNonMatchingEvent(t *testing.T) {
	store := newFakeStore()
	engine := &fakeEngine{store: store}
	d := New(store, engine, nil, nil, nil, noopLogger{})

	trigger := workflow.TriggerDefinition{
		SubjectPattern: "orders.created",
		Action:         workflow.ActionCreateNewInstance,
		Correlation:    workflow.CorrelationConfig{PayloadPath: "order_id", TokenField: "order_id"},
		Filters: []workflow.FilterPredicate{
			{PayloadPath: "region", Operator: "equals", Value: "us-east"},
		},
	}

	err := d.HandleEvent(context.Background(), testDef(), trigger, "evt-1", "orders.created", []byte(`{"order_id":"ord-1","region":"eu-west"}`))
	require.NoError(t, err)
	assert.Empty(t, engine.created)
}

func TestHandleEvent_MissingCorrelationKeyIsDeadLettered(t *testing.T) {
	store := newFakeStore()
	engine := &fakeEngine{store: store}
	d := New(store, engine, nil, nil, nil, noopLogger{})

	trigger := workflow.TriggerDefinition{
		SubjectPattern: "orders.created",
		Action:         workflow.ActionCreateNewInstance,
		Correlation:    workflow.CorrelationConfig{PayloadPath: "order_id", TokenField: "order_id"},
	}

	err := d.HandleEvent(context.Background(), testDef(), trigger, "evt-1", "orders.created", []byte(`{"amount":1}`))
	require.NoError(t, err) // no dlq configured, still acked rather than erroring
	assert.Empty(t, engine.created)
}
