package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDataUpdate_PatchesDataOnSameSubject(t *testing.T) {
	store := newFakeStore()
	tok := &Token{ID: "tok-1", WorkflowID: "wf-1", Place: "draft", Data: map[string]interface{}{"title": "v1"}}
	require.NoError(t, store.PublishToken(context.Background(), tok))

	update := DataUpdate{DataPatch: []byte(`[{"op":"replace","path":"/title","value":"v2"}]`)}
	updated, err := ApplyDataUpdate(context.Background(), store, tok, update)
	require.NoError(t, err)
	require.Equal(t, "v2", updated.Data["title"])
	require.Equal(t, "draft", updated.Place)
}

func TestApplyDataUpdate_RejectsMalformedOperation(t *testing.T) {
	store := newFakeStore()
	tok := &Token{ID: "tok-1", WorkflowID: "wf-1", Place: "draft", Data: map[string]interface{}{}}
	require.NoError(t, store.PublishToken(context.Background(), tok))

	update := DataUpdate{DataPatch: []byte(`[{"op":"add","path":"/x"}]`)}
	_, err := ApplyDataUpdate(context.Background(), store, tok, update)
	require.Error(t, err)
	require.True(t, IsKind(err, KindMappingError))
}

func TestApplyDataUpdate_UnknownTokenFails(t *testing.T) {
	store := newFakeStore()
	_, err := ApplyDataUpdate(context.Background(), store, &Token{ID: "missing", WorkflowID: "wf-1"}, DataUpdate{})
	require.Error(t, err)
	require.True(t, IsKind(err, KindUnknownToken))
}
