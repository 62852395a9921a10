package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCorrelationKey_ResolvesDottedPath(t *testing.T) {
	payload := []byte(`{"order":{"id":"ord-42"}}`)
	key, ok := ExtractCorrelationKey(payload, "order.id")
	assert.True(t, ok)
	assert.Equal(t, "ord-42", key)
}

func TestExtractCorrelationKey_MissingFieldReturnsFalse(t *testing.T) {
	payload := []byte(`{"order":{"id":"ord-42"}}`)
	_, ok := ExtractCorrelationKey(payload, "order.customer_id")
	assert.False(t, ok)
}

func TestMapPayloadFields_ProjectsOnlyConfiguredFields(t *testing.T) {
	payload := []byte(`{"order_id":"ord-1","amount":12.5,"internal":"secret"}`)
	mapped := MapPayloadFields(payload, map[string]string{
		"order_id": "order_id",
		"amount":   "total",
	})
	assert.Equal(t, "ord-1", mapped["order_id"])
	assert.EqualValues(t, 12.5, mapped["total"])
	assert.NotContains(t, mapped, "internal")
}

func TestMapPayloadFields_SkipsUnresolvedPaths(t *testing.T) {
	payload := []byte(`{"order_id":"ord-1"}`)
	mapped := MapPayloadFields(payload, map[string]string{
		"order_id":  "order_id",
		"not_there": "missing",
	})
	assert.Contains(t, mapped, "order_id")
	assert.NotContains(t, mapped, "missing")
}
