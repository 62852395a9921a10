package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelName_RoundTripsThroughParseChannelName(t *testing.T) {
	name := ChannelName(ScopeWorkflow, "wf-42")
	assert.Equal(t, "circuitbreaker:stream:workflow:wf-42", name)

	key, ok := parseChannelName(name)
	assert.True(t, ok)
	assert.Equal(t, ChannelKey{Scope: ScopeWorkflow, ID: "wf-42"}, key)
}

func TestParseChannelName_RejectsUnknownScope(t *testing.T) {
	_, ok := parseChannelName("circuitbreaker:stream:bogus:123")
	assert.False(t, ok)
}

func TestParseChannelName_RejectsForeignPrefix(t *testing.T) {
	_, ok := parseChannelName("workflow:events:test-user")
	assert.False(t, ok)
}

func TestParseChannelName_AllowsColonsInID(t *testing.T) {
	key, ok := parseChannelName("circuitbreaker:stream:token:tenant-a:tok-1")
	assert.True(t, ok)
	assert.Equal(t, "tenant-a:tok-1", key.ID)
}
