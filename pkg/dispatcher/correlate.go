package dispatcher

import (
	"context"
	"fmt"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
	"github.com/tidwall/gjson"
)

// TokenStore is the subset of pkg/eventstore.Store the dispatcher
// depends on for correlation lookups and instance creation, declared
// narrowly for the same reason as pkg/workflow.Engine's Store.
type TokenStore interface {
	ListWorkflowTokens(ctx context.Context, workflowID string) ([]*workflow.Token, error)
}

// ExtractCorrelationKey resolves payload_path in the raw event payload
// via a dotted gjson path, grounded on the resolver logic pkg/rules's
// field-path resolution already generalizes. Returns ("", false) if the
// path does not resolve to a concrete scalar.
func ExtractCorrelationKey(payload []byte, payloadPath string) (string, bool) {
	res := gjson.GetBytes(payload, payloadPath)
	if !res.Exists() || res.IsObject() || res.IsArray() || res.Type == gjson.Null {
		return "", false
	}
	return res.String(), true
}

// FindTokenByCorrelation scans a workflow's active tokens for one whose
// tokenField (a top-level key of the token's data, e.g. "order_id";
// dotted paths are not resolved) equals key. This is the cross-place query §4.3 describes: filtered
// by a token field rather than by place, since the correlating token
// may be in any non-terminal place.
func FindTokenByCorrelation(ctx context.Context, store TokenStore, workflowID, tokenField, key string) (*workflow.Token, error) {
	tokens, err := store.ListWorkflowTokens(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for _, tok := range tokens {
		if v, ok := tok.Data[tokenField]; ok && fmt.Sprintf("%v", v) == key {
			return tok, nil
		}
	}
	return nil, nil
}

// MapPayloadFields projects payload fields into a token data/metadata
// map per a payload-path -> token-field mapping (initial_data_mapping
// or update_mapping, §4.3).
func MapPayloadFields(payload []byte, mapping map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(mapping))
	for payloadPath, tokenField := range mapping {
		res := gjson.GetBytes(payload, payloadPath)
		if res.Exists() {
			out[tokenField] = res.Value()
		}
	}
	return out
}
