package workflow

import (
	"context"
	"encoding/json"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/castingclouds/circuit-breaker-sub001/common/validation"
)

// DataUpdate is the explicit data-update operation's mutation payload:
// an RFC 6902 JSON Patch applied to the token's data and/or metadata,
// re-published on the same subject with no place change (§4.2).
type DataUpdate struct {
	DataPatch     json.RawMessage `json:"data_patch,omitempty"`
	MetadataPatch json.RawMessage `json:"metadata_patch,omitempty"`
}

var patchValidator = validation.NewPatchValidator()

// validatePatchOperations rejects shapes apply_data_update must refuse
// before attempting to apply them, via common/validation.PatchValidator,
// so a malformed patch produces a MappingError with a precise reason
// instead of an opaque error from evanphx/json-patch applying it.
func validatePatchOperations(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var ops []map[string]interface{}
	if err := json.Unmarshal(raw, &ops); err != nil {
		return New(KindMappingError, "patch is not a JSON Patch array", err)
	}
	if err := patchValidator.ValidateOperations(ops); err != nil {
		return New(KindMappingError, err.Error(), err)
	}
	return nil
}

// applyPatch decodes doc to JSON, applies patch, and decodes the result
// back into a map.
func applyPatch(doc map[string]interface{}, patch json.RawMessage) (map[string]interface{}, error) {
	if len(patch) == 0 {
		return doc, nil
	}
	if err := validatePatchOperations(patch); err != nil {
		return nil, err
	}
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, New(KindMappingError, "failed to decode JSON patch", err)
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, New(KindMappingError, "failed to marshal document for patching", err)
	}
	patched, err := decoded.Apply(docJSON)
	if err != nil {
		return nil, New(KindMappingError, "failed to apply JSON patch", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, New(KindMappingError, "failed to unmarshal patched document", err)
	}
	return out, nil
}

// ApplyDataUpdate applies update to token's data/metadata with no place
// change and re-publishes on the same subject (§4.2). store is an
// interface rather than *eventstore.Store for the same dependency-
// direction reason as Engine's Store field.
func ApplyDataUpdate(ctx context.Context, store Store, token *Token, update DataUpdate) (*Token, error) {
	current, err := store.GetToken(ctx, token.WorkflowID, token.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, New(KindUnknownToken, "token not found: "+token.ID, nil)
	}

	newData, err := applyPatch(current.Data, update.DataPatch)
	if err != nil {
		return nil, err
	}
	newMetadata := current.Metadata
	if len(update.MetadataPatch) > 0 {
		if newMetadata == nil {
			newMetadata = map[string]interface{}{}
		}
		newMetadata, err = applyPatch(newMetadata, update.MetadataPatch)
		if err != nil {
			return nil, err
		}
	}

	current.Data = newData
	current.Metadata = newMetadata
	current.UpdatedAt = time.Now().UTC()

	if err := store.PublishToken(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}
