// Package validation holds shape validators for JSON structures that
// cross a trust boundary (caller-supplied JSON Patch documents) before
// a consuming package attempts to apply them.
package validation

import (
	"fmt"
)

// PatchValidator validates the shape of RFC 6902 JSON Patch operations.
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator.
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// ValidateOperations checks every operation's required fields so a
// malformed patch produces a precise error instead of an opaque one
// from the JSON Patch library applying it.
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}
	}
	return nil
}

// validateOperation validates a single operation.
func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	if _, ok := op["path"].(string); !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}

	switch opType {
	case "add", "replace":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}
	case "remove", "move", "copy", "test":
		return nil
	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}
