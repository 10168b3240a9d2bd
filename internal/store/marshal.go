package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/offchain/internal/ir"
)

// marshalPayload converts an IRObject to canonical JSON TEXT for storage.
func marshalPayload(payload ir.IRObject) (string, error) {
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT to IRObject.
// Goes through ir.IRObject.UnmarshalJSON so large integers keep their
// precision.
func unmarshalPayload(data string) (ir.IRObject, error) {
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
