// Package wire implements the tagged-union JSON envelope used to move a
// VertexOperation in and out of a byte stream: a demo CLI command, a log
// file, a round-trip test fixture. There is no transport here — callers
// decide how the bytes travel.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/reptree/pkg/types"
)

// Encode marshals a single operation to its tagged-union JSON form.
// encoding/json already base64-encodes the []byte fields inside
// ModifyPropertyOp.Update and OpaqueValue, so no extra encoding step is
// needed for those.
func Encode(op types.VertexOperation) ([]byte, error) {
	if err := validate(op); err != nil {
		return nil, types.NewSerializationError(err)
	}
	data, err := json.Marshal(op)
	if err != nil {
		return nil, types.NewSerializationError(err)
	}
	return data, nil
}

// Decode parses a tagged-union JSON operation and checks that the
// payload matches the branch named by its "type" field.
func Decode(data []byte) (types.VertexOperation, error) {
	var op types.VertexOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return types.VertexOperation{}, types.NewSerializationError(err)
	}
	if err := validate(op); err != nil {
		return types.VertexOperation{}, types.NewSerializationError(err)
	}
	return op, nil
}

// EncodeBatch marshals a slice of operations as a JSON array, the form
// GetMissingOps results are exchanged in.
func EncodeBatch(ops []types.VertexOperation) ([]byte, error) {
	for _, op := range ops {
		if err := validate(op); err != nil {
			return nil, types.NewSerializationError(err)
		}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return nil, types.NewSerializationError(err)
	}
	return data, nil
}

// DecodeBatch parses a JSON array of tagged-union operations.
func DecodeBatch(data []byte) ([]types.VertexOperation, error) {
	var ops []types.VertexOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, types.NewSerializationError(err)
	}
	for _, op := range ops {
		if err := validate(op); err != nil {
			return nil, types.NewSerializationError(err)
		}
	}
	return ops, nil
}

// validate rejects envelopes whose Kind doesn't match the populated
// branch, or where no branch (or more than one) is populated.
func validate(op types.VertexOperation) error {
	set := 0
	if op.Move != nil {
		set++
	}
	if op.SetProperty != nil {
		set++
	}
	if op.ModifyProperty != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("operation envelope must carry exactly one payload, got %d", set)
	}

	switch op.Kind {
	case types.OpKindMove:
		if op.Move == nil {
			return fmt.Errorf("type %q does not match populated payload", op.Kind)
		}
	case types.OpKindSetProperty:
		if op.SetProperty == nil {
			return fmt.Errorf("type %q does not match populated payload", op.Kind)
		}
	case types.OpKindModifyProperty:
		if op.ModifyProperty == nil {
			return fmt.Errorf("type %q does not match populated payload", op.Kind)
		}
	default:
		return fmt.Errorf("unknown operation type %q", op.Kind)
	}
	return nil
}
