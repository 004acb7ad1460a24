package types

// OperationKind tags which variant a VertexOperation carries.
type OperationKind string

const (
	OpKindMove           OperationKind = "move"
	OpKindSetProperty    OperationKind = "set_property"
	OpKindModifyProperty OperationKind = "modify_property"
)

// VertexOperation is the closed sum type of operations a replica can
// apply: exactly one of Move, SetProperty, or ModifyProperty is set,
// selected by Kind.
type VertexOperation struct {
	Kind           OperationKind     `json:"type"`
	Move           *MoveOp           `json:"move,omitempty"`
	SetProperty    *SetPropertyOp    `json:"set_property,omitempty"`
	ModifyProperty *ModifyPropertyOp `json:"modify_property,omitempty"`
}

// MoveOperation wraps a MoveOp as a VertexOperation.
func MoveOperation(op MoveOp) VertexOperation {
	return VertexOperation{Kind: OpKindMove, Move: &op}
}

// SetPropertyOperation wraps a SetPropertyOp as a VertexOperation.
func SetPropertyOperation(op SetPropertyOp) VertexOperation {
	return VertexOperation{Kind: OpKindSetProperty, SetProperty: &op}
}

// ModifyPropertyOperation wraps a ModifyPropertyOp as a VertexOperation.
func ModifyPropertyOperation(op ModifyPropertyOp) VertexOperation {
	return VertexOperation{Kind: OpKindModifyProperty, ModifyProperty: &op}
}

// OpId returns the id of whichever operation variant is set.
func (v VertexOperation) OpId() OpId {
	switch v.Kind {
	case OpKindMove:
		return v.Move.ID
	case OpKindSetProperty:
		return v.SetProperty.ID
	case OpKindModifyProperty:
		return v.ModifyProperty.ID
	default:
		return OpId{}
	}
}
