package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of error categories a replica operation can
// fail with.
type ErrorKind string

const (
	// ErrKindVertexNotFound: an operation referenced a vertex (as a move
	// parent or a property target) that does not exist. A missing move
	// target is created, not reported.
	ErrKindVertexNotFound ErrorKind = "vertex_not_found"
	// ErrKindInvalidOperation: the operation itself is structurally
	// invalid (e.g. an unknown operation kind), or a request is (e.g. an
	// empty peer id or an unknown storage backend).
	ErrKindInvalidOperation ErrorKind = "invalid_operation"
	// ErrKindStorage: the backing VertexStore or LogStore failed.
	ErrKindStorage ErrorKind = "storage"
	// ErrKindSerialization: encoding or decoding a stored/wire value failed.
	ErrKindSerialization ErrorKind = "serialization"
)

// Error is the single error type returned across this module's public API.
// It carries a closed Kind so callers can branch with errors.As, and wraps
// an optional cause so errors.Is/errors.Unwrap chains still work.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewVertexNotFound reports that id does not exist in the vertex store.
func NewVertexNotFound(id VertexId) error {
	return &Error{Kind: ErrKindVertexNotFound, Message: fmt.Sprintf("vertex %q not found", id)}
}

// NewInvalidOperation reports that an operation is structurally invalid.
func NewInvalidOperation(reason string) error {
	return &Error{Kind: ErrKindInvalidOperation, Message: reason}
}

// NewStorageError wraps a backend failure.
func NewStorageError(cause error) error {
	return &Error{Kind: ErrKindStorage, Message: "storage operation failed", Cause: cause}
}

// NewSerializationError wraps an encode/decode failure.
func NewSerializationError(cause error) error {
	return &Error{Kind: ErrKindSerialization, Message: "serialization failed", Cause: cause}
}

// IsVertexNotFound reports whether the first *Error in err's chain is a
// vertex-not-found error. A vertex-not-found error carried as the Cause of
// an *Error of another kind does not count.
func IsVertexNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == ErrKindVertexNotFound
	}
	return false
}
