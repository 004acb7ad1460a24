/*
Package types defines the core data structures shared across reptree: the
op model, the materialized vertex, the error taxonomy, and the closed
PropertyValue sum type. Every other package builds on these definitions —
storage persists them, statevector ranges over OpId.Counter, replica
applies them, wire encodes them.

# Core Types

Identifiers:
  - VertexId, PeerId: plain strings, kept as distinct aliases for clarity
    at call sites rather than for type safety encoding/json can't see through.
  - OpId: a (peer_id, counter) Lamport timestamp with a total Compare order.

Operations:
  - MoveOp: relocates or creates a vertex under a new parent.
  - SetPropertyOp: assigns a property key, optionally transient.
  - ModifyPropertyOp: carries an opaque CRDT update, projected onto
    SetPropertyOp by the replica engine rather than merged.

Materialized state:
  - Vertex: current parent, sibling index, and resolved properties.
  - PropertyValue: closed sum type (string/boolean/number/integer/null/
    array/object/opaque blob), encoded as a JSON tagged union.

Errors:
  - Error: single exported error type with a closed Kind enum
    (VertexNotFound, InvalidOperation, Storage, Serialization).

All types are designed to be:
  - Serializable (JSON tagged unions, see property_json.go)
  - Comparable where ordering matters (OpId.Compare)
  - Free of behavior beyond their own invariants — the CRDT merge rules
    live in pkg/replica, not here.
*/
package types
