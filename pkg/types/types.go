package types

import "fmt"

// VertexId identifies a vertex in the tree. Vertices are created with a
// randomly generated VertexId (see replica.Engine.CreateVertex) so that two
// peers never collide when creating concurrently.
type VertexId = string

// PeerId identifies a replica. Every OpId a replica allocates carries its
// own PeerId, which is what makes the total order on OpId well defined
// across replicas.
type PeerId = string

// OpId is a Lamport timestamp: a (counter, peer_id) pair that totally
// orders operations across replicas. Ties on counter are broken by a
// lexicographic comparison of peer_id.
type OpId struct {
	PeerID  PeerId `json:"peer_id"`
	Counter uint64 `json:"counter"`
}

// NewOpId builds an OpId for the given peer and counter value.
func NewOpId(peerID PeerId, counter uint64) OpId {
	return OpId{PeerID: peerID, Counter: counter}
}

// Compare returns -1, 0, or 1 following stdlib comparator convention:
// counter is compared first, then peer_id lexicographically on ties.
func (a OpId) Compare(b OpId) int {
	if a.Counter != b.Counter {
		if a.Counter < b.Counter {
			return -1
		}
		return 1
	}
	switch {
	case a.PeerID < b.PeerID:
		return -1
	case a.PeerID > b.PeerID:
		return 1
	default:
		return 0
	}
}

// String renders an OpId as "peer_id:counter", used in log fields.
func (a OpId) String() string {
	return fmt.Sprintf("%s:%d", a.PeerID, a.Counter)
}

// Range is an inclusive span of counters seen from a single peer, the unit
// a StateVector is built from and the unit a sync delta request is
// expressed in.
type Range struct {
	PeerID PeerId `json:"peer_id"`
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
}

// ScanOptions filters a LogStore.ScanRange call. PeerID, FromSeq, and ToSeq
// are all optional; a nil Limit means unbounded. When PeerID is set,
// FromSeq and ToSeq bound the OpId counter rather than the log sequence
// number.
type ScanOptions struct {
	PeerID  *PeerId
	FromSeq *uint64
	ToSeq   *uint64
	Limit   *int
	Reverse bool
}

// PropertyValueKind tags the active field of a PropertyValue.
type PropertyValueKind string

const (
	PropertyString  PropertyValueKind = "string"
	PropertyBoolean PropertyValueKind = "boolean"
	PropertyNumber  PropertyValueKind = "number"
	PropertyInteger PropertyValueKind = "integer"
	PropertyNull    PropertyValueKind = "null"
	PropertyArray   PropertyValueKind = "array"
	PropertyObject  PropertyValueKind = "object"
	PropertyOpaque  PropertyValueKind = "opaque_crdt_blob"
)

// PropertyValue is the closed sum type a vertex property can hold. It is
// represented as a tagged struct rather than an interface so that it
// round-trips through encoding/json without a registry of concrete types
// at every call site; see PropertyValue.MarshalJSON/UnmarshalJSON.
type PropertyValue struct {
	Kind   PropertyValueKind
	Str    string
	Bool   bool
	Num    float64
	Int    int64
	Array  []PropertyValue
	Object map[string]PropertyValue
	Opaque []byte
}

// StringValue builds a PropertyValue holding a string.
func StringValue(s string) PropertyValue { return PropertyValue{Kind: PropertyString, Str: s} }

// BooleanValue builds a PropertyValue holding a boolean.
func BooleanValue(b bool) PropertyValue { return PropertyValue{Kind: PropertyBoolean, Bool: b} }

// NumberValue builds a PropertyValue holding a float64.
func NumberValue(n float64) PropertyValue { return PropertyValue{Kind: PropertyNumber, Num: n} }

// IntegerValue builds a PropertyValue holding an int64.
func IntegerValue(i int64) PropertyValue { return PropertyValue{Kind: PropertyInteger, Int: i} }

// NullValue builds the null PropertyValue.
func NullValue() PropertyValue { return PropertyValue{Kind: PropertyNull} }

// ArrayValue builds a PropertyValue holding an ordered list of values.
func ArrayValue(items []PropertyValue) PropertyValue {
	return PropertyValue{Kind: PropertyArray, Array: items}
}

// ObjectValue builds a PropertyValue holding a string-keyed map of values.
func ObjectValue(fields map[string]PropertyValue) PropertyValue {
	return PropertyValue{Kind: PropertyObject, Object: fields}
}

// OpaqueValue builds a PropertyValue holding an opaque byte blob — the
// landing spot for ModifyPropertyOp updates, preserved verbatim and never
// interpreted by the replica engine.
func OpaqueValue(b []byte) PropertyValue { return PropertyValue{Kind: PropertyOpaque, Opaque: b} }

// Vertex is the materialized, current-state view of one tree node: its
// parent, its position among siblings, and its resolved properties. This
// is what VertexStore persists and what replica.Engine.GetVertex returns.
type Vertex struct {
	ID         VertexId                 `json:"id"`
	ParentID   *VertexId                `json:"parent_id,omitempty"`
	Idx        int64                    `json:"idx"`
	Properties map[string]PropertyValue `json:"properties"`
}

// Clone returns a copy of v with its own Properties map and ParentID, so
// adding, replacing or deleting properties on the copy does not affect v.
// The property values are copied by value: the Array, Object and Opaque
// contents inside them are shared with v.
func (v Vertex) Clone() Vertex {
	props := make(map[string]PropertyValue, len(v.Properties))
	for k, val := range v.Properties {
		props[k] = val
	}
	out := Vertex{ID: v.ID, Idx: v.Idx, Properties: props}
	if v.ParentID != nil {
		parent := *v.ParentID
		out.ParentID = &parent
	}
	return out
}

// MoveOp relocates (or creates, if the target doesn't yet exist) a vertex
// under a new parent. ParentID nil means "move to the root."
type MoveOp struct {
	ID        OpId      `json:"id"`
	TargetID  VertexId  `json:"target_id"`
	ParentID  *VertexId `json:"parent_id,omitempty"`
	Timestamp uint64    `json:"timestamp"`
}

// SetPropertyOp assigns a single property key on a vertex. Transient ops
// are broadcast via pkg/events and never reach the store, the logs, or the
// state vector.
type SetPropertyOp struct {
	ID        OpId          `json:"id"`
	TargetID  VertexId      `json:"target_id"`
	Key       string        `json:"key"`
	Value     PropertyValue `json:"value"`
	Transient bool          `json:"transient"`
}

// ModifyPropertyOp carries an opaque CRDT update (e.g. a Yjs update frame)
// for a property. The replica engine does not interpret Update; it
// projects the op onto a SetPropertyOp carrying Update as an
// OpaqueCrdtBlob value, replacing rather than merging the prior value.
// This is a deliberate simplification, not a full inner-CRDT merge.
type ModifyPropertyOp struct {
	ID       OpId     `json:"id"`
	TargetID VertexId `json:"target_id"`
	Key      string   `json:"key"`
	Update   []byte   `json:"update"`
}
