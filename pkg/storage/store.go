// Package storage defines and implements the persistence layer: a
// VertexStore for the materialized tree and a generic LogStore for the
// append-only move/property operation logs. Two backends — BoltStore and
// MemoryStore — satisfy the same interfaces with identical semantics,
// differing only in durability across restarts.
package storage

import (
	"github.com/cuemby/reptree/pkg/types"
)

// VertexStore persists the materialized, current-state view of the tree.
type VertexStore interface {
	// GetVertex returns the vertex for id, or nil if it does not exist.
	GetVertex(id types.VertexId) (*types.Vertex, error)

	// PutVertex upserts a vertex by ID.
	PutVertex(vertex types.Vertex) error

	// GetChildrenPage returns (child id, idx) pairs for parentID, ordered
	// by idx, starting after afterIdx (nil means from the beginning) and
	// bounded by limit.
	GetChildrenPage(parentID types.VertexId, afterIdx *int64, limit int) ([]ChildRef, error)

	// Close releases any resources held by the store.
	Close() error
}

// ChildRef is a lightweight (id, idx) pointer returned by
// VertexStore.GetChildrenPage, avoiding a full vertex load for siblings
// scans that only need ordering and identity.
type ChildRef struct {
	ID  types.VertexId
	Idx int64
}

// LoggedOp is the minimal contract a LogStore entry must satisfy so a
// generic store can maintain the (peer_id, counter) secondary index
// without knowing the concrete operation type.
type LoggedOp interface {
	types.MoveOp | types.SetPropertyOp
}

// LogStore is an append-only log of operations of type T (either MoveOp
// or SetPropertyOp), indexed for sequential scan and for scan-by-range
// over a single peer's counters.
type LogStore[T LoggedOp] interface {
	// Append adds op to the log and returns its assigned sequence number.
	Append(op T) (uint64, error)

	// LatestSeq returns the highest sequence number appended so far, or 0
	// if the log is empty.
	LatestSeq() (uint64, error)

	// ScanRange returns the operations matching opts, in ascending
	// sequence order unless opts.Reverse is set. When opts.PeerID is set,
	// FromSeq and ToSeq bound the OpId counter instead of the sequence
	// number, and results are in ascending counter order. A record that
	// fails to deserialize is skipped, not returned as an error.
	ScanRange(opts types.ScanOptions) ([]T, error)
}

// Storage aggregates the vertex store and both operation logs behind the
// backend chosen by Config.
type Storage struct {
	Vertices VertexStore
	MoveLog  LogStore[types.MoveOp]
	PropLog  LogStore[types.SetPropertyOp]
}

// BackendKind selects a storage implementation.
type BackendKind string

const (
	BackendMemory    BackendKind = "memory"
	BackendLocalPath BackendKind = "local_path"
)

// Config selects and configures a storage backend. Exactly one of the two
// fields is meaningful depending on Backend: LocalPath names the on-disk
// data directory (holding reptree.db) when Backend is BackendLocalPath,
// and is ignored otherwise.
type Config struct {
	Backend   BackendKind `yaml:"backend"`
	LocalPath string      `yaml:"local_path,omitempty"`
}

// NewStorage builds a Storage for the given config.
func NewStorage(cfg Config) (*Storage, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return newMemoryStorage(), nil
	case BackendLocalPath:
		return newBoltStorage(cfg.LocalPath)
	default:
		return nil, types.NewInvalidOperation("unknown storage backend: " + string(cfg.Backend))
	}
}
