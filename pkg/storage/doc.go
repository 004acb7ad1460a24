/*
Package storage provides persistence for the materialized tree and the
two append-only operation logs (move and property) behind a single
VertexStore/LogStore interface pair. Two backends implement it: BoltStore
(durable, bbolt-backed) and MemoryStore (process-lifetime only). A
replica engine is agnostic to which one it holds.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/reptree.db               │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ vertices            (Vertex ID)          │             │          │
	│  │  │ vertices_by_parent  (parent,idx,id)       │             │          │
	│  │  │ move_ops            (seq)                │             │          │
	│  │  │ move_ops_by_peer    (peer,counter -> seq) │             │          │
	│  │  │ prop_ops            (seq)                │             │          │
	│  │  │ prop_ops_by_peer    (peer,counter -> seq) │             │          │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Transaction Management                │          │
	│  │  - Read: db.View() - Concurrent reads       │          │
	│  │  - Write: db.Update() - Serialized writes   │          │
	│  │  - A vertex upsert and its secondary-index  │          │
	│  │    rewrite happen in one transaction        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          JSON Serialization                  │          │
	│  │  - Marshal: Go struct → JSON bytes          │          │
	│  │  - Unmarshal: JSON bytes → Go struct        │          │
	│  │  - Malformed records are skipped on scan,   │          │
	│  │    not treated as a fatal error             │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Secondary indexes

vertices_by_parent's key is parent-sentinel + big-endian idx + vertex id,
so a cursor seek on the parent prefix already yields children in idx
order — GetChildrenPage never needs a full bucket scan or an in-memory
sort. move_ops_by_peer and prop_ops_by_peer key on (peer_id, counter) so
GetMissingOps's per-range scan seeks directly instead of filtering every
record in the log.

# Memory backend

MemoryStore and memoryLog implement the same two interfaces over plain Go
maps and slices, each guarded by its own sync.RWMutex. MemoryStore is not a wrapper around an in-memory bbolt handle —
bbolt has no true memory-only mode — so its GetChildrenPage does an
in-memory sort instead of relying on key ordering. Callers cannot observe
the difference through the interface; only persistence across process
restarts differs.
*/
package storage
