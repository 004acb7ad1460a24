package storage

import (
	"sort"
	"sync"

	"github.com/cuemby/reptree/pkg/types"
)

// MemoryStore is the `memory` backend's VertexStore: a map guarded by an
// RWMutex. Its two logs are memoryLog values, each with its own
// RWMutex. Together they satisfy exactly the
// same interfaces as BoltStore with exactly the same semantics, except
// that nothing survives a process restart.
type MemoryStore struct {
	mu       sync.RWMutex
	vertices map[types.VertexId]types.Vertex
}

func newMemoryStorage() *Storage {
	store := &MemoryStore{vertices: make(map[types.VertexId]types.Vertex)}
	return &Storage{
		Vertices: store,
		MoveLog:  newMemoryLog[types.MoveOp](),
		PropLog:  newMemoryLog[types.SetPropertyOp](),
	}
}

func (s *MemoryStore) GetVertex(id types.VertexId) (*types.Vertex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vertices[id]
	if !ok {
		return nil, nil
	}
	clone := v.Clone()
	return &clone, nil
}

func (s *MemoryStore) PutVertex(vertex types.Vertex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vertices[vertex.ID] = vertex.Clone()
	return nil
}

func (s *MemoryStore) GetChildrenPage(parentID types.VertexId, afterIdx *int64, limit int) ([]ChildRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []ChildRef
	for _, v := range s.vertices {
		if v.ParentID == nil || *v.ParentID != parentID {
			continue
		}
		if afterIdx != nil && v.Idx <= *afterIdx {
			continue
		}
		refs = append(refs, ChildRef{ID: v.ID, Idx: v.Idx})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Idx < refs[j].Idx })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (s *MemoryStore) Close() error { return nil }

// memoryLog is a generic in-memory LogStore[T] backed by an append-only
// slice plus a (peer, counter) index, mirroring the bbolt-backed log's
// layout without the durability.
type memoryLog[T LoggedOp] struct {
	mu      sync.RWMutex
	entries []T
	peerIdx map[types.PeerId]map[uint64]int // peer -> counter -> slice index
}

func newMemoryLog[T LoggedOp]() *memoryLog[T] {
	return &memoryLog[T]{peerIdx: make(map[types.PeerId]map[uint64]int)}
}

func (l *memoryLog[T]) Append(op T) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := len(l.entries)
	l.entries = append(l.entries, op)

	peerID, counter := opIdentity(op)
	if l.peerIdx[peerID] == nil {
		l.peerIdx[peerID] = make(map[uint64]int)
	}
	l.peerIdx[peerID][counter] = idx

	return uint64(idx) + 1, nil
}

func (l *memoryLog[T]) LatestSeq() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries)), nil
}

func (l *memoryLog[T]) ScanRange(opts types.ScanOptions) ([]T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []T
	if opts.PeerID == nil {
		for i, op := range l.entries {
			seq := uint64(i) + 1
			if opts.FromSeq != nil && seq < *opts.FromSeq {
				continue
			}
			if opts.ToSeq != nil && seq > *opts.ToSeq {
				continue
			}
			result = append(result, op)
		}
		return applyLimit(result, opts), nil
	}

	byCounter, ok := l.peerIdx[*opts.PeerID]
	if !ok {
		return nil, nil
	}

	counters := make([]uint64, 0, len(byCounter))
	for c := range byCounter {
		if opts.FromSeq != nil && c < *opts.FromSeq {
			continue
		}
		if opts.ToSeq != nil && c > *opts.ToSeq {
			continue
		}
		counters = append(counters, c)
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i] < counters[j] })

	for _, c := range counters {
		result = append(result, l.entries[byCounter[c]])
	}
	return applyLimit(result, opts), nil
}

func applyLimit[T any](ops []T, opts types.ScanOptions) []T {
	if opts.Reverse {
		for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
			ops[i], ops[j] = ops[j], ops[i]
		}
	}
	if opts.Limit != nil && len(ops) > *opts.Limit {
		ops = ops[:*opts.Limit]
	}
	return ops
}

// opIdentity extracts the (peer_id, counter) pair from either supported
// log entry type.
func opIdentity[T LoggedOp](op T) (types.PeerId, uint64) {
	switch v := any(op).(type) {
	case types.MoveOp:
		return v.ID.PeerID, v.ID.Counter
	case types.SetPropertyOp:
		return v.ID.PeerID, v.ID.Counter
	default:
		return "", 0
	}
}
