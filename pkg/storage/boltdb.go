package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/reptree/pkg/log"
	"github.com/cuemby/reptree/pkg/metrics"
	"github.com/cuemby/reptree/pkg/types"
)

var (
	bucketVertices         = []byte("vertices")
	bucketVerticesByParent = []byte("vertices_by_parent")
	bucketMoveOps          = []byte("move_ops")
	bucketMoveOpsByPeer    = []byte("move_ops_by_peer")
	bucketPropOps          = []byte("prop_ops")
	bucketPropOpsByPeer    = []byte("prop_ops_by_peer")
)

// BoltStore persists vertices and op logs to a single bbolt file using
// a bucket-per-entity layout: every read/write wraps a single
// transaction, values are
// JSON-marshaled, and secondary-index buckets are maintained alongside
// the primary one inside that same transaction so a crash mid-apply can
// never leave the index out of sync with the data.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt file at
// filepath.Join(dataDir, "reptree.db") and ensures all buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "reptree.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, types.NewStorageError(fmt.Errorf("open database: %w", err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketVertices,
			bucketVerticesByParent,
			bucketMoveOps,
			bucketMoveOpsByPeer,
			bucketPropOps,
			bucketPropOpsByPeer,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, types.NewStorageError(err)
	}

	return &BoltStore{db: db}, nil
}

func newBoltStorage(dataDir string) (*Storage, error) {
	store, err := NewBoltStore(dataDir)
	if err != nil {
		return nil, err
	}
	return &Storage{
		Vertices: store,
		MoveLog:  &boltMoveLog{store: store},
		PropLog:  &boltPropLog{store: store},
	}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- VertexStore ---

func (s *BoltStore) GetVertex(id types.VertexId) (*types.Vertex, error) {
	var vertex types.Vertex
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVertices)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &vertex)
	})
	if err != nil {
		return nil, types.NewSerializationError(err)
	}
	if !found {
		return nil, nil
	}
	return &vertex, nil
}

func (s *BoltStore) PutVertex(vertex types.Vertex) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		vb := tx.Bucket(bucketVertices)
		ib := tx.Bucket(bucketVerticesByParent)

		// Remove any stale secondary-index entry for this vertex before
		// writing the new one, in case the parent or idx changed.
		if existing := vb.Get([]byte(vertex.ID)); existing != nil {
			var old types.Vertex
			if err := json.Unmarshal(existing, &old); err == nil {
				if err := ib.Delete(childIndexKey(old.ParentID, old.Idx, old.ID)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(vertex)
		if err != nil {
			return err
		}
		if err := vb.Put([]byte(vertex.ID), data); err != nil {
			return err
		}
		return ib.Put(childIndexKey(vertex.ParentID, vertex.Idx, vertex.ID), []byte(vertex.ID))
	})
	if err != nil {
		return types.NewStorageError(err)
	}
	return nil
}

func (s *BoltStore) GetChildrenPage(parentID types.VertexId, afterIdx *int64, limit int) ([]ChildRef, error) {
	var refs []ChildRef
	prefix := childIndexPrefix(&parentID)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVerticesByParent)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			idx := decodeIdxFromKey(k, len(prefix))
			if afterIdx != nil && idx <= *afterIdx {
				continue
			}
			refs = append(refs, ChildRef{ID: types.VertexId(v), Idx: idx})
			if limit > 0 && len(refs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, types.NewStorageError(err)
	}
	return refs, nil
}

// childIndexKey builds the vertices_by_parent key: parent-sentinel (with
// a 0x00 terminator after a parent id, so one parent id never prefixes
// another's keys) + idx
// (big-endian, so lexicographic byte order matches numeric order) +
// vertex id, making entries for a parent naturally sorted by idx.
func childIndexKey(parentID *types.VertexId, idx int64, vertexID types.VertexId) []byte {
	key := childIndexPrefix(parentID)
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], uint64(idx))
	key = append(key, idxBuf[:]...)
	key = append(key, []byte(vertexID)...)
	return key
}

func childIndexPrefix(parentID *types.VertexId) []byte {
	if parentID == nil {
		return []byte{0x00}
	}
	prefix := []byte{0x01}
	prefix = append(prefix, []byte(*parentID)...)
	return append(prefix, 0x00)
}

func decodeIdxFromKey(key []byte, prefixLen int) int64 {
	if len(key) < prefixLen+8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(key[prefixLen : prefixLen+8]))
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

// --- Op logs ---

// boltMoveLog and boltPropLog are thin LogStore[T] adapters over the
// shared BoltStore, following the same seq-bucket and peer-index layout;
// duplicated rather than made generic because bbolt bucket names and
// JSON payloads differ per op type and Go generics cannot parameterize
// over a method receiver's bucket choice without an explicit dispatch
// table that would be harder to read than the duplication itself.
type boltMoveLog struct{ store *BoltStore }
type boltPropLog struct{ store *BoltStore }

func (l *boltMoveLog) Append(op types.MoveOp) (uint64, error) {
	var seq uint64
	err := l.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMoveOps)
		ib := tx.Bucket(bucketMoveOpsByPeer)

		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = next

		data, err := json.Marshal(op)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		return ib.Put(peerCounterKey(op.ID.PeerID, op.ID.Counter), seqKey(seq))
	})
	if err != nil {
		return 0, types.NewStorageError(err)
	}
	return seq, nil
}

func (l *boltMoveLog) LatestSeq() (uint64, error) {
	return latestSeq(l.store.db, bucketMoveOps)
}

func (l *boltMoveLog) ScanRange(opts types.ScanOptions) ([]types.MoveOp, error) {
	var ops []types.MoveOp
	err := scanByPeer(l.store.db, bucketMoveOps, bucketMoveOpsByPeer, opts, func(data []byte) {
		var op types.MoveOp
		if err := json.Unmarshal(data, &op); err != nil {
			metrics.OpsSkippedDuringSyncTotal.Inc()
			log.Warn("skipping malformed move op record during sync scan")
			return
		}
		ops = append(ops, op)
	})
	return ops, err
}

func (l *boltPropLog) Append(op types.SetPropertyOp) (uint64, error) {
	var seq uint64
	err := l.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPropOps)
		ib := tx.Bucket(bucketPropOpsByPeer)

		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = next

		data, err := json.Marshal(op)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		return ib.Put(peerCounterKey(op.ID.PeerID, op.ID.Counter), seqKey(seq))
	})
	if err != nil {
		return 0, types.NewStorageError(err)
	}
	return seq, nil
}

func (l *boltPropLog) LatestSeq() (uint64, error) {
	return latestSeq(l.store.db, bucketPropOps)
}

func (l *boltPropLog) ScanRange(opts types.ScanOptions) ([]types.SetPropertyOp, error) {
	var ops []types.SetPropertyOp
	err := scanByPeer(l.store.db, bucketPropOps, bucketPropOpsByPeer, opts, func(data []byte) {
		var op types.SetPropertyOp
		if err := json.Unmarshal(data, &op); err != nil {
			metrics.OpsSkippedDuringSyncTotal.Inc()
			log.Warn("skipping malformed property op record during sync scan")
			return
		}
		ops = append(ops, op)
	})
	return ops, err
}

func seqKey(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}

func peerCounterKey(peerID types.PeerId, counter uint64) []byte {
	key := []byte(peerID)
	key = append(key, 0x00)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	return append(key, buf[:]...)
}

func latestSeq(db *bolt.DB, bucket []byte) (uint64, error) {
	var seq uint64
	err := db.View(func(tx *bolt.Tx) error {
		seq = tx.Bucket(bucket).Sequence()
		return nil
	})
	if err != nil {
		return 0, types.NewStorageError(err)
	}
	return seq, nil
}

// scanByPeer resolves opts against the (peer, counter) secondary index
// when a peer is specified — the common path used by the replica
// engine's GetMissingOps, which always diffs per peer — and falls back
// to a full primary-bucket scan otherwise. With a peer, FromSeq and ToSeq
// bound the op's OpId counter (not its log seq) and matches come in
// counter order; without one they bound the seq and matches come in seq
// order. Matches are collected first, then Reverse flips that order, then
// Limit truncates — so Reverse/Limit apply the same way whether or not a
// peer filter narrowed the scan.
func scanByPeer(db *bolt.DB, primary, byPeer []byte, opts types.ScanOptions, emit func([]byte)) error {
	return db.View(func(tx *bolt.Tx) error {
		var values [][]byte

		if opts.PeerID == nil {
			c := tx.Bucket(primary).Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				seq := binary.BigEndian.Uint64(k)
				if opts.FromSeq != nil && seq < *opts.FromSeq {
					continue
				}
				if opts.ToSeq != nil && seq > *opts.ToSeq {
					continue
				}
				values = append(values, v)
			}
		} else {
			prefix := append([]byte(*opts.PeerID), 0x00)
			primaryBucket := tx.Bucket(primary)
			c := tx.Bucket(byPeer).Cursor()
			for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
				counter := binary.BigEndian.Uint64(k[len(prefix):])
				if opts.FromSeq != nil && counter < *opts.FromSeq {
					continue
				}
				if opts.ToSeq != nil && counter > *opts.ToSeq {
					continue
				}
				data := primaryBucket.Get(v)
				if data == nil {
					continue
				}
				values = append(values, data)
			}
		}

		if opts.Reverse {
			for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
				values[i], values[j] = values[j], values[i]
			}
		}
		if opts.Limit != nil && len(values) > *opts.Limit {
			values = values[:*opts.Limit]
		}
		for _, v := range values {
			emit(v)
		}
		return nil
	})
}
