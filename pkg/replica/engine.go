// Package replica hosts the Replica Engine: the logical clock, vertex
// cache, and apply/sync orchestration that sits on top of pkg/storage and
// pkg/statevector. It is the only package that mutates a replica's state.
package replica

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/reptree/pkg/events"
	"github.com/cuemby/reptree/pkg/log"
	"github.com/cuemby/reptree/pkg/metrics"
	"github.com/cuemby/reptree/pkg/statevector"
	"github.com/cuemby/reptree/pkg/storage"
	"github.com/cuemby/reptree/pkg/types"
)

// DefaultCacheSize is the vertex cache capacity used when Config.CacheSize
// is zero.
const DefaultCacheSize = 50000

// childPageSize is the batch size GetChildren pages through the store with.
const childPageSize = 1000

// Config configures a new Engine.
type Config struct {
	PeerID    types.PeerId   `yaml:"peer_id"`
	CacheSize int            `yaml:"cache_size,omitempty"`
	Storage   storage.Config `yaml:"storage"`

	// HealthProbeID, when non-empty, starts a background Collector that
	// periodically refreshes this engine's cache/clock gauges and runs
	// its storage/replica readiness checks. Left empty, no Collector
	// runs — useful for short-lived engines such as tests and one-shot
	// CLI invocations that would outlive nothing by having one.
	HealthProbeID string `yaml:"health_probe_id,omitempty"`
}

// Engine is a single replica: a logical clock, a bounded vertex cache, the
// backing Storage, a StateVector tracking every OpId it has applied, and a
// Broker for transient (never-persisted) property broadcasts.
type Engine struct {
	peerID types.PeerId

	mu    sync.Mutex // guards clock allocation and the apply sequence
	clock uint64

	cacheMu sync.Mutex // held only for a cache lookup/update, never across store I/O
	cache   *lru.Cache[types.VertexId, types.Vertex]

	svMu        sync.RWMutex
	stateVector *statevector.StateVector

	storage   *storage.Storage
	broker    *events.Broker
	logger    zerolog.Logger
	collector *Collector
}

// NewEngine builds an Engine from cfg: opens the configured storage
// backend, starts the transient-property event broker, and seeds the
// clock and cache fresh. The state vector starts empty, also when the
// storage already holds logged operations: the logs are not replayed to
// rebuild it.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.PeerID == "" {
		return nil, types.NewInvalidOperation("peer_id must not be empty")
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[types.VertexId, types.Vertex](cacheSize)
	if err != nil {
		return nil, types.NewStorageError(fmt.Errorf("create vertex cache: %w", err))
	}

	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	e := &Engine{
		peerID:      cfg.PeerID,
		cache:       cache,
		stateVector: statevector.New(),
		storage:     store,
		broker:      broker,
		logger:      log.WithPeerID(string(cfg.PeerID)),
	}

	if cfg.HealthProbeID != "" {
		e.collector = NewCollector(e, cfg.HealthProbeID)
		e.collector.Start()
	}

	e.logger.Info().Int("cache_size", cacheSize).Str("backend", string(cfg.Storage.Backend)).Msg("replica engine started")
	return e, nil
}

// PeerID returns this replica's identity.
func (e *Engine) PeerID() types.PeerId { return e.peerID }

// LamportClock returns the current logical clock value.
func (e *Engine) LamportClock() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// Subscribe returns a channel receiving every transient property event
// this engine broadcasts. See pkg/events.
func (e *Engine) Subscribe() events.Subscriber { return e.broker.Subscribe() }

// Close stops the collector (if running), releases the broker, and
// closes the backing storage.
func (e *Engine) Close() error {
	if e.collector != nil {
		e.collector.Stop()
	}
	e.broker.Stop()
	return e.storage.Vertices.Close()
}

// updateLamportClockLocked advances the clock past a newly observed origin
// timestamp: clock <- max(clock, timestamp) + 1. Must be called with e.mu
// held.
func (e *Engine) updateLamportClockLocked(timestamp uint64) {
	if timestamp > e.clock {
		e.clock = timestamp
	}
	e.clock++
	metrics.LamportClock.Set(float64(e.clock))
}

// newOpIDLocked allocates a fresh OpId for a locally originated operation: the
// counter is the clock's current value, then the clock is incremented.
// Must be called with e.mu held.
func (e *Engine) newOpIDLocked() types.OpId {
	id := types.NewOpId(e.peerID, e.clock)
	e.clock++
	metrics.LamportClock.Set(float64(e.clock))
	return id
}

// originTimestamp returns the logical timestamp an inbound op advances
// the clock from: MoveOp carries an explicit Timestamp field; the other
// two op kinds have no separate field, so their OpId counter doubles as
// their origin timestamp.
func originTimestamp(op types.VertexOperation) uint64 {
	switch op.Kind {
	case types.OpKindMove:
		return op.Move.Timestamp
	default:
		return op.OpId().Counter
	}
}

// ApplyOp applies a single operation, dispatching on its kind. It is safe
// to call the same OpId twice: if the state vector already covers it, the
// store, logs, and state vector are left untouched and the call returns
// the op's id with a nil error.
func (e *Engine) ApplyOp(op types.VertexOperation) (types.OpId, error) {
	opID := op.OpId()
	kind := string(op.Kind)

	e.mu.Lock()
	defer e.mu.Unlock()

	if op.Kind != types.OpKindSetProperty || !isTransient(op) {
		e.svMu.RLock()
		already := e.stateVector.Contains(opID.PeerID, opID.Counter)
		e.svMu.RUnlock()
		if already {
			e.logger.Debug().Str("op_id", opID.String()).Str("kind", kind).Msg("op already applied, skipping")
			return opID, nil
		}
	}

	timer := metrics.NewTimer()
	e.updateLamportClockLocked(originTimestamp(op))

	var err error
	switch op.Kind {
	case types.OpKindMove:
		err = e.applyMove(*op.Move)
		if err == nil {
			err = e.appendMove(*op.Move)
		}
	case types.OpKindSetProperty:
		err = e.applySetProperty(*op.SetProperty)
	case types.OpKindModifyProperty:
		projected := projectModifyProperty(*op.ModifyProperty)
		err = e.applySetProperty(projected)
	default:
		err = types.NewInvalidOperation("unknown operation kind: " + kind)
	}

	timer.ObserveDurationVec(metrics.ApplyOpDuration, kind)

	if err != nil {
		var kindErr *types.Error
		errKind := "unknown"
		if errors.As(err, &kindErr) {
			errKind = string(kindErr.Kind)
		}
		metrics.OpsRejectedTotal.WithLabelValues(errKind).Inc()
		e.logger.Warn().Str("op_id", opID.String()).Str("kind", kind).Err(err).Msg("op rejected")
		return types.OpId{}, err
	}

	metrics.OpsAppliedTotal.WithLabelValues(kind).Inc()
	e.logger.Info().Str("op_id", opID.String()).Str("kind", kind).Msg("op applied")
	return opID, nil
}

// ApplyOps applies ops in the given order, stopping at the first error.
// Callers of the sync API must supply ops in OpId order for convergence;
// this helper does not reorder them.
func (e *Engine) ApplyOps(ops []types.VertexOperation) ([]types.OpId, error) {
	ids := make([]types.OpId, 0, len(ops))
	for _, op := range ops {
		id, err := e.ApplyOp(op)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func isTransient(op types.VertexOperation) bool {
	return op.Kind == types.OpKindSetProperty && op.SetProperty != nil && op.SetProperty.Transient
}

func projectModifyProperty(op types.ModifyPropertyOp) types.SetPropertyOp {
	return types.SetPropertyOp{
		ID:        op.ID,
		TargetID:  op.TargetID,
		Key:       op.Key,
		Value:     types.OpaqueValue(op.Update),
		Transient: false,
	}
}

// applyMove implements apply-protocol rule 1. Called with e.mu held.
func (e *Engine) applyMove(op types.MoveOp) error {
	if op.ParentID != nil {
		parent, err := e.readVertex(*op.ParentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return types.NewVertexNotFound(*op.ParentID)
		}
	}

	target, err := e.readVertex(op.TargetID)
	if err != nil {
		return err
	}

	var vertex types.Vertex
	if target == nil {
		vertex = types.Vertex{
			ID:         op.TargetID,
			ParentID:   op.ParentID,
			Idx:        0,
			Properties: make(map[string]types.PropertyValue),
		}
		if op.ParentID != nil {
			idx, err := e.nextChildIdx(op.ParentID)
			if err != nil {
				return err
			}
			vertex.Idx = idx
		}
	} else {
		idx, err := e.nextChildIdx(op.ParentID)
		if err != nil {
			return err
		}
		vertex = target.Clone()
		vertex.ParentID = op.ParentID
		vertex.Idx = idx
	}

	return e.writeVertex(vertex)
}

// nextChildIdx returns 1 + the max idx among parentID's existing
// children, or 1 if it has none. For a nil parentID (a move to the root)
// root-level vertices are not examined and the result is always 1.
func (e *Engine) nextChildIdx(parentID *types.VertexId) (int64, error) {
	var key types.VertexId
	if parentID != nil {
		key = *parentID
	}
	refs, err := e.storage.Vertices.GetChildrenPage(key, nil, 0)
	if err != nil {
		return 0, types.NewStorageError(err)
	}
	var max int64
	for _, r := range refs {
		if r.Idx > max {
			max = r.Idx
		}
	}
	return max + 1, nil
}

// applySetProperty implements apply-protocol rule 2. Called with e.mu held.
func (e *Engine) applySetProperty(op types.SetPropertyOp) error {
	target, err := e.readVertex(op.TargetID)
	if err != nil {
		return err
	}
	if target == nil {
		return types.NewVertexNotFound(op.TargetID)
	}

	if op.Transient {
		e.broker.Publish(&events.Event{
			Type:     events.EventTransientProperty,
			PeerID:   string(op.ID.PeerID),
			VertexID: string(op.TargetID),
			Key:      op.Key,
		})
		return nil
	}

	vertex := target.Clone()
	vertex.Properties[op.Key] = op.Value
	if err := e.writeVertex(vertex); err != nil {
		return err
	}
	return e.appendProperty(op)
}

func (e *Engine) appendMove(op types.MoveOp) error {
	if _, err := e.storage.MoveLog.Append(op); err != nil {
		return err
	}
	e.svMu.Lock()
	e.stateVector.Add(op.ID.PeerID, op.ID.Counter)
	e.svMu.Unlock()
	return nil
}

func (e *Engine) appendProperty(op types.SetPropertyOp) error {
	if _, err := e.storage.PropLog.Append(op); err != nil {
		return err
	}
	e.svMu.Lock()
	e.stateVector.Add(op.ID.PeerID, op.ID.Counter)
	e.svMu.Unlock()
	return nil
}

// readVertex and writeVertex are the cache-then-store helpers used by the
// apply path; they hold cacheMu only for the map access, never across
// store I/O.
func (e *Engine) readVertex(id types.VertexId) (*types.Vertex, error) {
	e.cacheMu.Lock()
	if v, ok := e.cache.Get(id); ok {
		e.cacheMu.Unlock()
		metrics.VertexCacheHitsTotal.Inc()
		clone := v.Clone()
		return &clone, nil
	}
	e.cacheMu.Unlock()
	metrics.VertexCacheMissesTotal.Inc()

	v, err := e.storage.Vertices.GetVertex(id)
	if err != nil {
		return nil, types.NewStorageError(err)
	}
	if v == nil {
		return nil, nil
	}

	e.cacheMu.Lock()
	e.cache.Add(id, v.Clone())
	metrics.VertexCacheSize.Set(float64(e.cache.Len()))
	e.cacheMu.Unlock()

	return v, nil
}

func (e *Engine) writeVertex(vertex types.Vertex) error {
	if err := e.storage.Vertices.PutVertex(vertex); err != nil {
		return types.NewStorageError(err)
	}

	e.cacheMu.Lock()
	e.cache.Add(vertex.ID, vertex.Clone())
	metrics.VertexCacheSize.Set(float64(e.cache.Len()))
	e.cacheMu.Unlock()

	return nil
}

// GetVertex returns the vertex for id, or nil if it does not exist. Safe
// to call concurrently with other reads and with mutators, since it never
// holds cacheMu across store I/O.
func (e *Engine) GetVertex(id types.VertexId) (*types.Vertex, error) {
	return e.readVertex(id)
}

// GetChildren pages through the store in batches of 1000, hydrates each
// child, and returns them ordered by idx ascending.
func (e *Engine) GetChildren(parentID types.VertexId) ([]types.Vertex, error) {
	var all []types.Vertex
	var after *int64

	for {
		refs, err := e.storage.Vertices.GetChildrenPage(parentID, after, childPageSize)
		if err != nil {
			return nil, types.NewStorageError(err)
		}
		if len(refs) == 0 {
			break
		}
		for _, ref := range refs {
			v, err := e.readVertex(ref.ID)
			if err != nil {
				return nil, err
			}
			if v != nil {
				all = append(all, *v)
			}
		}
		last := refs[len(refs)-1].Idx
		after = &last
		if len(refs) < childPageSize {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Idx < all[j].Idx })
	return all, nil
}

// CreateVertex generates a fresh random id, allocates an OpId, and applies
// a MoveOp placing it under parentID (nil for the root).
func (e *Engine) CreateVertex(parentID *types.VertexId) (types.VertexId, error) {
	id := uuid.New().String()

	e.mu.Lock()
	opID := e.newOpIDLocked()
	e.mu.Unlock()

	op := types.MoveOperation(types.MoveOp{
		ID:        opID,
		TargetID:  id,
		ParentID:  parentID,
		Timestamp: opID.Counter,
	})
	if _, err := e.ApplyOp(op); err != nil {
		return "", err
	}
	return id, nil
}

// SetProperty allocates an OpId and applies a (non-transient) SetPropertyOp.
func (e *Engine) SetProperty(vertexID types.VertexId, key string, value types.PropertyValue) (types.OpId, error) {
	e.mu.Lock()
	opID := e.newOpIDLocked()
	e.mu.Unlock()

	op := types.SetPropertyOperation(types.SetPropertyOp{
		ID:       opID,
		TargetID: vertexID,
		Key:      key,
		Value:    value,
	})
	return e.ApplyOp(op)
}

// MoveVertex allocates an OpId and applies a MoveOp reparenting vertexID.
func (e *Engine) MoveVertex(vertexID types.VertexId, parentID *types.VertexId) (types.OpId, error) {
	e.mu.Lock()
	opID := e.newOpIDLocked()
	e.mu.Unlock()

	op := types.MoveOperation(types.MoveOp{
		ID:        opID,
		TargetID:  vertexID,
		ParentID:  parentID,
		Timestamp: opID.Counter,
	})
	return e.ApplyOp(op)
}

// GetStateVector returns a snapshot of every (peer, range) this replica
// has recorded as applied.
func (e *Engine) GetStateVector() map[types.PeerId][]types.Range {
	e.svMu.RLock()
	defer e.svMu.RUnlock()
	return e.stateVector.GetRanges()
}

// GetMissingOps computes self.state_vector().diff(theirState) and returns
// every operation covering the missing ranges, sorted by OpId ascending.
// The move-log and property-log scans for a given range have no data
// dependency on each other, so they run concurrently via errgroup; a
// per-record deserialization failure is already swallowed, logged and
// counted inside the storage layer's ScanRange, so nothing here handles it.
func (e *Engine) GetMissingOps(theirState map[types.PeerId][]types.Range) ([]types.VertexOperation, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

	theirs := statevector.FromRanges(theirState)

	e.svMu.RLock()
	missing := e.stateVector.Diff(theirs)
	e.svMu.RUnlock()

	var (
		mu      sync.Mutex
		moveOps []types.MoveOp
		propOps []types.SetPropertyOp
	)

	g := new(errgroup.Group)
	for _, r := range missing {
		r := r
		g.Go(func() error {
			opts := types.ScanOptions{PeerID: &r.PeerID, FromSeq: &r.Start, ToSeq: &r.End}
			ops, err := e.storage.MoveLog.ScanRange(opts)
			if err != nil {
				return types.NewStorageError(err)
			}
			mu.Lock()
			moveOps = append(moveOps, ops...)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			opts := types.ScanOptions{PeerID: &r.PeerID, FromSeq: &r.Start, ToSeq: &r.End}
			ops, err := e.storage.PropLog.ScanRange(opts)
			if err != nil {
				return types.NewStorageError(err)
			}
			mu.Lock()
			propOps = append(propOps, ops...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error().Err(err).Msg("sync scan failed")
		return nil, err
	}

	result := make([]types.VertexOperation, 0, len(moveOps)+len(propOps))
	for _, op := range moveOps {
		result = append(result, types.MoveOperation(op))
	}
	for _, op := range propOps {
		result = append(result, types.SetPropertyOperation(op))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpId().Compare(result[j].OpId()) < 0
	})

	e.logger.Info().Int("count", len(result)).Msg("computed sync delta")
	return result, nil
}
