package health

import (
	"context"
	"time"

	"github.com/cuemby/reptree/pkg/types"
)

// VertexPing is the minimal surface checkers need from a replica — just
// enough to ask "can you answer a read" without this package importing
// pkg/replica and creating a cycle (replica already imports pkg/health
// to publish its own readiness).
type VertexPing interface {
	GetVertex(id types.VertexId) (*types.Vertex, error)
}

// StorageChecker reports whether the backing VertexStore answers a lookup
// without error. It checks for a well-known root vertex id that need not
// exist — GetVertex returning (nil, nil) for a missing id is success, the
// same as finding it; only an error counts as unhealthy.
type StorageChecker struct {
	Ping    VertexPing
	ProbeID types.VertexId
}

func (c *StorageChecker) Check(ctx context.Context) Result {
	start := time.Now()
	_, err := c.Ping.GetVertex(c.ProbeID)
	result := Result{CheckedAt: start, Duration: time.Since(start)}
	if err != nil {
		result.Healthy = false
		result.Message = err.Error()
		return result
	}
	result.Healthy = true
	result.Message = "storage reachable"
	return result
}

func (c *StorageChecker) Type() CheckType { return CheckTypeStorage }

// ReplicaChecker reports whether a replica's Lamport clock accessor is
// callable — the cheapest possible non-I/O liveness signal, grounded on
// the same "probe the thing you embed" shape as StorageChecker.
type ReplicaChecker struct {
	ClockFunc func() uint64
}

func (c *ReplicaChecker) Check(ctx context.Context) Result {
	start := time.Now()
	_ = c.ClockFunc()
	return Result{
		Healthy:   true,
		Message:   "replica responsive",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func (c *ReplicaChecker) Type() CheckType { return CheckTypeReplica }
