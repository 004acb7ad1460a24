package replica

import (
	"context"
	"time"

	"github.com/cuemby/reptree/pkg/health"
	"github.com/cuemby/reptree/pkg/metrics"
	"github.com/cuemby/reptree/pkg/types"
)

// Collector periodically refreshes this engine's gauge metrics and runs
// its readiness checkers on a ticker. It lives here rather than in
// pkg/metrics because it needs to read Engine's own state, and this
// package imports pkg/metrics to publish its counters — an Engine-aware
// collector inside pkg/metrics would import this package right back.
type Collector struct {
	engine  *Engine
	storage *health.StorageChecker
	replica *health.ReplicaChecker
	config  health.Config
	stopCh  chan struct{}
}

// NewCollector builds a Collector for e using probeID as the storage
// checker's well-known lookup id (it need not exist; only a lookup error
// counts as unhealthy).
func NewCollector(e *Engine, probeID string) *Collector {
	return &Collector{
		engine: e,
		storage: &health.StorageChecker{
			Ping:    e,
			ProbeID: types.VertexId(probeID),
		},
		replica: &health.ReplicaChecker{ClockFunc: e.LamportClock},
		config:  health.DefaultConfig(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the periodic collection loop.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.config.Interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	storageResult := c.storage.Check(ctx)
	replicaResult := c.replica.Check(ctx)

	metrics.UpdateComponent(string(c.storage.Type()), storageResult.Healthy, storageResult.Message)
	metrics.UpdateComponent(string(c.replica.Type()), replicaResult.Healthy, replicaResult.Message)

	metrics.VertexCacheSize.Set(float64(c.engine.cache.Len()))
	metrics.LamportClock.Set(float64(c.engine.LamportClock()))
}
