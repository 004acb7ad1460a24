/*
Package metrics provides Prometheus metrics collection and exposition for
a reptree replica, plus a small aggregated health/readiness JSON endpoint
built on top of pkg/health's checkers.

# Metrics

	reptree_ops_applied_total{kind}:
	  - Counter, incremented once per successfully applied operation
	  - kind: "move", "set_property", or "modify_property"

	reptree_ops_rejected_total{error_kind}:
	  - Counter, incremented once per operation that failed to apply
	  - error_kind matches types.ErrorKind

	reptree_ops_skipped_during_sync_total:
	  - Counter, log records skipped in GetMissingOps due to a
	    deserialization failure

	reptree_lamport_clock:
	  - Gauge, the replica's current logical clock value

	reptree_vertex_cache_size:
	  - Gauge, number of vertices currently cached

	reptree_vertex_cache_hits_total / reptree_vertex_cache_misses_total:
	  - Counters, GetVertex cache effectiveness

	reptree_apply_op_duration_seconds{kind}:
	  - Histogram, latency of a single ApplyOp call

	reptree_sync_duration_seconds:
	  - Histogram, latency of a GetMissingOps call

# Usage

	import "github.com/cuemby/reptree/pkg/metrics"

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())

# Health aggregation

RegisterComponent/UpdateComponent record the last-known health of a named
component (typically "storage" and "replica", driven by pkg/health's
StorageChecker/ReplicaChecker on a ticker). GetHealth/GetReadiness fold
those into a single JSON-serializable status; ReadyHandler additionally
requires both "storage" and "replica" to be registered and healthy before
it returns 200.
*/
package metrics
