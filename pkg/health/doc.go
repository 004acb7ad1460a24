/*
Package health provides readiness checks for a replica's own storage and
liveness. Distinct from pkg/metrics, which exposes numeric time-series,
this package answers a single boolean: is this replica usable right now.

# Checks

  - StorageChecker: probes VertexStore.GetVertex for a well-known id;
    any error (not a missing vertex) marks storage unhealthy.
  - ReplicaChecker: calls the replica's Lamport clock accessor as the
    cheapest possible non-I/O liveness signal.

Status.Update folds a sequence of Check results into a single Healthy
bool, requiring Config.Retries consecutive failures before flipping —
so one slow storage round-trip doesn't flap readiness.
*/
package health
