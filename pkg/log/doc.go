/*
Package log provides structured logging for reptree using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("replica")                 │          │
	│  │  - WithPeerID("peer-abc123")                │          │
	│  │  - WithVertexID("vertex-xyz")               │          │
	│  │  - WithOpID("peer-abc123:42")               │          │
	│  └──────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	replicaLog := log.WithComponent("replica").With().Str("peer_id", peerID).Logger()
	replicaLog.Info().Str("op_id", opID.String()).Msg("applied move operation")
*/
package log
