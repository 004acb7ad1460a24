/*
Package events provides an in-memory broker for broadcasting transient
property signals.

Transient SetPropertyOps (presence, cursor position, and similar ephemeral
state) are never written to the vertex store, the op logs, or the state
vector — a replica's Engine publishes them to a Broker instead, so any
process embedding the engine can observe them without paying for
persistence or including them in sync.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Engine.ApplyOp (transient) → Event Channel │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

A full subscriber buffer drops the event rather than blocking the
broadcast loop; transient signals are presence hints, not guaranteed
delivery.
*/
package events
