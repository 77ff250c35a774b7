package events

import "rosca/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Carrier exposes the underlying typed payload for emitters that need the
// full attribute map (loggers, indexers).
type Carrier interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
