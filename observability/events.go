package observability

import (
	"log/slog"

	"rosca/core/events"
)

// LogEmitter publishes ledger events as structured log lines. It satisfies
// the fire-and-forget event sink contract: emission never fails the emitting
// invocation.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter wraps the supplied logger; nil falls back to the default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements events.Emitter.
func (l *LogEmitter) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(events.Carrier); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	l.logger.Info("ledger event", args...)
}
