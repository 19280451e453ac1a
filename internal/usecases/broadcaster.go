package usecases

import (
	"context"

	"github.com/appatlas/appmap/internal/domain"
)

// MapperRunner is the mapper surface the broadcaster depends on.
// *AppMapper satisfies it; tests substitute scripted implementations.
type MapperRunner interface {
	Validate(input domain.RunInput) error
	Run(ctx context.Context, input domain.RunInput, onProgress ProgressFunc) (*domain.RunResult, error)
}

// ProgressBroadcaster exposes a mapping run as a serialized lifecycle event
// sequence: start, zero or more progress events, then exactly one terminal
// complete or error event. Events are whole values on a channel, so a
// consumer can never observe a partially written event.
type ProgressBroadcaster struct {
	mapper MapperRunner
	logger Logger
}

// NewProgressBroadcaster creates a broadcaster around the given mapper.
func NewProgressBroadcaster(mapper MapperRunner, log Logger) *ProgressBroadcaster {
	return &ProgressBroadcaster{mapper: mapper, logger: log}
}

// Stream starts the run and returns its event channel. The channel is closed
// after the terminal event.
//
// If ctx is cancelled mid-run (caller disconnect), the broadcaster stops
// emitting and the mapper stops dispatching new oracle calls; already
// in-flight calls finish naturally. The channel still closes promptly.
func (b *ProgressBroadcaster) Stream(ctx context.Context, input domain.RunInput) <-chan domain.RunEvent {
	events := make(chan domain.RunEvent)

	go func() {
		defer close(events)

		// Fail fast before announcing any work.
		if err := b.mapper.Validate(input); err != nil {
			b.send(ctx, events, domain.ErrorEvent(err.Error()))
			return
		}

		if !b.send(ctx, events, domain.StartEvent(len(input.Physicals))) {
			return
		}

		result, err := b.mapper.Run(ctx, input, func(processed, total int) {
			// The mapper serializes progress callbacks, so sends here keep
			// the processed sequence monotonic on the wire.
			b.send(ctx, events, domain.ProgressEvent(processed, total))
		})
		if err != nil {
			b.send(ctx, events, domain.ErrorEvent(err.Error()))
			return
		}

		b.send(ctx, events, domain.CompleteEvent(result))
	}()

	return events
}

// send delivers one event unless the caller has disconnected.
// Returns false once ctx is done; the run itself is stopped by the shared
// context, not by the broadcaster.
func (b *ProgressBroadcaster) send(ctx context.Context, events chan<- domain.RunEvent, ev domain.RunEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		b.logger.Debug(ctx, "caller disconnected, dropping event", map[string]interface{}{
			"event_type": string(ev.Type),
		})
		return false
	}
}
