package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/appatlas/appmap/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func streamInput(physicalCount int) domain.RunInput {
	ids := make([]string, physicalCount)
	for i := range ids {
		ids[i] = "P" + string(rune('1'+i))
	}
	return domain.RunInput{
		Physicals:      apps(ids...),
		Logicals:       apps("L1", "L2"),
		MaxConcurrency: 2,
	}
}

func collect(t *testing.T, events <-chan domain.RunEvent) []domain.RunEvent {
	t.Helper()
	var all []domain.RunEvent
	for ev := range events {
		all = append(all, ev)
	}
	return all
}

func TestProgressBroadcaster_Stream_EventSequence(t *testing.T) {
	oracle := &mockOracle{fn: answer("L1", 0.9)}
	mapper := NewAppMapper(oracle, &mockLogger{}, MapperOptions{})
	broadcaster := NewProgressBroadcaster(mapper, &mockLogger{})

	events := collect(t, broadcaster.Stream(context.Background(), streamInput(3)))

	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventStart, events[0].Type)
	assert.Equal(t, 3, events[0].Total)

	terminal := events[len(events)-1]
	require.Equal(t, domain.EventComplete, terminal.Type)
	require.NotNil(t, terminal.Summary)
	assert.Len(t, terminal.Mappings, 3)
	assert.True(t, terminal.Summary.MECECoverage)

	// Everything between start and the terminal event is progress, with a
	// non-decreasing processed count ending at total.
	progress := events[1 : len(events)-1]
	require.Len(t, progress, 3)
	last := 0
	for _, ev := range progress {
		assert.Equal(t, domain.EventProgress, ev.Type)
		assert.Equal(t, 3, ev.Total)
		assert.GreaterOrEqual(t, ev.Processed, last)
		last = ev.Processed
	}
	assert.Equal(t, 3, last)
}

func TestProgressBroadcaster_Stream_ValidationEmitsSingleErrorEvent(t *testing.T) {
	oracle := &mockOracle{fn: answer("L1", 0.9)}
	mapper := NewAppMapper(oracle, &mockLogger{}, MapperOptions{})
	broadcaster := NewProgressBroadcaster(mapper, &mockLogger{})

	events := collect(t, broadcaster.Stream(context.Background(), domain.RunInput{
		Physicals:      apps("P1"),
		Logicals:       apps("L1"),
		MaxConcurrency: 0,
	}))

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventError, events[0].Type)
	assert.Contains(t, events[0].Message, "maxConcurrency")
	// No start event and no oracle traffic before the failure.
	assert.Equal(t, int64(0), oracle.calls.Load())
}

func TestProgressBroadcaster_Stream_DisconnectStopsEmission(t *testing.T) {
	oracle := &mockOracle{fn: answer("L1", 0.9), delay: 10 * time.Millisecond}
	mapper := NewAppMapper(oracle, &mockLogger{}, MapperOptions{})
	broadcaster := NewProgressBroadcaster(mapper, &mockLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	events := broadcaster.Stream(ctx, streamInput(5))

	// Read the start event, then drop the connection.
	first := <-events
	assert.Equal(t, domain.EventStart, first.Type)
	cancel()

	// The channel must close without the consumer draining further events;
	// goleak (TestMain) verifies the producer goroutines exit.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-events:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("event channel did not close after disconnect")
		}
	}
}

func TestProgressBroadcaster_Stream_EventsAreWholeValues(t *testing.T) {
	oracle := &mockOracle{fn: answer("L2", 0.4)}
	mapper := NewAppMapper(oracle, &mockLogger{}, MapperOptions{})
	broadcaster := NewProgressBroadcaster(mapper, &mockLogger{})

	events := collect(t, broadcaster.Stream(context.Background(), streamInput(2)))
	terminal := events[len(events)-1]

	require.Equal(t, domain.EventComplete, terminal.Type)
	for _, rec := range terminal.Mappings {
		assert.Equal(t, "L2", rec.LogicalID)
		assert.Equal(t, "test rationale", rec.Rationale)
	}
	assert.Equal(t, 2, terminal.Summary.MappedCount)
}
