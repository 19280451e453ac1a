package domain

// EventType discriminates the lifecycle events of a mapping run.
type EventType string

// Lifecycle event types, emitted in this order: one start, zero or more
// progress events, then exactly one terminal complete or error event.
const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// RunEvent is one element of the lifecycle event sequence for a mapping run.
// Only the fields relevant to the event's type are populated; the zero-valued
// rest is omitted on the wire.
type RunEvent struct {
	Type EventType `json:"type"`

	// Total is the number of physical applications in the run.
	// Set on start and progress events.
	Total int `json:"total,omitempty"`

	// Processed counts completed items (mapped or repaired). Monotonically
	// non-decreasing across the emitted sequence. Set on progress events.
	Processed int `json:"processed,omitempty"`

	// Mappings and Summary carry the full result set. Set on complete events.
	Mappings []MappingRecord `json:"mappings,omitempty"`
	Summary  *RunSummary     `json:"summary,omitempty"`

	// Message describes the failure. Set on error events.
	Message string `json:"message,omitempty"`
}

// StartEvent builds the initial lifecycle event.
func StartEvent(total int) RunEvent {
	return RunEvent{Type: EventStart, Total: total}
}

// ProgressEvent builds a per-item progress event.
func ProgressEvent(processed, total int) RunEvent {
	return RunEvent{Type: EventProgress, Processed: processed, Total: total}
}

// CompleteEvent builds the successful terminal event.
func CompleteEvent(result *RunResult) RunEvent {
	summary := result.Summary
	return RunEvent{Type: EventComplete, Mappings: result.Mappings, Summary: &summary}
}

// ErrorEvent builds the failing terminal event.
func ErrorEvent(message string) RunEvent {
	return RunEvent{Type: EventError, Message: message}
}
