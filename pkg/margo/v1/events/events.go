package events

import "time"

// EventType represents the type of a margo engine event.
type EventType string

// Standard margo event types.
const (
	ModelStart     EventType = "ModelStart"     // Engine begins processing a model document
	ModelEnd       EventType = "ModelEnd"       // Engine finished processing (after all queries)
	SolveStart     EventType = "SolveStart"     // A solve pass over the model begins
	SolveCompleted EventType = "SolveCompleted" // A solve pass finished and produced solutions
	CacheRebuilt   EventType = "CacheRebuilt"   // Materialized marginal cache was atomically replaced
	QueryAnswered  EventType = "QueryAnswered"  // A query completed with a result
	QueryRejected  EventType = "QueryRejected"  // A query failed validation (unresolved support, multiple scenarios, zero mass)
)

// Event represents a significant occurrence within the margo engine.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// ModelName identifies the model context, if applicable.
	ModelName string `json:"model_name,omitempty"`
	// QueryName identifies the query context, if applicable.
	QueryName string `json:"query_name,omitempty"`
	// Payload contains event-specific data, e.g. scenario keys of a solve
	// pass or the rejection reason of a query.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing events within the margo engine.
// Implementations could include logging, metrics translation, or sending to
// message queues.
type Bus interface {
	// Emit publishes an event to the bus. Implementations should be
	// non-blocking or handle blocking carefully to avoid slowing down the
	// engine core.
	Emit(event Event)
}
