package events

import (
	"strings"
	"time"
)

// Event is anything published on the external bus.
type Event interface {
	// EventType is the subject suffix, e.g. "run.completed".
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Run lifecycle event types.
const (
	RunSubmitted = "run.submitted"
	RunPending   = "run.pending"
	RunCompleted = "run.completed"
	RunFailed    = "run.failed"
)

// SubjectPrefix is prepended to the event type to form the NATS subject.
const SubjectPrefix = "events."

// Subject returns the bus subject of an event type.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// TypeFromSubject strips the subject prefix.
func TypeFromSubject(subject string) string {
	return strings.TrimPrefix(subject, SubjectPrefix)
}

// RunEvent describes one observed step of a run.
type RunEvent struct {
	SessionID string
	OwnerID   string
	RunID     string
	ThreadID  string
	Kind      string // submitted, pending, completed or failed
	Phase     string
	Status    string
	Reason    string
	Polls     int
	At        time.Time
}

func (e RunEvent) EventType() string {
	return "run." + e.Kind
}

func (e RunEvent) Payload() map[string]interface{} {
	data := map[string]interface{}{
		"session_id":  e.SessionID,
		"owner_id":    e.OwnerID,
		"run_id":      e.RunID,
		"thread_id":   e.ThreadID,
		"phase":       e.Phase,
		"status":      e.Status,
		"polls":       e.Polls,
		"occurred_at": e.At.Format(time.RFC3339Nano),
	}
	if e.Reason != "" {
		data["reason"] = e.Reason
	}
	return data
}

func (e RunEvent) Timestamp() time.Time {
	return e.At
}
