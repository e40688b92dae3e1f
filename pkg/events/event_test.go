package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunEventPayload(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e := RunEvent{SessionID: "s1", RunID: "run_1", Kind: "failed", Phase: "FAILED_TERMINAL", Reason: "busy", Polls: 3, At: at}

	assert.Equal(t, RunFailed, e.EventType())
	assert.Equal(t, "events.run.failed", Subject(e.EventType()))
	assert.Equal(t, "run.failed", TypeFromSubject("events.run.failed"))

	p := e.Payload()
	assert.Equal(t, "s1", p["session_id"])
	assert.Equal(t, "busy", p["reason"])
	assert.Equal(t, 3, p["polls"])
	assert.Equal(t, "2024-05-01T10:00:00Z", p["occurred_at"])
	assert.Equal(t, at, e.Timestamp())

	_, hasReason := RunEvent{Kind: "pending"}.Payload()["reason"]
	assert.False(t, hasReason)
}
