package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrSessionNotFound is returned for unknown or foreign session ids.
var ErrSessionNotFound = errors.New("session not found")

// Phase is the orchestrator-side state of a run.
type Phase string

const (
	PhaseNoRun          Phase = "NO_RUN"
	PhaseQueued         Phase = "QUEUED"
	PhaseRunning        Phase = "RUNNING"
	PhaseCompleted      Phase = "COMPLETED"
	PhaseFailedRetrying Phase = "FAILED_RETRYING"
	PhaseFailedTerminal Phase = "FAILED_TERMINAL"
)

// Terminal reports whether no further polling happens in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailedTerminal
}

// StagedContext is an uploaded dataset ingested into the remote store
type StagedContext struct {
	ContextID      string    `json:"context_id"`
	SourceFilename string    `json:"source_filename"`
	RecordCount    int       `json:"record_count"`
	Columns        []string  `json:"columns"`
	StagedAt       time.Time `json:"staged_at"`
}

// Run is one remote job processing a single submitted turn.
type Run struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	Status       string    `json:"status"` // last remote status seen
	Phase        Phase     `json:"phase"`
	Polls        int       `json:"polls"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastPolledAt time.Time `json:"last_polled_at,omitempty"`
}

// Session is the explicit per-client state. It is passed into every
// orchestrator call and persisted by the caller between invocations.
type Session struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	ThreadID string `json:"thread_id,omitempty"` // created lazily, never recreated

	// At most one active context; replacing it leaves the old one to be released.
	Context *StagedContext `json:"context,omitempty"`

	Run        *Run `json:"run,omitempty"`
	RetryCount int  `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunPhase returns the phase of the current run, or PhaseNoRun.
func (s *Session) RunPhase() Phase {
	if s.Run == nil {
		return PhaseNoRun
	}
	return s.Run.Phase
}

// HasActiveRun reports whether a non-terminal run exists for the thread.
func (s *Session) HasActiveRun() bool {
	return s.Run != nil && !s.Run.Phase.Terminal()
}

// ContextIDs returns the ids to attach to a new user message.
func (s *Session) ContextIDs() []string {
	if s.Context == nil || s.Context.ContextID == "" {
		return nil
	}
	return []string{s.Context.ContextID}
}

// Clone returns a deep copy so stored state cannot be mutated through a
// caller's pointer.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Context != nil {
		c := *s.Context
		c.Columns = append([]string(nil), s.Context.Columns...)
		out.Context = &c
	}
	if s.Run != nil {
		r := *s.Run
		out.Run = &r
	}
	return &out
}

// Marshal encodes the session for external stores.
func (s *Session) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a session written by Marshal.
func Unmarshal(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
