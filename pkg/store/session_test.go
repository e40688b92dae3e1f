package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseTerminal(t *testing.T) {
	terminal := map[Phase]bool{
		PhaseNoRun:          false,
		PhaseQueued:         false,
		PhaseRunning:        false,
		PhaseFailedRetrying: false,
		PhaseCompleted:      true,
		PhaseFailedTerminal: true,
	}
	for phase, want := range terminal {
		assert.Equal(t, want, phase.Terminal(), phase)
	}
}

func TestSessionRunState(t *testing.T) {
	s := &Session{ID: "s1"}
	assert.Equal(t, PhaseNoRun, s.RunPhase())
	assert.False(t, s.HasActiveRun())
	assert.Nil(t, s.ContextIDs())

	s.Run = &Run{ID: "run_1", Phase: PhaseRunning}
	s.Context = &StagedContext{ContextID: "file-1"}
	assert.True(t, s.HasActiveRun())
	assert.Equal(t, []string{"file-1"}, s.ContextIDs())

	s.Run.Phase = PhaseCompleted
	assert.False(t, s.HasActiveRun())
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := &Session{
		ID:      "s1",
		Context: &StagedContext{ContextID: "file-1", Columns: []string{"a"}},
		Run:     &Run{ID: "run_1", Phase: PhaseQueued},
	}

	c := s.Clone()
	c.Run.Phase = PhaseRunning
	c.Context.Columns[0] = "changed"

	assert.Equal(t, PhaseQueued, s.Run.Phase)
	assert.Equal(t, "a", s.Context.Columns[0])
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestSessionMarshalRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	s := &Session{ID: "s1", OwnerID: "u1", ThreadID: "thread_1", RetryCount: 2, CreatedAt: now,
		Run: &Run{ID: "run_1", Phase: PhaseFailedTerminal, Reason: "FAILED"}}

	raw, err := s.Marshal()
	require.NoError(t, err)
	got, err := Unmarshal(raw)
	require.NoError(t, err)

	assert.Equal(t, s.ThreadID, got.ThreadID)
	assert.Equal(t, s.RetryCount, got.RetryCount)
	assert.Equal(t, PhaseFailedTerminal, got.RunPhase())
	assert.True(t, now.Equal(got.CreatedAt))
}
