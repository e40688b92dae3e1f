package run

import (
	"context"
	"testing"
	"time"

	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/pkg/assistant/assistanttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWait struct {
	waits  []time.Duration
	failAt int
}

func (w *recordingWait) wait(ctx context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	if w.failAt > 0 && len(w.waits) == w.failAt {
		return context.Canceled
	}
	return nil
}

func TestDriveRunsToCompletion(t *testing.T) {
	client := assistanttest.New()
	client.Polls = assistanttest.Script("queued", "running", "running", "completed")
	o := newOrchestrator(client)
	sess := newSession()
	_, err := o.SubmitTurn(t.Context(), sess, "hello")
	require.NoError(t, err)

	w := &recordingWait{}
	var observed []OutcomeKind
	s := NewScheduler(o, w.wait, logger.NewNopLogger())

	out, err := s.Drive(t.Context(), sess, func(o Outcome) { observed = append(observed, o.Kind) })
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, []OutcomeKind{OutcomePending, OutcomePending, OutcomePending, OutcomeCompleted}, observed)
	assert.Equal(t, []time.Duration{unit, unit, unit}, w.waits)
	assert.Equal(t, 4, client.Count("GetRun"))
}

func TestDriveStopsOnTerminalFailure(t *testing.T) {
	client := assistanttest.New()
	client.Polls = assistanttest.Script("failed")
	o := newOrchestrator(client)
	sess := newSession()
	_, err := o.SubmitTurn(t.Context(), sess, "hello")
	require.NoError(t, err)

	w := &recordingWait{}
	out, err := NewScheduler(o, w.wait, logger.NewNopLogger()).Drive(t.Context(), sess, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, ReasonOverloaded, out.Reason)
	assert.Len(t, w.waits, 2)
}

func TestDriveCancelledAbandonsRun(t *testing.T) {
	client := assistanttest.New()
	client.Polls = assistanttest.Script("queued", "in_progress", "completed")
	o := newOrchestrator(client)
	sess := newSession()
	_, err := o.SubmitTurn(t.Context(), sess, "hello")
	require.NoError(t, err)

	w := &recordingWait{failAt: 1}
	out, err := NewScheduler(o, w.wait, logger.NewNopLogger()).Drive(t.Context(), sess, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomePending, out.Kind)
	assert.Equal(t, 1, client.Count("GetRun"))
	assert.True(t, sess.HasActiveRun())
}

func TestDrivePropagatesAdvanceErrors(t *testing.T) {
	o := newOrchestrator(assistanttest.New())
	_, err := NewScheduler(o, nil, logger.NewNopLogger()).Drive(t.Context(), newSession(), nil)
	assert.ErrorIs(t, err, ErrNoActiveRun)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(t.Context(), time.Millisecond))
}
