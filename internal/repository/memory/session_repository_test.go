package memory

import (
	"testing"
	"time"

	"insight-assistant-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepositoryIsolatesCopies(t *testing.T) {
	repo := NewSessionRepository(time.Minute)
	sess := &store.Session{ID: "s1", OwnerID: "u1", Run: &store.Run{ID: "run_1", Phase: store.PhaseQueued}}

	require.NoError(t, repo.Save(t.Context(), sess))
	sess.Run.Phase = store.PhaseCompleted

	got, err := repo.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, store.PhaseQueued, got.RunPhase())

	got.ThreadID = "thread_x"
	again, err := repo.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.Empty(t, again.ThreadID)
}

func TestSessionRepositoryMissingAndDelete(t *testing.T) {
	repo := NewSessionRepository(0)

	_, err := repo.Get(t.Context(), "nope")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	require.NoError(t, repo.Save(t.Context(), &store.Session{ID: "s1"}))
	require.NoError(t, repo.Delete(t.Context(), "s1"))
	_, err = repo.Get(t.Context(), "s1")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}
