package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"insight-assistant-be/internal/dto"
	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/internal/repository/memory"
	"insight-assistant-be/pkg/assistant"
	"insight-assistant-be/pkg/assistant/assistanttest"
	"insight-assistant-be/pkg/citation"
	"insight-assistant-be/pkg/dataset"
	"insight-assistant-be/pkg/run"
	"insight-assistant-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.RunEventMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, payload []byte) error {
	var msg dto.RunEventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

type fixture struct {
	svc       IAssistantService
	client    *assistanttest.Client
	sessions  *memory.SessionRepository
	ledger    *memory.Ledger
	publisher *recordingPublisher
}

func noWait(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	nop := logger.NewNopLogger()
	client := assistanttest.New()
	resolver := citation.NewCachedResolver(client, time.Minute)
	renderer := citation.NewRenderer(resolver, nop)
	orchestrator := run.NewOrchestrator(client, renderer, nop, run.Config{AssistantID: "asst_1", PollUnit: time.Millisecond})

	f := &fixture{
		client:    client,
		sessions:  memory.NewSessionRepository(time.Minute),
		ledger:    memory.NewLedger(),
		publisher: &recordingPublisher{},
	}
	f.svc = NewAssistantService(
		f.sessions,
		memory.NewSessionLocker(),
		f.ledger,
		client,
		dataset.NewNormalizer(client, nop),
		orchestrator,
		renderer,
		resolver,
		f.publisher,
		noWait,
		nop,
	)
	t.Cleanup(f.svc.Shutdown)
	return f
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	res, err := f.svc.CreateSession(t.Context(), "user-1")
	require.NoError(t, err)
	return res.Id
}

func csvUpload(name, body string) dataset.Upload {
	return dataset.Upload{Filename: name, MIMEType: dataset.MIMECSV, Body: strings.NewReader(body)}
}

func TestSessionOwnership(t *testing.T) {
	f := newFixture(t)
	id := f.session(t)

	got, err := f.svc.GetSession(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, id, got.Id)
	assert.Nil(t, got.Run)

	_, err = f.svc.GetSession(t.Context(), "intruder", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.GetSession(t.Context(), "user-1", "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUploadSupersedesAndReleasesPreviousContext(t *testing.T) {
	f := newFixture(t)
	id := f.session(t)

	first, err := f.svc.UploadDataset(t.Context(), "user-1", id, csvUpload("q2.csv", "a,b\n1,2\n"))
	require.NoError(t, err)
	second, err := f.svc.UploadDataset(t.Context(), "user-1", id, csvUpload("q3.csv", "a,b\n1,2\n3,4\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, second.RecordCount)
	assert.Equal(t, []string{first.ContextId}, f.client.Deleted)

	sess, err := f.svc.GetSession(t.Context(), "user-1", id)
	require.NoError(t, err)
	require.NotNil(t, sess.Context)
	assert.Equal(t, second.ContextId, sess.Context.ContextId)

	repo := f.ledger.NewUnitOfWork(t.Context()).StagedContextRepository()
	active, err := repo.FindBySession(t.Context(), id, entity.ContextStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ContextId, active[0].ContextId)

	released, err := repo.FindBySession(t.Context(), id, entity.ContextStatusReleased)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.NotNil(t, released[0].ReleasedAt)
}

func TestUploadRejectionLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	id := f.session(t)

	_, err := f.svc.UploadDataset(t.Context(), "user-1", id, dataset.Upload{
		Filename: "deck.pdf", MIMEType: "application/pdf", Body: strings.NewReader("%PDF"),
	})
	assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)

	sess, err := f.svc.GetSession(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Nil(t, sess.Context)
	assert.Equal(t, 0, sess.RetryCount)
}

func TestCallerDrivenTurn(t *testing.T) {
	f := newFixture(t)
	f.client.Polls = assistanttest.Script("queued", "completed")
	f.client.Messages = []assistant.Message{
		{ID: "m1", Role: assistant.RoleUser, Segments: []assistant.TextSegment{{Text: "hi"}}},
		{ID: "m2", Role: assistant.RoleAssistant, Segments: []assistant.TextSegment{{Text: "hello"}}},
	}
	id := f.session(t)

	staged, err := f.svc.UploadDataset(t.Context(), "user-1", id, csvUpload("q3.csv", "a\n1\n"))
	require.NoError(t, err)

	r, err := f.svc.SubmitTurn(t.Context(), "user-1", id, &dto.SubmitTurnRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, string(store.PhaseQueued), r.Phase)
	require.Len(t, f.client.Sent, 1)
	assert.Equal(t, []string{staged.ContextId}, f.client.Sent[0].ContextIDs)

	_, err = f.svc.SubmitTurn(t.Context(), "user-1", id, &dto.SubmitTurnRequest{Text: "again"})
	assert.ErrorIs(t, err, run.ErrRunAlreadyActive)
	assert.Equal(t, 1, f.client.Count("CreateRun"))

	out, err := f.svc.Advance(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, "pending", out.Kind)
	assert.Equal(t, int64(1), out.DelayMs)

	out, err = f.svc.Advance(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, "completed", out.Kind)
	require.Len(t, out.Messages, 2)

	// replaying a finished run makes no remote call and publishes nothing
	polls := f.client.Count("GetRun")
	out, err = f.svc.Advance(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, "completed", out.Kind)
	assert.Equal(t, polls, f.client.Count("GetRun"))

	assert.Equal(t, []string{"submitted", "pending", "completed"}, f.publisher.kinds())

	msgs, err := f.svc.Messages(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestAdvanceWithoutRun(t *testing.T) {
	f := newFixture(t)
	id := f.session(t)

	_, err := f.svc.Advance(t.Context(), "user-1", id)
	assert.ErrorIs(t, err, run.ErrNoActiveRun)

	msgs, err := f.svc.Messages(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFailedTurnKeepsLazilyCreatedThread(t *testing.T) {
	f := newFixture(t)
	f.client.CreateMessageErr = &assistant.APIError{StatusCode: 400, Message: "bad"}
	id := f.session(t)

	_, err := f.svc.SubmitTurn(t.Context(), "user-1", id, &dto.SubmitTurnRequest{Text: "hi"})
	require.Error(t, err)

	sess, err := f.svc.GetSession(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", sess.ThreadId)
	assert.Nil(t, sess.Run)
}

func TestBackgroundDrive(t *testing.T) {
	f := newFixture(t)
	f.client.Polls = assistanttest.Script("queued", "in_progress", "completed")
	id := f.session(t)

	_, err := f.svc.SubmitTurn(t.Context(), "user-1", id, &dto.SubmitTurnRequest{Text: "hi", Drive: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		sess, err := f.svc.GetSession(context.Background(), "user-1", id)
		return err == nil && sess.Run != nil && sess.Run.Phase == string(store.PhaseCompleted)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(f.publisher.kinds()) == 4 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, f.client.Count("GetRun"))
	assert.Equal(t, []string{"submitted", "pending", "pending", "completed"}, f.publisher.kinds())
}

func TestBackgroundDriveExhaustsBudget(t *testing.T) {
	f := newFixture(t)
	f.client.Polls = assistanttest.Script("failed")
	id := f.session(t)

	_, err := f.svc.SubmitTurn(t.Context(), "user-1", id, &dto.SubmitTurnRequest{Text: "hi", Drive: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		sess, err := f.svc.GetSession(context.Background(), "user-1", id)
		return err == nil && sess.Run != nil && sess.Run.Phase == string(store.PhaseFailedTerminal)
	}, 2*time.Second, 5*time.Millisecond)

	sess, err := f.svc.GetSession(t.Context(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, run.DefaultRetryBudget, sess.RetryCount)
	assert.Equal(t, run.ReasonOverloaded, sess.Run.Reason)
	assert.Equal(t, 3, f.client.Count("GetRun"))
}

func TestDeleteSessionReleasesContexts(t *testing.T) {
	f := newFixture(t)
	id := f.session(t)

	staged, err := f.svc.UploadDataset(t.Context(), "user-1", id, csvUpload("q3.csv", "a\n1\n"))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteSession(t.Context(), "intruder", id), ErrSessionNotFound)

	require.NoError(t, f.svc.DeleteSession(t.Context(), "user-1", id))
	assert.Equal(t, []string{staged.ContextId}, f.client.Deleted)

	_, err = f.svc.GetSession(t.Context(), "user-1", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	released, err := f.ledger.NewUnitOfWork(t.Context()).StagedContextRepository().
		FindBySession(t.Context(), id, entity.ContextStatusReleased)
	require.NoError(t, err)
	assert.Len(t, released, 1)
}

func TestDeleteSessionKeepsUnreleasedContextWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	id := f.session(t)

	_, err := f.svc.UploadDataset(t.Context(), "user-1", id, csvUpload("q3.csv", "a\n1\n"))
	require.NoError(t, err)

	f.client.DeleteFileErr = assistant.Transient(context.DeadlineExceeded)
	require.NoError(t, f.svc.DeleteSession(t.Context(), "user-1", id))

	active, err := f.ledger.NewUnitOfWork(t.Context()).StagedContextRepository().
		FindBySession(t.Context(), id, entity.ContextStatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestInstancesSharingStoreStartOneRun(t *testing.T) {
	nop := logger.NewNopLogger()
	client := assistanttest.New()
	sessions := memory.NewSessionRepository(time.Minute)
	ledger := memory.NewLedger()
	locks := memory.NewSessionLocker()

	// two API instances behind one session store and one lock service
	newInstance := func() IAssistantService {
		resolver := citation.NewCachedResolver(client, time.Minute)
		renderer := citation.NewRenderer(resolver, nop)
		orchestrator := run.NewOrchestrator(client, renderer, nop, run.Config{AssistantID: "asst_1", PollUnit: time.Millisecond})
		svc := NewAssistantService(sessions, locks, ledger, client, dataset.NewNormalizer(client, nop),
			orchestrator, renderer, resolver, &recordingPublisher{}, noWait, nop)
		t.Cleanup(svc.Shutdown)
		return svc
	}
	instances := []IAssistantService{newInstance(), newInstance()}

	created, err := instances[0].CreateSession(t.Context(), "user-1")
	require.NoError(t, err)

	errs := make([]error, len(instances))
	var wg sync.WaitGroup
	for i, svc := range instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.SubmitTurn(t.Context(), "user-1", created.Id, &dto.SubmitTurnRequest{Text: "hi"})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, run.ErrRunAlreadyActive)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, client.Count("CreateThread"))
	assert.Equal(t, 1, client.Count("CreateRun"))

	sess, err := instances[1].GetSession(t.Context(), "user-1", created.Id)
	require.NoError(t, err)
	require.NotNil(t, sess.Run)
	assert.Equal(t, 0, sess.RetryCount)
}
