package memory

import (
	"testing"
	"time"

	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/repository/contract"
	"insight-assistant-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStagedContexts(t *testing.T) {
	ctx := t.Context()
	uow := NewLedger().NewUnitOfWork(ctx)
	require.NoError(t, uow.Begin(ctx))
	repo := uow.StagedContextRepository()

	first := &entity.StagedContext{SessionId: "s1", ContextId: "file_1", Status: entity.ContextStatusActive, CreatedAt: time.Now().Add(-time.Minute)}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.Id)

	dup := &entity.StagedContext{SessionId: "s1", ContextId: "file_1", Status: entity.ContextStatusActive}
	assert.ErrorIs(t, repo.Create(ctx, dup), contract.ErrDuplicateContext)

	superseded, err := repo.SupersedeActive(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, superseded, 1)
	assert.Equal(t, entity.ContextStatusSuperseded, superseded[0].Status)

	require.NoError(t, repo.Create(ctx, &entity.StagedContext{SessionId: "s1", ContextId: "file_2", Status: entity.ContextStatusActive}))
	require.NoError(t, repo.Create(ctx, &entity.StagedContext{SessionId: "s2", ContextId: "file_3", Status: entity.ContextStatusActive}))

	active, err := repo.FindBySession(ctx, "s1", entity.ContextStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "file_2", active[0].ContextId)

	all, err := repo.FindBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := repo.FindOne(ctx, specification.ByContextID{ContextID: "file_3"})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "s2", one.SessionId)

	n, err := repo.Count(ctx, specification.ByStatuses{Statuses: []string{entity.ContextStatusActive}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, uow.Commit())
}

func TestLedgerRunRecords(t *testing.T) {
	ctx := t.Context()
	repo := NewLedger().NewUnitOfWork(ctx).RunRecordRepository()

	rec := &entity.RunRecord{SessionId: "s1", RunId: "run_1", Phase: "QUEUED"}
	require.NoError(t, repo.Upsert(ctx, rec))
	id := rec.Id

	require.NoError(t, repo.Upsert(ctx, &entity.RunRecord{SessionId: "s1", RunId: "run_1", Phase: "COMPLETED", Polls: 3}))
	got, err := repo.FindByRunId(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, id, got.Id)
	assert.Equal(t, "COMPLETED", got.Phase)
	assert.Equal(t, 3, got.Polls)

	require.NoError(t, repo.Upsert(ctx, &entity.RunRecord{SessionId: "s1", RunId: "run_2", CreatedAt: time.Now().Add(time.Second)}))
	history, err := repo.FindBySession(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "run_2", history[0].RunId)

	n, err := repo.Count(ctx, specification.BySessionID{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, repo.DeleteBySession(ctx, "s1"))
	missing, err := repo.FindByRunId(ctx, "run_1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
