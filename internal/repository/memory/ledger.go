package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/repository/contract"
	"insight-assistant-be/internal/repository/specification"
	"insight-assistant-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// Ledger is an in-process stand-in for the Postgres ledger, used when no
// database is configured. Transactions are not isolated.
type Ledger struct {
	mu       sync.RWMutex
	contexts map[uuid.UUID]*entity.StagedContext
	runs     map[string]*entity.RunRecord
}

func NewLedger() *Ledger {
	return &Ledger{
		contexts: make(map[uuid.UUID]*entity.StagedContext),
		runs:     make(map[string]*entity.RunRecord),
	}
}

// NewUnitOfWork satisfies unitofwork.RepositoryFactory.
func (l *Ledger) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &ledgerUnitOfWork{ledger: l}
}

var _ unitofwork.RepositoryFactory = (*Ledger)(nil)

type ledgerUnitOfWork struct {
	ledger *Ledger
}

func (u *ledgerUnitOfWork) Begin(ctx context.Context) error { return nil }
func (u *ledgerUnitOfWork) Commit() error                   { return nil }
func (u *ledgerUnitOfWork) Rollback() error                 { return nil }

func (u *ledgerUnitOfWork) StagedContextRepository() contract.StagedContextRepository {
	return &stagedContextRepository{ledger: u.ledger}
}

func (u *ledgerUnitOfWork) RunRecordRepository() contract.RunRecordRepository {
	return &runRecordRepository{ledger: u.ledger}
}

// filter evaluates the specifications the repositories understand.
type filter struct {
	id        *uuid.UUID
	sessionID *string
	ownerID   *string
	contextID *string
	runID     *string
	statuses  []string
	desc      bool
	limit     int
}

func newFilter(specs []specification.Specification) filter {
	var f filter
	for _, s := range specs {
		switch spec := s.(type) {
		case specification.ByID:
			f.id = &spec.ID
		case specification.BySessionID:
			f.sessionID = &spec.SessionID
		case specification.ByOwnerID:
			f.ownerID = &spec.OwnerID
		case specification.ByContextID:
			f.contextID = &spec.ContextID
		case specification.ByRunID:
			f.runID = &spec.RunID
		case specification.ByStatuses:
			f.statuses = spec.Statuses
		case specification.OrderBy:
			f.desc = spec.Desc
		case specification.Limit:
			f.limit = spec.N
		}
	}
	return f
}

func (f filter) matchStatus(status string) bool {
	if len(f.statuses) == 0 {
		return true
	}
	for _, s := range f.statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (f filter) matchContext(c *entity.StagedContext) bool {
	return (f.id == nil || *f.id == c.Id) &&
		(f.sessionID == nil || *f.sessionID == c.SessionId) &&
		(f.ownerID == nil || *f.ownerID == c.OwnerId) &&
		(f.contextID == nil || *f.contextID == c.ContextId) &&
		f.matchStatus(c.Status)
}

func (f filter) matchRun(r *entity.RunRecord) bool {
	return (f.id == nil || *f.id == r.Id) &&
		(f.sessionID == nil || *f.sessionID == r.SessionId) &&
		(f.ownerID == nil || *f.ownerID == r.OwnerId) &&
		(f.runID == nil || *f.runID == r.RunId)
}

type stagedContextRepository struct {
	ledger *Ledger
}

func copyContext(c *entity.StagedContext) *entity.StagedContext {
	out := *c
	out.Columns = append([]string(nil), c.Columns...)
	return &out
}

func (r *stagedContextRepository) Create(ctx context.Context, staged *entity.StagedContext) error {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	for _, c := range r.ledger.contexts {
		if c.ContextId == staged.ContextId {
			return contract.ErrDuplicateContext
		}
	}
	if staged.Id == uuid.Nil {
		staged.Id = uuid.New()
	}
	if staged.CreatedAt.IsZero() {
		staged.CreatedAt = time.Now()
	}
	r.ledger.contexts[staged.Id] = copyContext(staged)
	return nil
}

func (r *stagedContextRepository) Update(ctx context.Context, staged *entity.StagedContext) error {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	now := time.Now()
	staged.UpdatedAt = &now
	r.ledger.contexts[staged.Id] = copyContext(staged)
	return nil
}

func (r *stagedContextRepository) SupersedeActive(ctx context.Context, sessionId string) ([]*entity.StagedContext, error) {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	var out []*entity.StagedContext
	now := time.Now()
	for _, c := range r.ledger.contexts {
		if c.SessionId == sessionId && c.Status == entity.ContextStatusActive {
			c.Status = entity.ContextStatusSuperseded
			c.UpdatedAt = &now
			out = append(out, copyContext(c))
		}
	}
	return out, nil
}

func (r *stagedContextRepository) FindBySession(ctx context.Context, sessionId string, statuses ...string) ([]*entity.StagedContext, error) {
	return r.FindAll(ctx, specification.BySessionID{SessionID: sessionId}, specification.ByStatuses{Statuses: statuses})
}

func (r *stagedContextRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.StagedContext, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *stagedContextRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.StagedContext, error) {
	f := newFilter(specs)
	r.ledger.mu.RLock()
	defer r.ledger.mu.RUnlock()

	out := make([]*entity.StagedContext, 0)
	for _, c := range r.ledger.contexts {
		if f.matchContext(c) {
			out = append(out, copyContext(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if f.desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.limit > 0 && len(out) > f.limit {
		out = out[:f.limit]
	}
	return out, nil
}

func (r *stagedContextRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

type runRecordRepository struct {
	ledger *Ledger
}

func (r *runRecordRepository) Upsert(ctx context.Context, record *entity.RunRecord) error {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	now := time.Now()
	if existing, ok := r.ledger.runs[record.RunId]; ok {
		record.Id = existing.Id
		record.CreatedAt = existing.CreatedAt
	} else {
		if record.Id == uuid.Nil {
			record.Id = uuid.New()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
	}
	record.UpdatedAt = &now
	stored := *record
	r.ledger.runs[record.RunId] = &stored
	return nil
}

func (r *runRecordRepository) FindByRunId(ctx context.Context, runId string) (*entity.RunRecord, error) {
	r.ledger.mu.RLock()
	defer r.ledger.mu.RUnlock()
	if rec, ok := r.ledger.runs[runId]; ok {
		out := *rec
		return &out, nil
	}
	return nil, nil
}

func (r *runRecordRepository) FindBySession(ctx context.Context, sessionId string, limit int) ([]*entity.RunRecord, error) {
	f := newFilter([]specification.Specification{specification.BySessionID{SessionID: sessionId}})
	r.ledger.mu.RLock()
	defer r.ledger.mu.RUnlock()

	out := make([]*entity.RunRecord, 0)
	for _, rec := range r.ledger.runs {
		if f.matchRun(rec) {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *runRecordRepository) DeleteBySession(ctx context.Context, sessionId string) error {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	for id, rec := range r.ledger.runs {
		if rec.SessionId == sessionId {
			delete(r.ledger.runs, id)
		}
	}
	return nil
}

func (r *runRecordRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	f := newFilter(specs)
	r.ledger.mu.RLock()
	defer r.ledger.mu.RUnlock()
	var n int64
	for _, rec := range r.ledger.runs {
		if f.matchRun(rec) {
			n++
		}
	}
	return n, nil
}
