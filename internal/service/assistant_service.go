package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"insight-assistant-be/internal/dto"
	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/internal/repository/contract"
	"insight-assistant-be/internal/repository/unitofwork"
	"insight-assistant-be/pkg/assistant"
	"insight-assistant-be/pkg/citation"
	"insight-assistant-be/pkg/dataset"
	"insight-assistant-be/pkg/run"
	"insight-assistant-be/pkg/store"

	"github.com/google/uuid"
)

const moduleName = "AssistantService"

// ErrSessionNotFound is returned for unknown sessions and for sessions owned
// by another caller.
var ErrSessionNotFound = store.ErrSessionNotFound

// FilenameCache lets the service seed citation lookups with names it
// already knows.
type FilenameCache interface {
	Remember(fileID, filename string)
}

type IAssistantService interface {
	CreateSession(ctx context.Context, ownerId string) (*dto.CreateSessionResponse, error)
	GetSession(ctx context.Context, ownerId, sessionId string) (*dto.SessionResponse, error)
	DeleteSession(ctx context.Context, ownerId, sessionId string) error
	UploadDataset(ctx context.Context, ownerId, sessionId string, upload dataset.Upload) (*dto.StagedContextResponse, error)
	SubmitTurn(ctx context.Context, ownerId, sessionId string, request *dto.SubmitTurnRequest) (*dto.RunResponse, error)
	Advance(ctx context.Context, ownerId, sessionId string) (*dto.OutcomeResponse, error)
	Messages(ctx context.Context, ownerId, sessionId string) ([]citation.DisplayMessage, error)
	Runs(ctx context.Context, ownerId, sessionId string, limit int) ([]*dto.RunRecordResponse, error)
	// Shutdown stops every background drive.
	Shutdown()
}

type assistantService struct {
	sessions     contract.SessionRepository
	uowFactory   unitofwork.RepositoryFactory
	client       assistant.Client
	normalizer   *dataset.Normalizer
	orchestrator *run.Orchestrator
	renderer     *citation.Renderer
	filenames    FilenameCache
	publisher    IPublisherService
	wait         run.WaitFunc
	logger       logger.ILogger

	locks contract.SessionLocker

	drivesMu sync.Mutex
	drives   map[string]*drive
}

type drive struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAssistantService(
	sessions contract.SessionRepository,
	locks contract.SessionLocker,
	uowFactory unitofwork.RepositoryFactory,
	client assistant.Client,
	normalizer *dataset.Normalizer,
	orchestrator *run.Orchestrator,
	renderer *citation.Renderer,
	filenames FilenameCache,
	publisher IPublisherService,
	wait run.WaitFunc,
	logger logger.ILogger,
) IAssistantService {
	return &assistantService{
		sessions:     sessions,
		uowFactory:   uowFactory,
		client:       client,
		normalizer:   normalizer,
		orchestrator: orchestrator,
		renderer:     renderer,
		filenames:    filenames,
		publisher:    publisher,
		wait:         wait,
		logger:       logger,
		locks:        locks,
		drives:       make(map[string]*drive),
	}
}

func (s *assistantService) CreateSession(ctx context.Context, ownerId string) (*dto.CreateSessionResponse, error) {
	now := time.Now().UTC()
	sess := &store.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerId,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info(moduleName, "Session created", map[string]interface{}{
		"session_id": sess.ID,
		"owner_id":   ownerId,
	})
	return &dto.CreateSessionResponse{Id: sess.ID}, nil
}

func (s *assistantService) GetSession(ctx context.Context, ownerId, sessionId string) (*dto.SessionResponse, error) {
	sess, err := s.load(ctx, ownerId, sessionId)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

func (s *assistantService) DeleteSession(ctx context.Context, ownerId, sessionId string) error {
	if _, err := s.load(ctx, ownerId, sessionId); err != nil {
		return err
	}
	s.stopDrive(sessionId)

	unlock, err := s.locks.Lock(ctx, sessionId)
	if err != nil {
		return err
	}
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	staged, err := uow.StagedContextRepository().FindBySession(ctx, sessionId,
		entity.ContextStatusActive, entity.ContextStatusSuperseded)
	if err != nil {
		return err
	}
	s.release(ctx, staged)

	if err := uow.RunRecordRepository().DeleteBySession(ctx, sessionId); err != nil {
		s.logger.Warn(moduleName, "Failed to delete run history", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
	}

	if err := s.sessions.Delete(ctx, sessionId); err != nil {
		return err
	}
	s.logger.Info(moduleName, "Session deleted", map[string]interface{}{
		"session_id":        sessionId,
		"released_contexts": len(staged),
	})
	return nil
}

func (s *assistantService) UploadDataset(ctx context.Context, ownerId, sessionId string, upload dataset.Upload) (*dto.StagedContextResponse, error) {
	unlock, err := s.locks.Lock(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, ownerId, sessionId)
	if err != nil {
		return nil, err
	}

	staged, err := s.normalizer.Normalize(ctx, upload)
	if err != nil {
		return nil, err
	}
	if s.filenames != nil {
		s.filenames.Remember(staged.ContextID, dataset.IngestName(staged.SourceFilename))
	}

	superseded, err := s.recordContext(ctx, sess, staged)
	if err != nil {
		return nil, err
	}

	sess.Context = staged
	sess.UpdatedAt = time.Now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	// the session no longer references the old files
	s.release(ctx, superseded)

	return toStagedContextResponse(staged), nil
}

// recordContext supersedes the session's active context and records the new
// one in a single transaction.
func (s *assistantService) recordContext(ctx context.Context, sess *store.Session, staged *store.StagedContext) ([]*entity.StagedContext, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	superseded, err := uow.StagedContextRepository().SupersedeActive(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	err = uow.StagedContextRepository().Create(ctx, &entity.StagedContext{
		Id:             uuid.New(),
		SessionId:      sess.ID,
		OwnerId:        sess.OwnerID,
		ContextId:      staged.ContextID,
		SourceFilename: staged.SourceFilename,
		RecordCount:    staged.RecordCount,
		Columns:        staged.Columns,
		Status:         entity.ContextStatusActive,
		CreatedAt:      staged.StagedAt,
	})
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return superseded, nil
}

// release deletes remote files and marks them released. Failures leave the
// row superseded so a later delete can retry.
func (s *assistantService) release(ctx context.Context, staged []*entity.StagedContext) {
	if len(staged) == 0 {
		return
	}
	repo := s.uowFactory.NewUnitOfWork(ctx).StagedContextRepository()

	for _, c := range staged {
		err := s.client.DeleteFile(ctx, c.ContextId)
		var apiErr *assistant.APIError
		if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == 404) {
			s.logger.Warn(moduleName, "Failed to release staged context", map[string]interface{}{
				"session_id": c.SessionId,
				"context_id": c.ContextId,
				"error":      err.Error(),
			})
			continue
		}

		now := time.Now().UTC()
		c.Status = entity.ContextStatusReleased
		c.ReleasedAt = &now
		if err := repo.Update(ctx, c); err != nil {
			s.logger.Error(moduleName, "Failed to mark context released", map[string]interface{}{
				"context_id": c.ContextId,
				"error":      err.Error(),
			})
		}
	}
}

func (s *assistantService) SubmitTurn(ctx context.Context, ownerId, sessionId string, request *dto.SubmitTurnRequest) (*dto.RunResponse, error) {
	unlock, err := s.locks.Lock(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, ownerId, sessionId)
	if err != nil {
		return nil, err
	}

	threadBefore := sess.ThreadID
	r, err := s.orchestrator.SubmitTurn(ctx, sess, request.Text)
	if err != nil {
		// a lazily created thread is kept even when the turn fails
		if sess.ThreadID != threadBefore {
			if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
				s.logger.Error(moduleName, "Failed to keep new thread", map[string]interface{}{
					"session_id": sessionId,
					"error":      saveErr.Error(),
				})
			}
		}
		return nil, err
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.publish(ctx, sess, "submitted", nil)

	if request.Drive {
		s.startDrive(sess.ID, ownerId)
	}
	return toRunResponse(r), nil
}

func (s *assistantService) Advance(ctx context.Context, ownerId, sessionId string) (*dto.OutcomeResponse, error) {
	out, err := s.advance(ctx, ownerId, sessionId)
	if err != nil {
		return nil, err
	}
	return toOutcomeResponse(out), nil
}

// advance runs one orchestrator step against the stored session.
func (s *assistantService) advance(ctx context.Context, ownerId, sessionId string) (run.Outcome, error) {
	unlock, err := s.locks.Lock(ctx, sessionId)
	if err != nil {
		return run.Outcome{}, err
	}
	defer unlock()

	sess, err := s.load(ctx, ownerId, sessionId)
	if err != nil {
		return run.Outcome{}, err
	}

	replay := sess.Run != nil && sess.Run.Phase.Terminal()
	out, err := s.orchestrator.Advance(ctx, sess)
	if err != nil {
		return run.Outcome{}, err
	}
	if replay {
		return out, nil
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return run.Outcome{}, err
	}
	s.publish(ctx, sess, string(out.Kind), &out)
	return out, nil
}

func (s *assistantService) Messages(ctx context.Context, ownerId, sessionId string) ([]citation.DisplayMessage, error) {
	sess, err := s.load(ctx, ownerId, sessionId)
	if err != nil {
		return nil, err
	}
	if sess.ThreadID == "" {
		return []citation.DisplayMessage{}, nil
	}

	messages, err := s.client.ListMessages(ctx, sess.ThreadID)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(ctx, messages), nil
}

func (s *assistantService) Runs(ctx context.Context, ownerId, sessionId string, limit int) ([]*dto.RunRecordResponse, error) {
	if _, err := s.load(ctx, ownerId, sessionId); err != nil {
		return nil, err
	}

	records, err := s.uowFactory.NewUnitOfWork(ctx).RunRecordRepository().FindBySession(ctx, sessionId, limit)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.RunRecordResponse, 0, len(records))
	for _, r := range records {
		res = append(res, &dto.RunRecordResponse{
			RunId:      r.RunId,
			ThreadId:   r.ThreadId,
			Phase:      r.Phase,
			Status:     r.Status,
			Polls:      r.Polls,
			RetryCount: r.RetryCount,
			Reason:     r.Reason,
			CreatedAt:  r.CreatedAt,
			FinishedAt: r.FinishedAt,
		})
	}
	return res, nil
}

func (s *assistantService) Shutdown() {
	s.drivesMu.Lock()
	pending := make([]*drive, 0, len(s.drives))
	for _, d := range s.drives {
		d.cancel()
		pending = append(pending, d)
	}
	s.drivesMu.Unlock()

	for _, d := range pending {
		<-d.done
	}
}

func (s *assistantService) load(ctx context.Context, ownerId, sessionId string) (*store.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerId {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// startDrive polls the session's run in the background until it is terminal.
func (s *assistantService) startDrive(sessionId, ownerId string) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &drive{cancel: cancel, done: make(chan struct{})}

	s.drivesMu.Lock()
	if prev, ok := s.drives[sessionId]; ok {
		prev.cancel()
	}
	s.drives[sessionId] = d
	s.drivesMu.Unlock()

	go func() {
		defer close(d.done)
		defer cancel()

		scheduler := run.NewScheduler(&sessionAdvancer{service: s, ownerId: ownerId}, s.wait, s.logger)
		out, err := scheduler.Drive(ctx, &store.Session{ID: sessionId, OwnerID: ownerId}, nil)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error(moduleName, "Background drive failed", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		} else {
			s.logger.Info(moduleName, "Background drive finished", map[string]interface{}{
				"session_id": sessionId,
				"outcome":    string(out.Kind),
			})
		}

		s.drivesMu.Lock()
		if s.drives[sessionId] == d {
			delete(s.drives, sessionId)
		}
		s.drivesMu.Unlock()
	}()
}

func (s *assistantService) stopDrive(sessionId string) {
	s.drivesMu.Lock()
	d, ok := s.drives[sessionId]
	s.drivesMu.Unlock()
	if ok {
		d.cancel()
		<-d.done
	}
}

// sessionAdvancer reloads the stored session for every step so background
// polling and caller requests see the same state.
type sessionAdvancer struct {
	service *assistantService
	ownerId string
}

func (a *sessionAdvancer) Advance(ctx context.Context, sess *store.Session) (run.Outcome, error) {
	return a.service.advance(ctx, a.ownerId, sess.ID)
}

func (s *assistantService) publish(ctx context.Context, sess *store.Session, kind string, out *run.Outcome) {
	if s.publisher == nil || sess.Run == nil {
		return
	}

	msg := dto.RunEventMessage{
		SessionId:  sess.ID,
		OwnerId:    sess.OwnerID,
		ThreadId:   sess.ThreadID,
		RunId:      sess.Run.ID,
		Kind:       kind,
		Phase:      string(sess.Run.Phase),
		Status:     sess.Run.Status,
		Polls:      sess.Run.Polls,
		RetryCount: sess.RetryCount,
		Reason:     sess.Run.Reason,
		OccurredAt: time.Now().UTC(),
	}
	if out != nil {
		msg.DelayMs = out.Delay.Milliseconds()
		msg.Outcome = toOutcomeResponse(*out)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(moduleName, "Failed to encode run event", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.logger.Warn(moduleName, "Failed to publish run event", map[string]interface{}{
			"session_id": sess.ID,
			"run_id":     sess.Run.ID,
			"error":      err.Error(),
		})
	}
}

func toSessionResponse(sess *store.Session) *dto.SessionResponse {
	res := &dto.SessionResponse{
		Id:         sess.ID,
		ThreadId:   sess.ThreadID,
		RetryCount: sess.RetryCount,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	}
	if sess.Context != nil {
		res.Context = toStagedContextResponse(sess.Context)
	}
	if sess.Run != nil {
		res.Run = toRunResponse(sess.Run)
	}
	return res
}

func toStagedContextResponse(c *store.StagedContext) *dto.StagedContextResponse {
	return &dto.StagedContextResponse{
		ContextId:      c.ContextID,
		SourceFilename: c.SourceFilename,
		RecordCount:    c.RecordCount,
		Columns:        c.Columns,
		StagedAt:       c.StagedAt,
	}
}

func toRunResponse(r *store.Run) *dto.RunResponse {
	return &dto.RunResponse{
		Id:        r.ID,
		ThreadId:  r.ThreadID,
		Status:    r.Status,
		Phase:     string(r.Phase),
		Polls:     r.Polls,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
	}
}

func toOutcomeResponse(out run.Outcome) *dto.OutcomeResponse {
	return &dto.OutcomeResponse{
		Kind:     string(out.Kind),
		RunId:    out.RunID,
		Phase:    string(out.Phase),
		Status:   out.Status,
		DelayMs:  out.Delay.Milliseconds(),
		Reason:   out.Reason,
		Messages: out.Messages,
	}
}
