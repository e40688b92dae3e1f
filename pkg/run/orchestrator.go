package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/pkg/assistant"
	"insight-assistant-be/pkg/citation"
	"insight-assistant-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrRunAlreadyActive = errors.New("a run is already active for this thread")
	ErrNoActiveRun      = errors.New("no run to advance")
	ErrEmptyTurn        = errors.New("turn text is empty")
)

// ReasonOverloaded is reported once the retry budget is spent.
const ReasonOverloaded = "FAILED: The assistant service is currently processing too many requests. Please try again later"

const (
	moduleName = "RunOrchestrator"

	DefaultRetryBudget = 3
	DefaultPollUnit    = time.Second

	// delays in poll units
	runningDelay = 1
	backoffDelay = 3
)

type Config struct {
	AssistantID string
	RetryBudget int
	PollUnit    time.Duration
}

// Renderer turns thread messages into display form once a run completes.
type Renderer interface {
	Render(ctx context.Context, messages []assistant.Message) []citation.DisplayMessage
}

// Advancer performs one poll step for a session.
type Advancer interface {
	Advance(ctx context.Context, sess *store.Session) (Outcome, error)
}

// Orchestrator drives the lifecycle of remote runs. It never blocks beyond
// a single remote call; waiting between polls is left to the caller.
type Orchestrator struct {
	client   assistant.Client
	renderer Renderer
	logger   logger.ILogger
	tracer   trace.Tracer
	cfg      Config
	now      func() time.Time
}

var _ Advancer = (*Orchestrator)(nil)

func NewOrchestrator(client assistant.Client, renderer Renderer, logger logger.ILogger, cfg Config) *Orchestrator {
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = DefaultRetryBudget
	}
	if cfg.PollUnit <= 0 {
		cfg.PollUnit = DefaultPollUnit
	}
	return &Orchestrator{
		client:   client,
		renderer: renderer,
		logger:   logger,
		tracer:   otel.Tracer("insight-assistant-be/pkg/run"),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (o *Orchestrator) Config() Config {
	return o.cfg
}

// SubmitTurn appends the user's text to the session thread and starts a run
// on it. The thread is created on first use.
func (o *Orchestrator) SubmitTurn(ctx context.Context, sess *store.Session, text string) (*store.Run, error) {
	if sess.HasActiveRun() {
		return nil, ErrRunAlreadyActive
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTurn
	}

	ctx, span := o.tracer.Start(ctx, "run.SubmitTurn", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
	))
	defer span.End()

	if sess.ThreadID == "" {
		threadID, err := o.client.CreateThread(ctx, map[string]string{"session_id": sess.ID})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("create thread: %w", err)
		}
		sess.ThreadID = threadID
		o.logger.Info(moduleName, "Thread created", map[string]interface{}{
			"session_id": sess.ID,
			"thread_id":  threadID,
		})
	}
	span.SetAttributes(attribute.String("thread.id", sess.ThreadID))

	if _, err := o.client.CreateMessage(ctx, sess.ThreadID, assistant.RoleUser, text, sess.ContextIDs()); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("append message: %w", err)
	}

	info, err := o.client.CreateRun(ctx, sess.ThreadID, o.cfg.AssistantID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create run: %w", err)
	}

	now := o.now().UTC()
	created := info.CreatedAt
	if created.IsZero() {
		created = now
	}
	sess.Run = &store.Run{
		ID:        info.ID,
		ThreadID:  sess.ThreadID,
		Status:    info.Status,
		Phase:     store.PhaseQueued,
		CreatedAt: created,
	}
	sess.RetryCount = 0
	sess.UpdatedAt = now

	span.SetAttributes(attribute.String("run.id", info.ID))
	o.logger.Info(moduleName, "Run submitted", map[string]interface{}{
		"session_id": sess.ID,
		"thread_id":  sess.ThreadID,
		"run_id":     info.ID,
		"context_id": sess.ContextIDs(),
	})
	return sess.Run, nil
}

// Advance polls the current run once and moves the session's state machine.
func (o *Orchestrator) Advance(ctx context.Context, sess *store.Session) (Outcome, error) {
	if sess.Run == nil {
		return Outcome{}, ErrNoActiveRun
	}
	r := sess.Run

	switch r.Phase {
	case store.PhaseCompleted:
		return Completed(r, nil), nil
	case store.PhaseFailedTerminal:
		return Failed(r, r.Reason), nil
	}

	ctx, span := o.tracer.Start(ctx, "run.Advance", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("run.id", r.ID),
		attribute.String("run.phase", string(r.Phase)),
		attribute.Int("run.retry_count", sess.RetryCount),
	))
	defer span.End()

	info, err := o.client.GetRun(ctx, sess.ThreadID, r.ID)
	if err != nil && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	now := o.now().UTC()
	r.Polls++
	r.LastPolledAt = now
	sess.UpdatedAt = now

	var out Outcome
	if err != nil {
		out = o.remoteFailure(sess, err)
	} else {
		r.Status = info.Status
		out, err = o.step(ctx, sess, info)
		if err != nil {
			return Outcome{}, err
		}
	}

	span.SetAttributes(
		attribute.String("run.status", r.Status),
		attribute.String("outcome", string(out.Kind)),
	)
	if out.Kind == OutcomeFailed {
		span.SetStatus(codes.Error, out.Reason)
	}
	o.logger.Debug(moduleName, "Run advanced", map[string]interface{}{
		"session_id":  sess.ID,
		"run_id":      r.ID,
		"status":      r.Status,
		"phase":       string(r.Phase),
		"retry_count": sess.RetryCount,
		"outcome":     string(out.Kind),
		"delay":       out.Delay.String(),
	})
	return out, nil
}

func (o *Orchestrator) step(ctx context.Context, sess *store.Session, info *assistant.RunInfo) (Outcome, error) {
	r := sess.Run
	switch info.Status {
	case assistant.RunStatusQueued, assistant.RunStatusInProgress, assistant.RunStatusRunning:
		if r.Phase == store.PhaseQueued {
			r.Phase = store.PhaseRunning
			return Pending(r, o.delay(runningDelay)), nil
		}
		return o.charge(sess, runningDelay, ReasonOverloaded), nil

	case assistant.RunStatusFailed:
		r.Phase = store.PhaseFailedRetrying
		out := o.charge(sess, backoffDelay, ReasonOverloaded)
		if out.Kind == OutcomePending {
			r.Phase = store.PhaseQueued
		}
		if info.LastError != "" {
			o.logger.Warn(moduleName, "Run reported failure", map[string]interface{}{
				"run_id":      r.ID,
				"last_error":  info.LastError,
				"retry_count": sess.RetryCount,
			})
		}
		return out, nil

	case assistant.RunStatusCompleted:
		messages, err := o.client.ListMessages(ctx, sess.ThreadID)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			return o.remoteFailure(sess, err), nil
		}
		r.Phase = store.PhaseCompleted
		r.Reason = ""
		o.logger.Info(moduleName, "Run completed", map[string]interface{}{
			"session_id": sess.ID,
			"run_id":     r.ID,
			"polls":      r.Polls,
			"messages":   len(messages),
		})
		return Completed(r, o.renderer.Render(ctx, messages)), nil

	default:
		return o.charge(sess, backoffDelay, ReasonOverloaded), nil
	}
}

// remoteFailure charges transient errors to the retry budget and fails the
// turn right away on anything else.
func (o *Orchestrator) remoteFailure(sess *store.Session, err error) Outcome {
	if assistant.IsTransient(err) {
		o.logger.Warn(moduleName, "Transient error while polling", map[string]interface{}{
			"run_id":      sess.Run.ID,
			"retry_count": sess.RetryCount + 1,
			"error":       err.Error(),
		})
		return o.charge(sess, backoffDelay, ReasonOverloaded)
	}

	o.logger.Error(moduleName, "Run failed permanently", map[string]interface{}{
		"run_id": sess.Run.ID,
		"error":  err.Error(),
	})
	return o.terminate(sess, "FAILED: "+err.Error())
}

// charge spends one retry. Once the budget is reached the run is terminal and
// the counter stays at the budget until the next turn.
func (o *Orchestrator) charge(sess *store.Session, units int, reason string) Outcome {
	sess.RetryCount++
	if sess.RetryCount >= o.cfg.RetryBudget {
		sess.RetryCount = o.cfg.RetryBudget
		return o.terminate(sess, reason)
	}
	return Pending(sess.Run, o.delay(units))
}

func (o *Orchestrator) terminate(sess *store.Session, reason string) Outcome {
	sess.Run.Phase = store.PhaseFailedTerminal
	sess.Run.Reason = reason
	o.logger.Warn(moduleName, "Run terminated", map[string]interface{}{
		"session_id":  sess.ID,
		"run_id":      sess.Run.ID,
		"status":      sess.Run.Status,
		"retry_count": sess.RetryCount,
		"reason":      reason,
	})
	return Failed(sess.Run, reason)
}

func (o *Orchestrator) delay(units int) time.Duration {
	return time.Duration(units) * o.cfg.PollUnit
}
