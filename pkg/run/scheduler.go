package run

import (
	"context"
	"time"

	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/pkg/store"
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production WaitFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scheduler repeatedly advances a run, waiting the prescribed delay between
// polls, until the run is terminal.
type Scheduler struct {
	advancer Advancer
	wait     WaitFunc
	logger   logger.ILogger
}

func NewScheduler(advancer Advancer, wait WaitFunc, logger logger.ILogger) *Scheduler {
	if wait == nil {
		wait = Sleep
	}
	return &Scheduler{advancer: advancer, wait: wait, logger: logger}
}

// Drive reports every outcome to observe (which may be nil). Cancelling ctx
// stops polling; the remote run is abandoned, not deleted.
func (s *Scheduler) Drive(ctx context.Context, sess *store.Session, observe func(Outcome)) (Outcome, error) {
	for {
		out, err := s.advancer.Advance(ctx, sess)
		if err != nil {
			return out, err
		}
		if observe != nil {
			observe(out)
		}
		if out.Terminal() {
			return out, nil
		}
		if err := s.wait(ctx, out.Delay); err != nil {
			s.logger.Info(moduleName, "Stopped driving run", map[string]interface{}{
				"session_id": sess.ID,
				"run_id":     out.RunID,
				"reason":     err.Error(),
			})
			return out, err
		}
	}
}
