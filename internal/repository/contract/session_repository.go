package contract

import (
	"context"

	"insight-assistant-be/pkg/store"
)

// SessionRepository keeps the per-client session state between calls.
// Get returns store.ErrSessionNotFound for unknown ids.
type SessionRepository interface {
	Save(ctx context.Context, session *store.Session) error
	Get(ctx context.Context, sessionId string) (*store.Session, error)
	Delete(ctx context.Context, sessionId string) error
}

// SessionLocker serializes mutations of one session. Lock blocks until the
// session is free or ctx is done; unlock must be called once.
type SessionLocker interface {
	Lock(ctx context.Context, sessionId string) (unlock func(), err error)
}
