package memory

import (
	"context"
	"sync"

	"insight-assistant-be/internal/repository/contract"
)

// SessionLocker serializes work per session id within this process.
// Entries are dropped once no caller holds or waits for them.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	held chan struct{}
	refs int
}

var _ contract.SessionLocker = (*SessionLocker)(nil)

func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionLock)}
}

func (l *SessionLocker) Lock(ctx context.Context, sessionId string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[sessionId]
	if !ok {
		entry = &sessionLock{held: make(chan struct{}, 1)}
		l.locks[sessionId] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.held <- struct{}{}:
	case <-ctx.Done():
		l.drop(sessionId, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.held
			l.drop(sessionId, entry)
		})
	}, nil
}

func (l *SessionLocker) drop(id string, entry *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *SessionLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
