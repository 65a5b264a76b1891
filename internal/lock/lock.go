// Package lock provides per-session mutual exclusion for compound
// read-modify-write-commit sequences.
//
// Locks are OS advisory locks (flock) on a .lock file inside the session
// directory, so they exclude other processes as well as other goroutines,
// and a crashed holder's lock is released by the kernel when its process
// exits — no stale-lock reclamation logic is needed. Acquisition polls with
// exponential backoff up to the configured timeout and then fails fast.
package lock

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"github.com/gofrs/flock"
)

const (
	lockFileName   = ".lock"
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 200 * time.Millisecond
)

// Manager hands out session-scoped exclusive locks. Multiple engine
// instances sharing the same data root coordinate correctly through the
// underlying lock files.
type Manager struct {
	sessionsDir string
	timeout     time.Duration
}

// NewManager creates a Manager for session directories under sessionsDir.
// timeout bounds each acquisition attempt.
func NewManager(sessionsDir string, timeout time.Duration) *Manager {
	return &Manager{sessionsDir: sessionsDir, timeout: timeout}
}

// Token represents a held lock. It must be released exactly once.
type Token struct {
	sessionID string
	fl        *flock.Flock
}

// SessionID reports which session the token locks.
func (t *Token) SessionID() string { return t.sessionID }

// Acquire takes the exclusive lock for a session, waiting up to the
// manager's timeout. On timeout it returns LockTimeoutError; the caller
// must retry rather than proceed unlocked. A canceled context is not a
// timeout: the context's error is returned so callers don't retry a
// request they abandoned.
func (m *Manager) Acquire(ctx context.Context, sessionID string) (*Token, error) {
	dir := filepath.Join(m.sessionsDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, memerr.Storage("acquire lock", err)
	}

	fl := flock.New(filepath.Join(dir, lockFileName))
	deadline := time.Now().Add(m.timeout)
	backoff := initialBackoff
	for {
		locked, err := fl.TryLock()
		if err != nil {
			return nil, memerr.Storage("acquire lock", err)
		}
		if locked {
			return &Token{sessionID: sessionID, fl: fl}, nil
		}
		if time.Now().After(deadline) {
			return nil, memerr.LockTimeout(sessionID)
		}
		select {
		case <-ctx.Done():
			return nil, memerr.Storage("acquire lock", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Release drops the lock. Safe to call with a nil token.
func (m *Manager) Release(t *Token) {
	if t == nil || t.fl == nil {
		return
	}
	_ = t.fl.Unlock()
	t.fl = nil
}
