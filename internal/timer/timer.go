// ABOUTME: In-memory table of running sessions keyed by user
// ABOUTME: Start and Stop are atomic per user; entries are removed on stop or cancel

package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-timekeeper/internal/clock"
)

var (
	// ErrAlreadyRunning is returned when a user starts a second session.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrNoSession is returned when a user has no running session.
	ErrNoSession = errors.New("no running session")
)

// Session is a running activity.
type Session struct {
	ID        string
	User      string
	Task      string
	StartedAt time.Time
}

// Elapsed returns the session length at now, never negative.
func (s Session) Elapsed(now time.Time) time.Duration {
	if now.Before(s.StartedAt) {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// Minutes returns the elapsed whole minutes at now.
func (s Session) Minutes(now time.Time) int {
	return int(s.Elapsed(now) / time.Minute)
}

// Table holds at most one running session per user.
type Table struct {
	mu       sync.Mutex
	sessions map[string]Session
	clock    clock.Clock
}

// NewTable creates an empty table.
func NewTable(clk clock.Clock) *Table {
	if clk == nil {
		clk = clock.Real()
	}
	return &Table{
		sessions: make(map[string]Session),
		clock:    clk,
	}
}

// Start begins a session for user on task.
func (t *Table) Start(user, task string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[user]; ok {
		return s, ErrAlreadyRunning
	}
	s := Session{
		ID:        uuid.New().String(),
		User:      user,
		Task:      task,
		StartedAt: t.clock.Now(),
	}
	t.sessions[user] = s
	return s, nil
}

// Stop ends user's session and returns it with the stop time.
func (t *Table) Stop(user string) (Session, time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[user]
	if !ok {
		return Session{}, time.Time{}, ErrNoSession
	}
	delete(t.sessions, user)
	return s, t.clock.Now(), nil
}

// Restore puts a stopped session back, unless user has started another since.
func (t *Table) Restore(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[s.User]; !ok {
		t.sessions[s.User] = s
	}
}

// Active returns user's running session.
func (t *Table) Active(user string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[user]
	return s, ok
}

// Cancel drops user's session without recording it.
func (t *Table) Cancel(user string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[user]; !ok {
		return ErrNoSession
	}
	delete(t.sessions, user)
	return nil
}

// Len returns the number of running sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
