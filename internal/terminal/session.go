// Package terminal manages live interactive shell sessions against
// sandboxes. The registry is in-memory and process-scoped; sessions do not
// survive a restart.
package terminal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/majorcontext/bastion/internal/log"
)

const (
	defaultIdleTimeout = 30 * time.Minute
	sweepInterval      = time.Minute
)

// Transport is an open interactive channel to a sandbox shell.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// ResizableTransport is implemented by transports that can propagate
// terminal dimension changes. Resize on any other transport is a no-op.
type ResizableTransport interface {
	Transport
	Resize(cols, rows int) error
}

// Dialer opens a transport to a sandbox's shell.
type Dialer func(ctx context.Context, sandboxID string) (Transport, error)

// Session is one live terminal bound to a sandbox. All access goes through
// its entry mutex so eviction never races an in-flight call.
type Session struct {
	ID        string
	SandboxID string

	mu         sync.Mutex
	transport  Transport
	lastActive time.Time
	closed     bool
}

// Info is a read-only view of a session for listings.
type Info struct {
	ID         string
	SandboxID  string
	LastActive time.Time
}

// Manager is the process-wide session registry.
type Manager struct {
	dial        Dialer
	idleTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout overrides the idle eviction timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// NewManager creates a registry and starts the idle-eviction sweep.
func NewManager(dial Dialer, opts ...Option) *Manager {
	m := &Manager{
		dial:        dial,
		idleTimeout: defaultIdleTimeout,
		sessions:    make(map[string]*Session),
		stopSweep:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep()
	return m
}

// AuthorizeSessionID checks that sessionID belongs to userID. Session ids
// are namespaced by their owner's id; the manager itself performs no
// authorization, so every caller-facing surface must run this check first.
func AuthorizeSessionID(userID, sessionID string) error {
	if userID == "" || !strings.HasPrefix(sessionID, userID+"-") {
		return fmt.Errorf("session %q does not belong to user %q", sessionID, userID)
	}
	return nil
}

// Open dials the sandbox shell and registers a new session. The returned id
// is namespaced by userID.
func (m *Manager) Open(ctx context.Context, userID, sandboxID string) (string, error) {
	transport, err := m.dial(ctx, sandboxID)
	if err != nil {
		return "", fmt.Errorf("opening terminal to %s: %w", sandboxID, err)
	}

	s := &Session{
		ID:         userID + "-" + uuid.NewString(),
		SandboxID:  sandboxID,
		transport:  transport,
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Debug("terminal session opened", "session", s.ID, "sandbox", sandboxID)
	return s.ID, nil
}

// Get looks up a session and refreshes its activity timestamp. Returns nil
// when the session does not exist or is already closed.
func (m *Manager) Get(sessionID string) *Session {
	m.mu.RLock()
	s := m.sessions[sessionID]
	m.mu.RUnlock()
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.lastActive = time.Now()
	return s
}

// Resize forwards new dimensions to the session's transport when it
// supports resizing, and is a no-op otherwise.
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	m.mu.RLock()
	s := m.sessions[sessionID]
	m.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("no session %s", sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("no session %s", sessionID)
	}
	s.lastActive = time.Now()

	if rt, ok := s.transport.(ResizableTransport); ok {
		return rt.Resize(cols, rows)
	}
	return nil
}

// Close releases the session's transport and removes it from the registry.
// Closing an unknown or already-closed session is a no-op.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.close()
}

// List returns a snapshot of live sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.mu.Lock()
		if !s.closed {
			infos = append(infos, Info{ID: s.ID, SandboxID: s.SandboxID, LastActive: s.lastActive})
		}
		s.mu.Unlock()
	}
	return infos
}

// Shutdown stops the sweep and closes every live session.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopSweep) })

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.evictIdle(time.Now())
		}
	}
}

// evictIdle closes sessions whose last activity is older than the idle
// timeout.
func (m *Manager) evictIdle(now time.Time) {
	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	for _, s := range candidates {
		s.mu.Lock()
		idle := !s.closed && now.Sub(s.lastActive) > m.idleTimeout
		s.mu.Unlock()
		if !idle {
			continue
		}

		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
		s.close()
		log.Debug("idle terminal session evicted", "session", s.ID)
	}
}

// Transport returns the session's transport for streaming I/O.
func (s *Session) Transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	t := s.transport
	s.mu.Unlock()

	if err := t.Close(); err != nil {
		log.Debug("closing terminal transport", "session", s.ID, "error", err)
		return err
	}
	return nil
}
