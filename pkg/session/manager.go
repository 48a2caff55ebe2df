package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aixgo-dev/pixelctx/internal/llm/provider"
)

// Session is a registered conversation with its model handle.
type Session struct {
	ID        string
	Provider  provider.Provider
	CreatedAt time.Time
}

// ProviderFactory creates the model handle for a new session.
type ProviderFactory func(ctx context.Context, sessionID string) (provider.Provider, error)

// Manager owns the session registry and the stats backend.
// Manager is safe for concurrent use.
type Manager interface {
	// GetOrCreate returns the session for id, creating it on first use.
	// Empty or path-like ids fail with ErrInvalidSessionID.
	GetOrCreate(ctx context.Context, sessionID string) (*Session, error)

	// Get returns a registered session or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes the session and its stats log. Afterwards the id
	// behaves as if it was never seen.
	Delete(ctx context.Context, sessionID string) error

	// List returns ids that are registered or have stored stats, sorted.
	List(ctx context.Context) ([]string, error)

	// Append records one call in the session's stats log.
	Append(ctx context.Context, sessionID string, stats CallStats) error

	// Stats returns the session's stats log; unknown ids yield an empty log.
	Stats(ctx context.Context, sessionID string) ([]CallStats, error)

	// Reset replaces the session's stats log.
	Reset(ctx context.Context, sessionID string, calls []CallStats) error

	// Close releases the backend.
	Close() error
}

// managerImpl is the concrete implementation of Manager.
type managerImpl struct {
	backend  StatsBackend
	factory  ProviderFactory
	sessions map[string]*Session
	mu       sync.Mutex
	creating singleflight.Group
}

// NewManager creates a manager. factory is called once per new session.
func NewManager(backend StatsBackend, factory ProviderFactory) Manager {
	return &managerImpl{
		backend:  backend,
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

func (m *managerImpl) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, fmt.Errorf("%w: %q", err, sessionID)
	}
	if sess, ok := m.lookup(sessionID); ok {
		return sess, nil
	}

	// Provider construction may dial remote clients, so it runs outside the
	// registry lock. singleflight keeps it to one factory call per id.
	v, err, _ := m.creating.Do(sessionID, func() (any, error) {
		if sess, ok := m.lookup(sessionID); ok {
			return sess, nil
		}
		p, err := m.factory(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("create provider: %w", err)
		}
		sess := &Session{
			ID:        sessionID,
			Provider:  p,
			CreatedAt: time.Now().UTC(),
		}
		m.mu.Lock()
		m.sessions[sessionID] = sess
		m.mu.Unlock()
		log.Printf("[Session] created %s (provider: %s)", sessionID, p.Name())
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *managerImpl) lookup(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

func (m *managerImpl) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (m *managerImpl) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.backend.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete stats: %w", err)
	}
	return nil
}

func (m *managerImpl) List(ctx context.Context) ([]string, error) {
	stored, err := m.backend.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(stored))
	for _, id := range stored {
		seen[id] = true
	}

	m.mu.Lock()
	for id := range m.sessions {
		seen[id] = true
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *managerImpl) Append(ctx context.Context, sessionID string, stats CallStats) error {
	if err := validateSessionID(sessionID); err != nil {
		return fmt.Errorf("%w: %q", err, sessionID)
	}
	return m.backend.Append(ctx, sessionID, stats)
}

func (m *managerImpl) Stats(ctx context.Context, sessionID string) ([]CallStats, error) {
	if validateSessionID(sessionID) != nil {
		return []CallStats{}, nil
	}
	return m.backend.Load(ctx, sessionID)
}

func (m *managerImpl) Reset(ctx context.Context, sessionID string, calls []CallStats) error {
	if err := validateSessionID(sessionID); err != nil {
		return fmt.Errorf("%w: %q", err, sessionID)
	}
	return m.backend.Replace(ctx, sessionID, calls)
}

func (m *managerImpl) Close() error {
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	return m.backend.Close()
}
