package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/duel-referee/internal/commitment"
	"github.com/park285/duel-referee/internal/engine"
)

// Store is the narrow transactional interface the referee runs the state
// machine against. Apply is the serializing executor: it loads the session,
// runs exactly one transition, and persists the result atomically, so the
// engine's guards need no further locking.
type Store interface {
	NextID(ctx context.Context) (uint64, error)
	Create(ctx context.Context, s *engine.Session) error
	Get(ctx context.Context, id uint64) (*engine.Session, error)
	Apply(ctx context.Context, id uint64, fn func(*engine.Session) error) (*engine.Session, error)
	ListActive(ctx context.Context) ([]uint64, error)
}

// memstore is the in-memory Store used in engine-level tests and as the
// reference semantics for the Redis implementation.
type memstore struct {
	mu       sync.Mutex
	nextID   uint64
	sessions map[uint64]*engine.Session
	active   map[uint64]bool
}

func NewMemoryStore() Store {
	return &memstore{
		sessions: make(map[uint64]*engine.Session),
		active:   make(map[uint64]bool),
	}
}

func (m *memstore) NextID(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *memstore) Create(ctx context.Context, s *engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneSession(s)
	m.sessions[s.ID] = cp
	if !cp.State.Terminal() {
		m.active[s.ID] = true
	}
	return nil
}

func (m *memstore) Get(ctx context.Context, id uint64) (*engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, engine.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *memstore) Apply(ctx context.Context, id uint64, fn func(*engine.Session) error) (*engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, engine.ErrSessionNotFound
	}
	cp := cloneSession(s)
	if err := fn(cp); err != nil {
		return nil, err
	}
	m.sessions[id] = cp
	if cp.State.Terminal() {
		delete(m.active, id)
	}
	return cloneSession(cp), nil
}

func (m *memstore) ListActive(ctx context.Context) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint64, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func cloneSession(s *engine.Session) *engine.Session {
	cp := *s
	if s.Commitments != nil {
		cp.Commitments = make(map[string]commitment.Digest, len(s.Commitments))
		for k, v := range s.Commitments {
			cp.Commitments[k] = v
		}
	}
	if s.Reveals != nil {
		cp.Reveals = make(map[string]engine.Reveal, len(s.Reveals))
		for k, v := range s.Reveals {
			cp.Reveals[k] = v
		}
	}
	if s.GameData != nil {
		cp.GameData = append([]byte(nil), s.GameData...)
	}
	if s.Payouts != nil {
		cp.Payouts = append([]engine.Payout(nil), s.Payouts...)
	}
	return &cp
}
