package call

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process deployments.
// All methods are safe for concurrent use; the mutex is what gives End its
// compare-and-set semantics here.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(ctx context.Context, s Session) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.CallID]; ok {
		return ErrDuplicateCallID
	}
	cp := s
	m.sessions[s.CallID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, callID string) (Session, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return Session{}, ErrCallNotFound
	}
	return *s, nil
}

func (m *MemoryStore) Transition(ctx context.Context, callID string, from []Status, next Status, at time.Time) (Session, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return Session{}, ErrCallNotFound
	}
	if !statusIn(s.Status, from) {
		return Session{}, ErrInvalidState
	}
	s.Status = next
	s.UpdatedAt = at
	return *s, nil
}

func (m *MemoryStore) Connect(ctx context.Context, callID string, connectedAt time.Time) (Session, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return Session{}, ErrCallNotFound
	}
	if s.Status != StatusAccepted {
		return Session{}, ErrInvalidState
	}
	t := connectedAt
	s.Status = StatusActive
	s.ConnectedAt = &t
	s.UpdatedAt = connectedAt
	return *s, nil
}

func (m *MemoryStore) ApplyTick(ctx context.Context, callID string, chargedPoints int64, durationSeconds int) (Session, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return Session{}, ErrCallNotFound
	}
	s.BilledUnits++
	s.BilledPoints += chargedPoints
	if durationSeconds > s.DurationSeconds {
		s.DurationSeconds = durationSeconds
	}
	return *s, nil
}

func (m *MemoryStore) End(ctx context.Context, callID string, reason EndReason, endedAt time.Time, durationSeconds int) (Session, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return Session{}, false, ErrCallNotFound
	}
	if s.Status.Terminal() {
		return *s, true, nil
	}
	t := endedAt
	s.Status = terminalStatusFor(reason)
	s.EndReason = reason
	s.EndedAt = &t
	s.DurationSeconds = durationSeconds
	s.UpdatedAt = endedAt
	return *s, false, nil
}

func (m *MemoryStore) HasActiveFor(ctx context.Context, accountID string) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Status.Terminal() {
			continue
		}
		if s.CallerID == accountID || s.OtomoID == accountID {
			return true, nil
		}
	}
	return false, nil
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
