package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory wallet for tests and early development. It keeps the
// same invariants as Service: every adjustment appends a ledger entry.
type Memory struct {
	mu      sync.Mutex
	points  map[string]int64
	ledgers map[string][]LedgerEntry
}

func NewMemory() *Memory {
	return &Memory{
		points:  make(map[string]int64),
		ledgers: make(map[string][]LedgerEntry),
	}
}

// SetBalance seeds a starting balance without a ledger entry. Test helper.
func (m *Memory) SetBalance(userID string, points int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[userID] = points
}

func (m *Memory) Balance(ctx context.Context, userID string) (int64, error) {
	_ = ctx
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points[userID], nil
}

func (m *Memory) Adjust(ctx context.Context, userID string, delta int64, externalRef string) (int64, error) {
	_ = ctx
	if userID == "" || delta == 0 {
		return 0, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[userID] += delta
	m.ledgers[userID] = append(m.ledgers[userID], LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Delta:       delta,
		ExternalRef: externalRef,
		CreatedAt:   time.Now().UTC(),
	})
	return m.points[userID], nil
}

func (m *Memory) Ledger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.ledgers[userID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}
