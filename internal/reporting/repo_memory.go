package reporting

import (
	"context"
	"sync"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/wallet"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.

type MemoryRepo struct {
	mu sync.Mutex

	Calls   []call.Session
	Ledgers []wallet.LedgerEntry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, from, to time.Time, otomoID string) ([]call.Session, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]call.Session, 0)
	for _, c := range r.Calls {
		if !c.StartedAt.IsZero() {
			if c.StartedAt.Before(from) || !c.StartedAt.Before(to) {
				continue
			}
		}
		if otomoID != "" && c.OtomoID != otomoID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, userID string, from, to time.Time) ([]wallet.LedgerEntry, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wallet.LedgerEntry, 0)
	for _, l := range r.Ledgers {
		if l.UserID != userID {
			continue
		}
		if !l.CreatedAt.IsZero() {
			if l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, l)
	}
	return out, nil
}
