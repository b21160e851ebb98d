package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/haruocode/otomohan-sub001/pkg/utils"

	"github.com/google/uuid"
)

// Service provides point-balance operations.
//
// Money invariants:
// - No balance update without a ledger entry
// - Ledger is append-only (immutable)
// - Balances are mutated only through signed-delta adjustment, never a blind
//   overwrite, so concurrent adjustments from unrelated calls compose.
//
// Balance strategy:
// - Balance is stored in a projection table (wallet_balances) updated
//   atomically alongside ledger inserts.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

var (
	ErrNotFound        = errors.New("wallet not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Balance returns the current point balance for userID.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	b, err := getBalance(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	return b.Points, nil
}

// Adjust applies a signed delta to userID's balance, appending the matching
// ledger entry in the same transaction, and returns the resulting balance.
// A zero delta is rejected; externalRef ties the movement to its source.
func (s *Service) Adjust(ctx context.Context, userID string, delta int64, externalRef string) (int64, error) {
	if userID == "" || delta == 0 {
		return 0, ErrInvalidArgument
	}

	now := s.clock().UTC()
	entry := LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Delta:       delta,
		ExternalRef: externalRef,
		CreatedAt:   now,
	}

	var out int64
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertLedger(ctx, tx, entry); err != nil {
			return err
		}
		b, err := applyBalanceDelta(ctx, tx, userID, delta, now)
		if err != nil {
			return err
		}
		out = b.Points
		return nil
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

// Ledger returns the movement history for userID, newest first.
func (s *Service) Ledger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 50
	}
	return listLedger(ctx, s.db, userID, limit)
}
