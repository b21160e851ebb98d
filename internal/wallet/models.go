package wallet

import "time"

// Balance is the current point balance projection for one account.
type Balance struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Points    int64     `json:"points" db:"points"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is an immutable append-only record of one point movement.
//
// Money invariant: any balance change MUST have a corresponding ledger entry.
// Call charges are negative entries with ExternalRef = call_id, one per
// completed billing tick.
type LedgerEntry struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Delta is signed: credits positive, debits negative.
	Delta int64 `json:"delta" db:"delta"`

	// ExternalRef links the movement to its source (call_id, top-up id, ...).
	ExternalRef string `json:"external_ref,omitempty" db:"external_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
