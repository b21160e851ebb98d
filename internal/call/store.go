package call

import (
	"context"
	"time"
)

// Store abstracts call session persistence.
//
// Concurrency contract: End is the compare-and-set primitive the whole
// termination path leans on. It must transition to a terminal status only if
// the session is not already terminal, and report which case occurred, so
// concurrent termination triggers resolve to exactly one winner.
type Store interface {
	// Create inserts a new session in StatusRequesting.
	// Returns ErrDuplicateCallID if the call id is already taken.
	Create(ctx context.Context, s Session) error

	// Get returns the session or ErrCallNotFound.
	Get(ctx context.Context, callID string) (Session, error)

	// Transition moves the session from one of the expected statuses to next.
	// Returns ErrInvalidState when the current status is not in from, and
	// ErrCallNotFound when the session does not exist.
	Transition(ctx context.Context, callID string, from []Status, next Status, at time.Time) (Session, error)

	// Connect marks an accepted session active and records the connect time.
	Connect(ctx context.Context, callID string, connectedAt time.Time) (Session, error)

	// ApplyTick adds one completed billing tick: BilledUnits+1,
	// BilledPoints+chargedPoints, DurationSeconds raised monotonically.
	// Applies to terminal sessions too: a tick whose debit committed before a
	// concurrent end must still land in the billed totals.
	ApplyTick(ctx context.Context, callID string, chargedPoints int64, durationSeconds int) (Session, error)

	// End atomically transitions to the terminal status for reason, persisting
	// endedAt/duration. If the session is already terminal it returns the
	// stored session with alreadyEnded=true and performs no mutation.
	End(ctx context.Context, callID string, reason EndReason, endedAt time.Time, durationSeconds int) (s Session, alreadyEnded bool, err error)

	// HasActiveFor reports whether accountID participates in any non-terminal
	// session (as caller or otomo).
	HasActiveFor(ctx context.Context, accountID string) (bool, error)
}
