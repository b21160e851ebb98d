package call

import "time"

// Session represents one call attempt/connection between a caller and an otomo.
//
// Lifecycle invariant: Status only moves forward along the transition table
// (requesting -> accepted -> active -> ended; requesting -> rejected;
// any non-terminal -> failed). Once terminal, the row is never mutated again.
//
// Money invariant reminder: BilledUnits/BilledPoints are monotonically
// non-decreasing and every increment has a corresponding wallet ledger entry
// (external_ref = call_id) and billing unit row.
type Session struct {
	CallID   string `json:"call_id" db:"call_id"`
	CallerID string `json:"caller_id" db:"caller_id"`
	OtomoID  string `json:"otomo_id" db:"otomo_id"`

	Status Status `json:"status" db:"status"`

	// RatePerMinutePoints is the price resolved when the request is created
	// and frozen for the lifetime of the call.
	RatePerMinutePoints int64 `json:"rate_per_minute_points" db:"rate_per_minute_points"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// BilledUnits counts completed billing ticks; BilledPoints is the
	// cumulative charge across them.
	BilledUnits  int   `json:"billed_units" db:"billed_units"`
	BilledPoints int64 `json:"billed_points" db:"billed_points"`

	EndReason EndReason `json:"end_reason,omitempty" db:"end_reason"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusRequesting Status = "requesting"
	StatusAccepted   Status = "accepted"
	StatusActive     Status = "active"
	StatusEnded      Status = "ended"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further mutation of the session is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// EndReason is the closed vocabulary attached to terminal calls.
// Keep these stable; they are part of the client event contract.
type EndReason string

const (
	ReasonUserEnd     EndReason = "user_end"
	ReasonOtomoEnd    EndReason = "otomo_end"
	ReasonNoPoint     EndReason = "no_point"
	ReasonNetworkLost EndReason = "network_lost"
	ReasonTimeout     EndReason = "timeout"
	ReasonSystemError EndReason = "system_error"
)

func ValidEndReason(r EndReason) bool {
	switch r {
	case ReasonUserEnd, ReasonOtomoEnd, ReasonNoPoint, ReasonNetworkLost, ReasonTimeout, ReasonSystemError:
		return true
	default:
		return false
	}
}

// terminalStatusFor maps an end reason to the terminal status the finalizer
// persists. Unrecoverable processing errors are kept distinguishable.
func terminalStatusFor(r EndReason) Status {
	if r == ReasonSystemError {
		return StatusFailed
	}
	return StatusEnded
}

// Participant reports whether accountID is one of the two call parties.
func (s Session) Participant(accountID string) bool {
	return accountID != "" && (accountID == s.CallerID || accountID == s.OtomoID)
}
