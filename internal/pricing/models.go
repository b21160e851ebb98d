package pricing

import "time"

// Rate is one effective-dated per-minute price row for an otomo.
// Price changes never mutate rows; a new row with a later EffectiveFrom
// supersedes the old one, so historical calls stay auditable.
type Rate struct {
	ID      string `json:"id" db:"id"`
	OtomoID string `json:"otomo_id" db:"otomo_id"`

	// PointsPerMinute is the charge applied by each billing tick.
	PointsPerMinute int64 `json:"points_per_minute" db:"points_per_minute"`

	Status RateStatus `json:"status" db:"status"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type RateStatus string

const (
	RateStatusActive   RateStatus = "active"
	RateStatusDisabled RateStatus = "disabled"
)
