// Package accounts provides read-mostly lookups of call participants and the
// otomo availability flag the call lifecycle flips. Profile CRUD itself lives
// outside this service.
package accounts

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("account not found")

// Caller is the paying participant who initiates calls.
type Caller struct {
	ID          string    `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Otomo is the participant being called. Available is the operational flag
// flipped when a call is accepted and restored when it ends; online presence
// is tracked separately (see Presence).
type Otomo struct {
	ID          string    `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Available   bool      `json:"available" db:"available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
