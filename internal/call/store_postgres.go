package call

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// PostgresStore persists call sessions in a `calls` table.
//
// NOTE: assumes the following schema:
// - calls (call_id PK, caller_id, otomo_id, status, rate_per_minute_points,
//   started_at, connected_at NULL, ended_at NULL, duration_seconds,
//   billed_units, billed_points, end_reason NULL, updated_at)
//
// The terminal compare-and-set is an optimistic UPDATE with an affected-row
// check, so concurrent finalize calls race safely without advisory locks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `
call_id, caller_id, otomo_id, status, rate_per_minute_points,
started_at, connected_at, ended_at, duration_seconds,
billed_units, billed_points, end_reason, updated_at
`

func (p *PostgresStore) Create(ctx context.Context, s Session) error {
	const q = `
INSERT INTO calls (
  call_id, caller_id, otomo_id, status, rate_per_minute_points,
  started_at, duration_seconds, billed_units, billed_points, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := p.db.ExecContext(ctx, q,
		s.CallID,
		s.CallerID,
		s.OtomoID,
		s.Status,
		s.RatePerMinutePoints,
		s.StartedAt,
		s.DurationSeconds,
		s.BilledUnits,
		s.BilledPoints,
		s.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateCallID
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, callID string) (Session, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`
	return p.scanOne(p.db.QueryRowContext(ctx, q, callID))
}

func (p *PostgresStore) Transition(ctx context.Context, callID string, from []Status, next Status, at time.Time) (Session, error) {
	const q = `
UPDATE calls
SET status = $2, updated_at = $3
WHERE call_id = $1 AND status = ANY(string_to_array($4, ','))
RETURNING ` + callColumns
	row := p.db.QueryRowContext(ctx, q, callID, next, at, statusList(from))
	s, err := p.scanOne(row)
	if errors.Is(err, ErrCallNotFound) {
		return p.classifyMiss(ctx, callID)
	}
	return s, err
}

func (p *PostgresStore) Connect(ctx context.Context, callID string, connectedAt time.Time) (Session, error) {
	const q = `
UPDATE calls
SET status = $2, connected_at = $3, updated_at = $3
WHERE call_id = $1 AND status = $4
RETURNING ` + callColumns
	row := p.db.QueryRowContext(ctx, q, callID, StatusActive, connectedAt, StatusAccepted)
	s, err := p.scanOne(row)
	if errors.Is(err, ErrCallNotFound) {
		return p.classifyMiss(ctx, callID)
	}
	return s, err
}

func (p *PostgresStore) ApplyTick(ctx context.Context, callID string, chargedPoints int64, durationSeconds int) (Session, error) {
	const q = `
UPDATE calls
SET billed_units = billed_units + 1,
    billed_points = billed_points + $2,
    duration_seconds = GREATEST(duration_seconds, $3)
WHERE call_id = $1
RETURNING ` + callColumns
	row := p.db.QueryRowContext(ctx, q, callID, chargedPoints, durationSeconds)
	return p.scanOne(row)
}

func (p *PostgresStore) End(ctx context.Context, callID string, reason EndReason, endedAt time.Time, durationSeconds int) (Session, bool, error) {
	const q = `
UPDATE calls
SET status = $2, end_reason = $3, ended_at = $4, duration_seconds = $5, updated_at = $4
WHERE call_id = $1 AND status NOT IN ('ended','rejected','failed')
RETURNING ` + callColumns
	row := p.db.QueryRowContext(ctx, q, callID, terminalStatusFor(reason), reason, endedAt, durationSeconds)
	s, err := p.scanOne(row)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, ErrCallNotFound) {
		return Session{}, false, err
	}
	// Zero rows: either the call is already terminal or it never existed.
	existing, gerr := p.Get(ctx, callID)
	if gerr != nil {
		return Session{}, false, gerr
	}
	return existing, true, nil
}

func (p *PostgresStore) HasActiveFor(ctx context.Context, accountID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM calls
  WHERE (caller_id = $1 OR otomo_id = $1)
    AND status NOT IN ('ended','rejected','failed')
)
`
	var exists bool
	if err := p.db.QueryRowContext(ctx, q, accountID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (p *PostgresStore) scanOne(row *sql.Row) (Session, error) {
	var s Session
	var connectedAt, endedAt sql.NullTime
	var endReason sql.NullString
	err := row.Scan(
		&s.CallID,
		&s.CallerID,
		&s.OtomoID,
		&s.Status,
		&s.RatePerMinutePoints,
		&s.StartedAt,
		&connectedAt,
		&endedAt,
		&s.DurationSeconds,
		&s.BilledUnits,
		&s.BilledPoints,
		&endReason,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrCallNotFound
		}
		return Session{}, err
	}
	if connectedAt.Valid {
		t := connectedAt.Time
		s.ConnectedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if endReason.Valid {
		s.EndReason = EndReason(endReason.String)
	}
	return s, nil
}

// classifyMiss distinguishes "row absent" from "row in the wrong status" after
// a conditional UPDATE touched zero rows.
func (p *PostgresStore) classifyMiss(ctx context.Context, callID string) (Session, error) {
	if _, err := p.Get(ctx, callID); err != nil {
		return Session{}, err
	}
	return Session{}, ErrInvalidState
}

func statusList(set []Status) string {
	parts := make([]string, 0, len(set))
	for _, s := range set {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}

func isUniqueViolation(err error) bool {
	// pgx surfaces SQLSTATE 23505 in the error text through database/sql.
	return err != nil && strings.Contains(err.Error(), "23505")
}
