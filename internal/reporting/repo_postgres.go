package reporting

import (
	"context"
	"database/sql"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/wallet"
)

// PostgresRepo reads finished call rows and wallet ledger entries. Reporting
// only ever reads; all writes stay with the owning modules.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListCalls(ctx context.Context, from, to time.Time, otomoID string) ([]call.Session, error) {
	const q = `
SELECT call_id, caller_id, otomo_id, status, rate_per_minute_points,
       started_at, connected_at, ended_at, duration_seconds,
       billed_units, billed_points, end_reason, updated_at
FROM calls
WHERE started_at >= $1 AND started_at < $2
  AND ($3 = '' OR otomo_id = $3)
ORDER BY started_at
`
	rows, err := r.db.QueryContext(ctx, q, from, to, otomoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []call.Session
	for rows.Next() {
		var s call.Session
		var connectedAt, endedAt sql.NullTime
		var endReason sql.NullString
		if err := rows.Scan(
			&s.CallID, &s.CallerID, &s.OtomoID, &s.Status, &s.RatePerMinutePoints,
			&s.StartedAt, &connectedAt, &endedAt, &s.DurationSeconds,
			&s.BilledUnits, &s.BilledPoints, &endReason, &s.UpdatedAt,
		); err != nil {
			return nil, err
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
			s.EndReason = call.EndReason(endReason.String)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListLedger(ctx context.Context, userID string, from, to time.Time) ([]wallet.LedgerEntry, error) {
	const q = `
SELECT id, user_id, delta, external_ref, created_at
FROM wallet_ledger
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wallet.LedgerEntry
	for rows.Next() {
		var e wallet.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
