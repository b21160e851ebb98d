package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads rates from an `otomo_rates` table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) FindRate(ctx context.Context, otomoID string, at time.Time) (Rate, bool, error) {
	const q = `
SELECT id, otomo_id, points_per_minute, status, effective_from, effective_to, created_at
FROM otomo_rates
WHERE otomo_id = $1
  AND status = 'active'
  AND effective_from <= $2
  AND (effective_to IS NULL OR effective_to > $2)
ORDER BY effective_from DESC
LIMIT 1
`
	var rate Rate
	var effectiveTo sql.NullTime
	err := r.db.QueryRowContext(ctx, q, otomoID, at).Scan(
		&rate.ID,
		&rate.OtomoID,
		&rate.PointsPerMinute,
		&rate.Status,
		&rate.EffectiveFrom,
		&effectiveTo,
		&rate.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Rate{}, false, nil
		}
		return Rate{}, false, err
	}
	if effectiveTo.Valid {
		t := effectiveTo.Time
		rate.EffectiveTo = &t
	}
	return rate, true, nil
}
