package pricing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResolveRate_PicksTheEffectiveRate(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)

	svc := NewService(&MemoryRepo{Rates: []Rate{
		{ID: "rate-old", OtomoID: "otomo-1", PointsPerMinute: 80, Status: RateStatusActive, EffectiveFrom: old},
		{ID: "rate-new", OtomoID: "otomo-1", PointsPerMinute: 120, Status: RateStatusActive, EffectiveFrom: recent},
		{ID: "rate-off", OtomoID: "otomo-1", PointsPerMinute: 999, Status: RateStatusDisabled, EffectiveFrom: recent},
	}})

	r, err := svc.ResolveRate(context.Background(), "otomo-1", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.ID != "rate-new" || r.PointsPerMinute != 120 {
		t.Fatalf("expected the most recently effective active rate, got %+v", r)
	}
}

func TestResolveRate_HonorsEffectiveTo(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)

	svc := NewService(&MemoryRepo{Rates: []Rate{
		{ID: "rate-1", OtomoID: "otomo-1", PointsPerMinute: 80, Status: RateStatusActive,
			EffectiveFrom: now.Add(-48 * time.Hour), EffectiveTo: &expired},
	}})

	if _, err := svc.ResolveRate(context.Background(), "otomo-1", now); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound for an expired rate, got %v", err)
	}
}

func TestResolveRate_UnknownOtomo(t *testing.T) {
	svc := NewService(&MemoryRepo{})
	if _, err := svc.ResolveRate(context.Background(), "ghost", time.Now()); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
}
