package pricing

import (
	"context"
	"errors"
	"time"
)

// Service resolves the effective per-minute rate for an otomo.
//
// Contract:
// - Pure lookup; no wallet or call state involved.
// - The rate is resolved once, when the call request is created, and frozen
//   onto the session; mid-call price changes never affect a running call.
type Service struct {
	repo RateRepository
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo RateRepository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrRateNotFound = errors.New("rate not found")
)

// ResolveRate returns the points-per-minute price effective for otomoID at
// the given time. A zero `at` uses the service clock.
func (s *Service) ResolveRate(ctx context.Context, otomoID string, at time.Time) (Rate, error) {
	if otomoID == "" {
		return Rate{}, ErrRateNotFound
	}
	if at.IsZero() {
		at = s.clock().UTC()
	}
	r, ok, err := s.repo.FindRate(ctx, otomoID, at)
	if err != nil {
		return Rate{}, err
	}
	if !ok {
		return Rate{}, ErrRateNotFound
	}
	return r, nil
}

// RateRepository abstracts rate persistence.
type RateRepository interface {
	FindRate(ctx context.Context, otomoID string, at time.Time) (Rate, bool, error)
}
