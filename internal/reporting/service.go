package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/wallet"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations should query immutable sources when possible
// (wallet ledger, billing units, finished call records).

type Repository interface {
	ListCalls(ctx context.Context, from, to time.Time, otomoID string) ([]call.Session, error)
	ListLedger(ctx context.Context, userID string, from, to time.Time) ([]wallet.LedgerEntry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return UsageSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return UsageSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.Range.From, req.Range.To, req.OtomoID)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{OtomoID: req.OtomoID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		out.TotalBilledUnits += c.BilledUnits
		out.TotalChargedPoints += c.BilledPoints
		switch c.Status {
		case call.StatusEnded:
			out.EndedCalls++
		case call.StatusRejected:
			out.RejectedCalls++
		case call.StatusFailed:
			out.FailedCalls++
		default:
			out.OpenCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.UserID == "" {
		return SpendSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return SpendSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListLedger(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{UserID: req.UserID}
	for _, e := range entries {
		if e.Delta > 0 {
			out.TotalCreditPoints += e.Delta
		} else {
			out.TotalDebitPoints += -e.Delta
		}
	}
	out.NetDeltaPoints = out.TotalCreditPoints - out.TotalDebitPoints
	return out, nil
}
