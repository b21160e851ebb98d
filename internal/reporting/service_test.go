package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/wallet"
)

func TestUsageSummary_AggregatesByOutcome(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []call.Session{
		{CallID: "c1", OtomoID: "otomo-1", Status: call.StatusEnded, DurationSeconds: 120, BilledUnits: 2, BilledPoints: 200, StartedAt: now},
		{CallID: "c2", OtomoID: "otomo-1", Status: call.StatusRejected, StartedAt: now},
		{CallID: "c3", OtomoID: "otomo-1", Status: call.StatusFailed, DurationSeconds: 30, BilledUnits: 1, BilledPoints: 100, StartedAt: now},
		{CallID: "c4", OtomoID: "otomo-2", Status: call.StatusEnded, DurationSeconds: 600, BilledUnits: 10, BilledPoints: 1000, StartedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		Range:   TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
		OtomoID: "otomo-1",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 {
		t.Fatalf("expected 3 calls for otomo-1, got %d", out.TotalCalls)
	}
	if out.EndedCalls != 1 || out.RejectedCalls != 1 || out.FailedCalls != 1 {
		t.Fatalf("unexpected outcome split: %+v", out)
	}
	if out.TotalChargedPoints != 300 || out.TotalBilledUnits != 3 {
		t.Fatalf("unexpected totals: %+v", out)
	}
	if out.TotalDurationSeconds != 150 || out.AverageDurationSeconds != 50 {
		t.Fatalf("unexpected durations: %+v", out)
	}
}

func TestUsageSummary_ExcludesCallsOutsideTheRange(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []call.Session{
		{CallID: "c1", Status: call.StatusEnded, StartedAt: now},
		{CallID: "c2", Status: call.StatusEnded, StartedAt: now.Add(-48 * time.Hour)},
	}
	svc := NewService(repo)

	out, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call in range, got %d", out.TotalCalls)
	}
}

func TestSpendSummary_Aggregates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Ledgers = []wallet.LedgerEntry{
		{ID: "l1", UserID: "caller-1", Delta: 1000, ExternalRef: "topup", CreatedAt: now},
		{ID: "l2", UserID: "caller-1", Delta: -200, ExternalRef: "call-1", CreatedAt: now},
		{ID: "l3", UserID: "caller-1", Delta: -50, ExternalRef: "call-2", CreatedAt: now},
		{ID: "l4", UserID: "someone-else", Delta: -999, ExternalRef: "call-3", CreatedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{
		UserID: "caller-1",
		Range:  TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalDebitPoints != 250 {
		t.Fatalf("expected total debit 250, got %d", out.TotalDebitPoints)
	}
	if out.TotalCreditPoints != 1000 {
		t.Fatalf("expected total credit 1000, got %d", out.TotalCreditPoints)
	}
	if out.NetDeltaPoints != 750 {
		t.Fatalf("expected net 750, got %d", out.NetDeltaPoints)
	}
}

func TestSpendSummary_RequiresUserAndRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Now()

	if _, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{
		Range: TimeRange{From: now.Add(-time.Hour), To: now},
	}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{
		UserID: "caller-1",
		Range:  TimeRange{From: now, To: now},
	}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for an empty range, got %v", err)
	}
}
