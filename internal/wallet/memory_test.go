package wallet

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_AdjustMovesBalanceAndAppendsLedger(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SetBalance("user-1", 250)

	bal, err := m.Adjust(ctx, "user-1", -100, "call-1")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if bal != 150 {
		t.Fatalf("expected 150, got %d", bal)
	}

	entries, err := m.Ledger(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	if entries[0].Delta != -100 || entries[0].ExternalRef != "call-1" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestMemory_AdjustRejectsZeroDelta(t *testing.T) {
	m := NewMemory()
	if _, err := m.Adjust(context.Background(), "user-1", 0, "ref"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestMemory_LedgerLimitKeepsMostRecent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := m.Adjust(ctx, "user-1", 10, "topup"); err != nil {
			t.Fatalf("adjust: %v", err)
		}
	}
	entries, _ := m.Ledger(ctx, "user-1", 2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestMemory_BalanceOfUnknownUserIsZero(t *testing.T) {
	m := NewMemory()
	bal, err := m.Balance(context.Background(), "ghost")
	if err != nil || bal != 0 {
		t.Fatalf("expected zero balance, got %d err=%v", bal, err)
	}
}
