package call

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_CreateRejectsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, Session{CallID: "call-1", Status: StatusRequesting}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, Session{CallID: "call-1", Status: StatusRequesting}); !errors.Is(err, ErrDuplicateCallID) {
		t.Fatalf("expected DUPLICATE_CALL_ID, got %v", err)
	}
}

func TestMemoryStore_TransitionEnforcesSourceStates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, Session{CallID: "call-1", Status: StatusRequesting})

	if _, err := s.Transition(ctx, "call-1", []Status{StatusAccepted}, StatusActive, time.Now()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
	sess, err := s.Transition(ctx, "call-1", []Status{StatusRequesting}, StatusAccepted, time.Now())
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if sess.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", sess.Status)
	}
}

func TestMemoryStore_EndIsCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, Session{CallID: "call-1", CallerID: "caller-1", OtomoID: "otomo-1", Status: StatusActive})

	now := time.Now().UTC()
	first, alreadyEnded, err := s.End(ctx, "call-1", ReasonUserEnd, now, 60)
	if err != nil || alreadyEnded {
		t.Fatalf("first end: alreadyEnded=%v err=%v", alreadyEnded, err)
	}
	if first.Status != StatusEnded || first.EndReason != ReasonUserEnd {
		t.Fatalf("unexpected terminal state: %+v", first)
	}

	second, alreadyEnded, err := s.End(ctx, "call-1", ReasonNetworkLost, now.Add(time.Second), 70)
	if err != nil || !alreadyEnded {
		t.Fatalf("second end: alreadyEnded=%v err=%v", alreadyEnded, err)
	}
	if second.EndReason != ReasonUserEnd || second.DurationSeconds != 60 {
		t.Fatalf("the losing end rewrote the session: %+v", second)
	}
}

func TestMemoryStore_ApplyTickLandsOnTerminalCalls(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, Session{CallID: "call-1", Status: StatusActive})
	_, _, _ = s.End(ctx, "call-1", ReasonUserEnd, time.Now(), 90)

	// A tick whose debit committed before the end still updates the totals.
	sess, err := s.ApplyTick(ctx, "call-1", 100, 60)
	if err != nil {
		t.Fatalf("apply tick: %v", err)
	}
	if sess.BilledUnits != 1 || sess.BilledPoints != 100 {
		t.Fatalf("expected totals 1/100, got %d/%d", sess.BilledUnits, sess.BilledPoints)
	}
	if sess.Status != StatusEnded || sess.EndReason != ReasonUserEnd || sess.DurationSeconds != 90 {
		t.Fatalf("the tick disturbed the terminal state: %+v", sess)
	}

	if _, err := s.ApplyTick(ctx, "no-such-call", 100, 60); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected CALL_NOT_FOUND, got %v", err)
	}
}

func TestMemoryStore_HasActiveForSeesBothSides(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, Session{CallID: "call-1", CallerID: "caller-1", OtomoID: "otomo-1", Status: StatusActive})

	for _, id := range []string{"caller-1", "otomo-1"} {
		busy, err := s.HasActiveFor(ctx, id)
		if err != nil || !busy {
			t.Fatalf("%s should be busy: busy=%v err=%v", id, busy, err)
		}
	}
	busy, _ := s.HasActiveFor(ctx, "someone-else")
	if busy {
		t.Fatalf("uninvolved account reported busy")
	}

	_, _, _ = s.End(ctx, "call-1", ReasonUserEnd, time.Now(), 0)
	busy, _ = s.HasActiveFor(ctx, "caller-1")
	if busy {
		t.Fatalf("an ended call must not count as busy")
	}
}

func TestTerminalStatusFor(t *testing.T) {
	if terminalStatusFor(ReasonSystemError) != StatusFailed {
		t.Fatalf("system_error must map to failed")
	}
	for _, r := range []EndReason{ReasonUserEnd, ReasonOtomoEnd, ReasonNoPoint, ReasonNetworkLost, ReasonTimeout} {
		if terminalStatusFor(r) != StatusEnded {
			t.Fatalf("%s must map to ended", r)
		}
	}
}
