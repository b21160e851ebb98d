package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/accounts"
)

func newActiveSession(t *testing.T, store *MemoryStore, connectedAt time.Time) Session {
	t.Helper()
	ctx := context.Background()
	if err := store.Create(ctx, Session{
		CallID:              "call-1",
		CallerID:            "caller-1",
		OtomoID:             "otomo-1",
		Status:              StatusAccepted,
		RatePerMinutePoints: 100,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	sess, err := store.Connect(ctx, "call-1", connectedAt)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return sess
}

func TestFinalize_EndsCallOnceAndBroadcastsOnce(t *testing.T) {
	store := NewMemoryStore()
	dir := accounts.NewMemoryDirectory()
	dir.PutOtomo(accounts.Otomo{ID: "otomo-1", Available: false})
	sender := &captureSender{}
	fin := NewFinalizer(store, dir, sender, nil)

	connectedAt := time.Now().UTC().Add(-90 * time.Second)
	newActiveSession(t, store, connectedAt)

	end, alreadyEnded, err := fin.Finalize(context.Background(), "call-1", ReasonUserEnd, nil)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if alreadyEnded {
		t.Fatalf("first finalize must not report alreadyEnded")
	}
	if end.Reason != string(ReasonUserEnd) {
		t.Fatalf("expected user_end, got %s", end.Reason)
	}
	if end.DurationSeconds < 89 || end.DurationSeconds > 91 {
		t.Fatalf("expected ~90s duration, got %d", end.DurationSeconds)
	}
	if sender.count() != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", sender.count())
	}

	// Second finalize: absorbed, nothing broadcast, payload preserved.
	end2, alreadyEnded, err := fin.Finalize(context.Background(), "call-1", ReasonOtomoEnd, nil)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if !alreadyEnded {
		t.Fatalf("second finalize must report alreadyEnded")
	}
	if end2.Reason != string(ReasonUserEnd) {
		t.Fatalf("the first reason must survive, got %s", end2.Reason)
	}
	if sender.count() != 1 {
		t.Fatalf("a duplicate finalize must not broadcast, got %d", sender.count())
	}
}

func TestFinalize_ConcurrentCallersProduceOneBroadcast(t *testing.T) {
	store := NewMemoryStore()
	dir := accounts.NewMemoryDirectory()
	dir.PutOtomo(accounts.Otomo{ID: "otomo-1", Available: false})
	sender := &captureSender{}
	fin := NewFinalizer(store, dir, sender, nil)

	newActiveSession(t, store, time.Now().UTC())

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	reasons := []EndReason{ReasonUserEnd, ReasonOtomoEnd, ReasonNetworkLost, ReasonNoPoint}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(reason EndReason) {
			defer wg.Done()
			_, alreadyEnded, err := fin.Finalize(context.Background(), "call-1", reason, nil)
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if !alreadyEnded {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(reasons[i%len(reasons)])
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winning finalize, got %d", winners)
	}
	if sender.count() != 1 {
		t.Fatalf("expected exactly one call_end broadcast, got %d", sender.count())
	}
}

func TestFinalize_RestoresOtomoAvailability(t *testing.T) {
	store := NewMemoryStore()
	dir := accounts.NewMemoryDirectory()
	dir.PutOtomo(accounts.Otomo{ID: "otomo-1", Available: false})
	fin := NewFinalizer(store, dir, &captureSender{}, nil)

	newActiveSession(t, store, time.Now().UTC())

	if _, _, err := fin.Finalize(context.Background(), "call-1", ReasonUserEnd, nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	otomo, _ := dir.GetOtomo(context.Background(), "otomo-1")
	if !otomo.Available {
		t.Fatalf("expected the otomo available again after the call")
	}
}

func TestFinalize_RejectsUnknownReason(t *testing.T) {
	fin := NewFinalizer(NewMemoryStore(), accounts.NewMemoryDirectory(), &captureSender{}, nil)
	if _, _, err := fin.Finalize(context.Background(), "call-1", EndReason("hangup"), nil); err == nil {
		t.Fatalf("expected an error for an unknown reason")
	}
}

func TestFinalize_UnknownCall(t *testing.T) {
	fin := NewFinalizer(NewMemoryStore(), accounts.NewMemoryDirectory(), &captureSender{}, nil)
	if _, _, err := fin.Finalize(context.Background(), "no-such-call", ReasonUserEnd, nil); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected CALL_NOT_FOUND, got %v", err)
	}
}

func TestFinalize_SystemErrorMarksCallFailed(t *testing.T) {
	store := NewMemoryStore()
	dir := accounts.NewMemoryDirectory()
	dir.PutOtomo(accounts.Otomo{ID: "otomo-1", Available: false})
	fin := NewFinalizer(store, dir, &captureSender{}, nil)

	newActiveSession(t, store, time.Now().UTC())

	if _, _, err := fin.Finalize(context.Background(), "call-1", ReasonSystemError, nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	sess, _ := store.Get(context.Background(), "call-1")
	if sess.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", sess.Status)
	}
}

func TestFinalize_OptionsOverrideDerivedValues(t *testing.T) {
	store := NewMemoryStore()
	dir := accounts.NewMemoryDirectory()
	dir.PutOtomo(accounts.Otomo{ID: "otomo-1", Available: false})
	fin := NewFinalizer(store, dir, &captureSender{}, nil)

	connectedAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	newActiveSession(t, store, connectedAt)

	duration := 125
	total := int64(300)
	end, _, err := fin.Finalize(context.Background(), "call-1", ReasonNoPoint, &FinalizeOptions{
		EndedAt:            connectedAt.Add(125 * time.Second),
		DurationSeconds:    &duration,
		TotalChargedPoints: &total,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if end.DurationSeconds != 125 {
		t.Fatalf("expected duration 125, got %d", end.DurationSeconds)
	}
	if end.TotalChargedPoints != 300 {
		t.Fatalf("expected total 300, got %d", end.TotalChargedPoints)
	}
	if !end.EndedAt.Equal(connectedAt.Add(125 * time.Second)) {
		t.Fatalf("expected the supplied ended_at, got %v", end.EndedAt)
	}
}

func TestFinalize_NeverConnectedCallHasZeroDuration(t *testing.T) {
	store := NewMemoryStore()
	dir := accounts.NewMemoryDirectory()
	dir.PutOtomo(accounts.Otomo{ID: "otomo-1", Available: true})
	fin := NewFinalizer(store, dir, &captureSender{}, nil)

	ctx := context.Background()
	_ = store.Create(ctx, Session{
		CallID: "call-1", CallerID: "caller-1", OtomoID: "otomo-1", Status: StatusAccepted,
	})

	end, _, err := fin.Finalize(ctx, "call-1", ReasonNetworkLost, nil)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if end.DurationSeconds != 0 {
		t.Fatalf("expected zero duration for a never-connected call, got %d", end.DurationSeconds)
	}
}
