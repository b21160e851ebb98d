package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/accounts"
	"github.com/haruocode/otomohan-sub001/internal/broadcast"
	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/wallet"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []any
}

func (r *recordingSender) SendToAccounts(ctx context.Context, accountIDs []string, message any) {
	_ = ctx
	_ = accountIDs
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingSender) callTicks() []broadcast.CallTick {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broadcast.CallTick
	for _, m := range r.messages {
		if t, ok := m.(broadcast.CallTick); ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *recordingSender) callEnds() []broadcast.CallEnd {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broadcast.CallEnd
	for _, m := range r.messages {
		if e, ok := m.(broadcast.CallEnd); ok {
			out = append(out, e)
		}
	}
	return out
}

type engineFixture struct {
	engine    *Engine
	wallet    *wallet.Memory
	store     *call.MemoryStore
	units     *MemoryUnitStore
	sender    *recordingSender
	finalizer *call.Finalizer
	sess      call.Session

	mu  sync.Mutex
	now time.Time
}

func (f *engineFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *engineFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

const (
	testCallID   = "call-1"
	testCallerID = "caller-1"
	testOtomoID  = "otomo-1"
)

func newEngineFixture(t *testing.T, balance, price int64) *engineFixture {
	t.Helper()
	ctx := context.Background()

	f := &engineFixture{
		wallet: wallet.NewMemory(),
		store:  call.NewMemoryStore(),
		units:  NewMemoryUnitStore(),
		sender: &recordingSender{},
		now:    time.Now().UTC().Truncate(time.Second),
	}
	f.wallet.SetBalance(testCallerID, balance)

	dir := accounts.NewMemoryDirectory()
	dir.PutOtomo(accounts.Otomo{ID: testOtomoID, Available: false})

	if err := f.store.Create(ctx, call.Session{
		CallID:   testCallID,
		CallerID: testCallerID,
		OtomoID:  testOtomoID,
		Status:   call.StatusAccepted,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess, err := f.store.Connect(ctx, testCallID, f.now)
	if err != nil {
		t.Fatalf("connect session: %v", err)
	}
	f.sess = sess

	f.finalizer = call.NewFinalizer(f.store, dir, f.sender, nil)
	f.engine = NewEngine(EngineConfig{}, f.wallet, f.store, f.units, f.finalizer, f.sender, nil)
	f.engine.clock = f.clock

	f.engine.Start(sess, price, f.now)
	t.Cleanup(f.engine.Shutdown)
	return f
}

func TestEngineStart_Idempotent(t *testing.T) {
	f := newEngineFixture(t, 250, 100)

	// A repeated start must not create a second loop.
	f.engine.Start(f.sess, 100, f.now)

	f.engine.mu.Lock()
	n := len(f.engine.timers)
	f.engine.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly one timer, got %d", n)
	}

	f.engine.Stop(testCallID)
	if f.engine.Active(testCallID) {
		t.Fatalf("expected timer gone after single stop")
	}
	// Stop is a no-op when no timer exists.
	f.engine.Stop(testCallID)
}

func TestEngineTick_ChargesRecordsAndBroadcasts(t *testing.T) {
	f := newEngineFixture(t, 250, 100)
	ctx := context.Background()

	f.engine.RegisterHeartbeat(testCallID, f.clock())
	f.advance(60 * time.Second)
	f.engine.RegisterHeartbeat(testCallID, f.clock())
	f.engine.tick(testCallID)

	if bal, _ := f.wallet.Balance(ctx, testCallerID); bal != 150 {
		t.Fatalf("expected balance 150 after first tick, got %d", bal)
	}

	units, _ := f.units.ListByCall(ctx, testCallID)
	if len(units) != 1 {
		t.Fatalf("expected one billing unit, got %d", len(units))
	}
	if units[0].MinuteIndex != 1 || units[0].ChargedPoints != 100 {
		t.Fatalf("unexpected unit: %+v", units[0])
	}

	sess, _ := f.store.Get(ctx, testCallID)
	if sess.BilledUnits != 1 || sess.BilledPoints != 100 {
		t.Fatalf("expected session totals 1/100, got %d/%d", sess.BilledUnits, sess.BilledPoints)
	}
	if sess.DurationSeconds != 60 {
		t.Fatalf("expected duration 60s, got %d", sess.DurationSeconds)
	}

	ticks := f.sender.callTicks()
	if len(ticks) != 1 {
		t.Fatalf("expected one tick broadcast, got %d", len(ticks))
	}
	tick := ticks[0]
	if tick.TickNumber != 1 || tick.ChargedPoints != 100 || tick.TotalChargedPoints != 100 {
		t.Fatalf("unexpected tick payload: %+v", tick)
	}
	if tick.UserBalance != 150 || tick.Status != string(TickOK) {
		t.Fatalf("unexpected tick payload: %+v", tick)
	}
	if !f.engine.Active(testCallID) {
		t.Fatalf("call should still be billed after an ok tick")
	}
}

func TestEngineTick_LowBalanceWarnsButContinues(t *testing.T) {
	f := newEngineFixture(t, 150, 100)

	f.advance(60 * time.Second)
	f.engine.RegisterHeartbeat(testCallID, f.clock())
	f.engine.tick(testCallID)

	ticks := f.sender.callTicks()
	if len(ticks) != 1 || ticks[0].Status != string(TickLowBalance) {
		t.Fatalf("expected a low_balance tick, got %+v", ticks)
	}
	if !f.engine.Active(testCallID) {
		t.Fatalf("low_balance must not stop the call")
	}
	if len(f.sender.callEnds()) != 0 {
		t.Fatalf("low_balance must not finalize the call")
	}
}

func TestEngineTick_BalanceExhaustionEndsCall(t *testing.T) {
	f := newEngineFixture(t, 50, 100)
	ctx := context.Background()

	f.advance(60 * time.Second)
	f.engine.RegisterHeartbeat(testCallID, f.clock())
	f.engine.tick(testCallID)

	if bal, _ := f.wallet.Balance(ctx, testCallerID); bal != 0 {
		t.Fatalf("expected the remaining 50 points charged, balance is %d", bal)
	}
	if f.engine.Active(testCallID) {
		t.Fatalf("expected timer stopped after exhaustion")
	}

	sess, _ := f.store.Get(ctx, testCallID)
	if sess.Status != call.StatusEnded || sess.EndReason != call.ReasonNoPoint {
		t.Fatalf("expected ended/no_point, got %s/%s", sess.Status, sess.EndReason)
	}

	ends := f.sender.callEnds()
	if len(ends) != 1 {
		t.Fatalf("expected exactly one call_end broadcast, got %d", len(ends))
	}
	if ends[0].Reason != string(call.ReasonNoPoint) || ends[0].TotalChargedPoints != 50 {
		t.Fatalf("unexpected call_end payload: %+v", ends[0])
	}
}

func TestEngineTick_HeartbeatTimeoutEndsCall(t *testing.T) {
	f := newEngineFixture(t, 250, 100)
	ctx := context.Background()

	// No heartbeat for longer than the allowed gap.
	f.advance(20 * time.Second)
	f.engine.tick(testCallID)

	if bal, _ := f.wallet.Balance(ctx, testCallerID); bal != 250 {
		t.Fatalf("a timed-out tick must not charge, balance is %d", bal)
	}
	if f.engine.Active(testCallID) {
		t.Fatalf("expected timer stopped after heartbeat timeout")
	}

	sess, _ := f.store.Get(ctx, testCallID)
	if sess.Status != call.StatusEnded || sess.EndReason != call.ReasonNetworkLost {
		t.Fatalf("expected ended/network_lost, got %s/%s", sess.Status, sess.EndReason)
	}
	if units, _ := f.units.ListByCall(ctx, testCallID); len(units) != 0 {
		t.Fatalf("a timed-out tick must not record billing units, got %d", len(units))
	}
	if len(f.sender.callEnds()) != 1 {
		t.Fatalf("expected exactly one call_end broadcast")
	}
}

func TestEngineTick_HeartbeatKeepsCallAlive(t *testing.T) {
	f := newEngineFixture(t, 250, 100)

	f.advance(10 * time.Second)
	if !f.engine.RegisterHeartbeat(testCallID, f.clock()) {
		t.Fatalf("expected heartbeat accepted for a running timer")
	}
	f.advance(10 * time.Second)
	f.engine.tick(testCallID)

	if !f.engine.Active(testCallID) {
		t.Fatalf("expected call alive; last gap was within the timeout")
	}
	if len(f.sender.callTicks()) != 1 {
		t.Fatalf("expected the tick to charge normally")
	}
}

func TestRegisterHeartbeat_UnknownCall(t *testing.T) {
	f := newEngineFixture(t, 250, 100)
	if f.engine.RegisterHeartbeat("no-such-call", time.Time{}) {
		t.Fatalf("expected false for an unknown call")
	}
}

func TestRegisterHeartbeat_NeverMovesBackward(t *testing.T) {
	f := newEngineFixture(t, 250, 100)

	f.engine.mu.Lock()
	before := f.engine.timers[testCallID].lastHeartbeat
	f.engine.mu.Unlock()

	f.engine.RegisterHeartbeat(testCallID, before.Add(-time.Minute))

	f.engine.mu.Lock()
	after := f.engine.timers[testCallID].lastHeartbeat
	f.engine.mu.Unlock()
	if !after.Equal(before) {
		t.Fatalf("a stale heartbeat moved lastHeartbeat from %v to %v", before, after)
	}
}

func TestEngineTick_SkipsWhileProcessing(t *testing.T) {
	f := newEngineFixture(t, 250, 100)
	ctx := context.Background()

	f.engine.mu.Lock()
	f.engine.timers[testCallID].processing = true
	f.engine.mu.Unlock()

	f.advance(60 * time.Second)
	f.engine.tick(testCallID)

	if bal, _ := f.wallet.Balance(ctx, testCallerID); bal != 250 {
		t.Fatalf("a skipped tick must not charge, balance is %d", bal)
	}
	if len(f.sender.callTicks()) != 0 {
		t.Fatalf("a skipped tick must not broadcast")
	}
}

type failingWallet struct{}

func (failingWallet) Balance(ctx context.Context, userID string) (int64, error) {
	return 0, errors.New("wallet unavailable")
}

func (failingWallet) Adjust(ctx context.Context, userID string, delta int64, externalRef string) (int64, error) {
	return 0, errors.New("wallet unavailable")
}

func TestEngineTick_WalletFailureEndsCallAsSystemError(t *testing.T) {
	f := newEngineFixture(t, 250, 100)
	ctx := context.Background()
	f.engine.wallet = failingWallet{}

	f.advance(10 * time.Second)
	f.engine.RegisterHeartbeat(testCallID, f.clock())
	f.engine.tick(testCallID)

	if f.engine.Active(testCallID) {
		t.Fatalf("expected timer stopped after a wallet failure")
	}
	sess, _ := f.store.Get(ctx, testCallID)
	if sess.Status != call.StatusFailed || sess.EndReason != call.ReasonSystemError {
		t.Fatalf("expected failed/system_error, got %s/%s", sess.Status, sess.EndReason)
	}
	if len(f.sender.callEnds()) != 1 {
		t.Fatalf("expected exactly one call_end broadcast")
	}
}

// gatedWallet blocks inside Adjust until released, so a tick can be held
// mid-debit while something else acts on the call.
type gatedWallet struct {
	inner   *wallet.Memory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedWallet) Balance(ctx context.Context, userID string) (int64, error) {
	return g.inner.Balance(ctx, userID)
}

func (g *gatedWallet) Adjust(ctx context.Context, userID string, delta int64, externalRef string) (int64, error) {
	close(g.entered)
	<-g.release
	return g.inner.Adjust(ctx, userID, delta, externalRef)
}

func TestEngineTick_EndRequestDuringTickKeepsChargeAccounted(t *testing.T) {
	f := newEngineFixture(t, 250, 100)
	ctx := context.Background()

	gate := &gatedWallet{inner: f.wallet, entered: make(chan struct{}), release: make(chan struct{})}
	f.engine.wallet = gate

	f.advance(60 * time.Second)
	f.engine.RegisterHeartbeat(testCallID, f.clock())

	done := make(chan struct{})
	go func() {
		f.engine.tick(testCallID)
		close(done)
	}()

	// The caller hangs up while the debit is in flight.
	<-gate.entered
	f.engine.Stop(testCallID)
	if _, alreadyEnded, err := f.finalizer.Finalize(ctx, testCallID, call.ReasonUserEnd, nil); err != nil || alreadyEnded {
		t.Fatalf("finalize: alreadyEnded=%v err=%v", alreadyEnded, err)
	}
	close(gate.release)
	<-done

	if bal, _ := f.wallet.Balance(ctx, testCallerID); bal != 150 {
		t.Fatalf("expected the in-flight debit applied, balance is %d", bal)
	}
	units, _ := f.units.ListByCall(ctx, testCallID)
	if len(units) != 1 {
		t.Fatalf("expected the in-flight tick unit recorded, got %d", len(units))
	}

	sess, _ := f.store.Get(ctx, testCallID)
	if sess.Status != call.StatusEnded || sess.EndReason != call.ReasonUserEnd {
		t.Fatalf("expected ended/user_end, got %s/%s", sess.Status, sess.EndReason)
	}
	if sess.BilledUnits != 1 || sess.BilledPoints != 100 {
		t.Fatalf("session totals must include the racing tick, got %d/%d", sess.BilledUnits, sess.BilledPoints)
	}
	if len(f.sender.callEnds()) != 1 {
		t.Fatalf("expected exactly one call_end broadcast, got %d", len(f.sender.callEnds()))
	}
}

func TestEngineTick_NumbersTicksSequentially(t *testing.T) {
	f := newEngineFixture(t, 1000, 100)

	for i := 0; i < 3; i++ {
		f.advance(60 * time.Second)
		f.engine.RegisterHeartbeat(testCallID, f.clock())
		f.engine.tick(testCallID)
	}

	ticks := f.sender.callTicks()
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	for i, tick := range ticks {
		if tick.TickNumber != i+1 {
			t.Fatalf("tick %d numbered %d", i, tick.TickNumber)
		}
	}
	if ticks[2].TotalChargedPoints != 300 {
		t.Fatalf("expected running total 300, got %d", ticks[2].TotalChargedPoints)
	}
}
