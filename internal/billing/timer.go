package billing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haruocode/otomohan-sub001/internal/broadcast"
	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/observability"
)

// Wallet is the external point-balance collaborator. Balances are mutated only
// through signed-delta adjustment so concurrent adjustments compose.
type Wallet interface {
	Balance(ctx context.Context, userID string) (int64, error)
	// Adjust applies a signed delta and returns the resulting balance.
	Adjust(ctx context.Context, userID string, delta int64, externalRef string) (int64, error)
}

// SessionStore is the slice of call persistence the timer needs.
type SessionStore interface {
	ApplyTick(ctx context.Context, callID string, chargedPoints int64, durationSeconds int) (call.Session, error)
}

// Finalizer idempotently terminates a call. The engine never broadcasts
// call_end itself; that is the finalizer's job, exactly once.
type Finalizer interface {
	Finalize(ctx context.Context, callID string, reason call.EndReason, opts *call.FinalizeOptions) (broadcast.CallEnd, bool, error)
}

// LivenessPolicy decides whether a call's media path is presumed alive given
// its last heartbeat. Pluggable so a stricter media-layer signal can replace
// the fixed-gap default without touching the tick control flow.
type LivenessPolicy interface {
	Alive(lastHeartbeat, now time.Time) bool
}

// MaxGapLiveness presumes a call dead once the heartbeat gap exceeds Timeout.
type MaxGapLiveness struct {
	Timeout time.Duration
}

func (p MaxGapLiveness) Alive(lastHeartbeat, now time.Time) bool {
	return now.Sub(lastHeartbeat) <= p.Timeout
}

// timerState is the process-local mutable state of one running timer.
// Owned exclusively by the engine; only accessed under the engine mutex.
type timerState struct {
	callID   string
	callerID string
	otomoID  string

	pricePerMinute int64
	connectedAt    time.Time

	tickNumber    int
	totalCharged  int64
	lastHeartbeat time.Time

	// processing guards against a slow wallet adjustment overlapping the next
	// scheduled tick. While set, scheduled ticks are skipped entirely.
	processing bool

	done chan struct{}
}

// EngineConfig carries the timing knobs.
type EngineConfig struct {
	// TickInterval between billing evaluations. Default 60s.
	TickInterval time.Duration
	// HeartbeatTimeout is the max allowed heartbeat gap. Default 15s.
	HeartbeatTimeout time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	out := c
	if out.TickInterval <= 0 {
		out.TickInterval = 60 * time.Second
	}
	if out.HeartbeatTimeout <= 0 {
		out.HeartbeatTimeout = 15 * time.Second
	}
	return out
}

// Engine owns the periodic billing loop for every active call in this
// process. At most one timerState exists per call id at any time.
type Engine struct {
	wallet    Wallet
	sessions  SessionStore
	units     UnitStore
	finalizer Finalizer
	sender    broadcast.Sender
	liveness  LivenessPolicy
	metrics   *observability.Metrics
	log       *slog.Logger

	interval time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time

	mu     sync.Mutex
	timers map[string]*timerState
}

func NewEngine(cfg EngineConfig, wallet Wallet, sessions SessionStore, units UnitStore, finalizer Finalizer, sender broadcast.Sender, log *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		wallet:    wallet,
		sessions:  sessions,
		units:     units,
		finalizer: finalizer,
		sender:    sender,
		liveness:  MaxGapLiveness{Timeout: cfg.HeartbeatTimeout},
		log:       log,
		interval:  cfg.TickInterval,
		clock:     time.Now,
		timers:    make(map[string]*timerState),
	}
}

// SetLivenessPolicy replaces the default fixed-gap policy. Call before Start.
func (e *Engine) SetLivenessPolicy(p LivenessPolicy) {
	if p != nil {
		e.liveness = p
	}
}

// SetMetrics attaches Prometheus instruments. Optional.
func (e *Engine) SetMetrics(m *observability.Metrics) { e.metrics = m }

// Start begins the billing loop for sess. Idempotent: if a timer already
// exists for this call, only price/connectedAt are updated and the heartbeat
// refreshed; no second loop is created.
func (e *Engine) Start(sess call.Session, pricePerMinute int64, connectedAt time.Time) {
	now := e.clock()

	e.mu.Lock()
	if st, ok := e.timers[sess.CallID]; ok {
		st.pricePerMinute = pricePerMinute
		st.connectedAt = connectedAt
		st.lastHeartbeat = now
		e.mu.Unlock()
		e.log.Debug("billing timer already running, refreshed", "call_id", sess.CallID)
		return
	}
	st := &timerState{
		callID:         sess.CallID,
		callerID:       sess.CallerID,
		otomoID:        sess.OtomoID,
		pricePerMinute: pricePerMinute,
		connectedAt:    connectedAt,
		lastHeartbeat:  now,
		done:           make(chan struct{}),
	}
	e.timers[sess.CallID] = st
	count := len(e.timers)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ActiveTimers.Set(float64(count))
	}
	e.log.Info("billing timer started",
		"call_id", sess.CallID, "price_per_minute", pricePerMinute, "interval", e.interval)

	go e.run(st)
}

// RegisterHeartbeat records a liveness signal for callID. at may be zero for
// "now". Returns whether a timer existed.
func (e *Engine) RegisterHeartbeat(callID string, at time.Time) bool {
	if at.IsZero() {
		at = e.clock()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.timers[callID]
	if !ok {
		return false
	}
	if at.After(st.lastHeartbeat) {
		st.lastHeartbeat = at
	}
	return true
}

// Stop cancels the timer for callID and discards its state. No-op when no
// timer exists; safe to call multiple times and concurrently with an
// in-flight tick (the tick finishes, the loop is not rescheduled).
func (e *Engine) Stop(callID string) {
	e.mu.Lock()
	st, ok := e.timers[callID]
	if ok {
		delete(e.timers, callID)
		close(st.done)
	}
	count := len(e.timers)
	e.mu.Unlock()

	if !ok {
		return
	}
	if e.metrics != nil {
		e.metrics.ActiveTimers.Set(float64(count))
	}
	e.log.Info("billing timer stopped", "call_id", callID)
}

// Active reports whether a timer is currently running for callID.
func (e *Engine) Active(callID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[callID]
	return ok
}

// Shutdown stops every timer. Calls themselves are left untouched; an
// operator restart policy decides how orphaned active calls are resolved.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.Stop(id)
	}
}

func (e *Engine) run(st *timerState) {
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-st.done:
			return
		case <-t.C:
			e.tick(st.callID)
		}
	}
}

// tick performs one scheduled billing evaluation for callID.
func (e *Engine) tick(callID string) {
	now := e.clock()

	e.mu.Lock()
	st, ok := e.timers[callID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if st.processing {
		// The previous tick has not finished its wallet adjustment. Skipping
		// keeps at-most-one debit per completed tick.
		e.mu.Unlock()
		e.log.Warn("tick skipped, previous tick still processing", "call_id", callID)
		if e.metrics != nil {
			e.metrics.BillingTicks.WithLabelValues("skipped").Inc()
		}
		return
	}
	if !e.liveness.Alive(st.lastHeartbeat, now) {
		gap := now.Sub(st.lastHeartbeat)
		e.mu.Unlock()
		e.log.Warn("heartbeat timeout, ending call", "call_id", callID, "gap", gap)
		e.Stop(callID)
		e.finalizeQuiet(callID, call.ReasonNetworkLost)
		return
	}
	st.processing = true
	st.tickNumber++
	tickNo := st.tickNumber
	callerID, otomoID := st.callerID, st.otomoID
	price := st.pricePerMinute
	connectedAt := st.connectedAt
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.interval)
	defer cancel()

	status, total, err := e.processTick(ctx, st, callID, callerID, otomoID, price, connectedAt, tickNo, now)

	e.mu.Lock()
	st.processing = false
	e.mu.Unlock()

	if err != nil {
		e.log.Error("tick processing failed, ending call", "call_id", callID, "tick", tickNo, "err", err)
		if e.metrics != nil {
			e.metrics.BillingTicks.WithLabelValues("error").Inc()
		}
		e.Stop(callID)
		e.finalizeQuiet(callID, call.ReasonSystemError)
		return
	}
	if e.metrics != nil {
		e.metrics.BillingTicks.WithLabelValues(string(status)).Inc()
	}
	if status == TickEnded {
		e.log.Info("balance exhausted, ending call",
			"call_id", callID, "tick", tickNo, "total_charged", total)
		e.Stop(callID)
		_, _, ferr := e.finalizer.Finalize(context.Background(), callID, call.ReasonNoPoint, &call.FinalizeOptions{
			TotalChargedPoints: &total,
		})
		if ferr != nil {
			e.log.Error("finalize failed", "call_id", callID, "reason", call.ReasonNoPoint, "err", ferr)
		}
	}
}

// processTick is the charge-and-record half of a tick: debit, billing unit,
// session totals, tick broadcast. Any error aborts the call.
func (e *Engine) processTick(ctx context.Context, st *timerState, callID, callerID, otomoID string, price int64, connectedAt time.Time, tickNo int, now time.Time) (TickStatus, int64, error) {
	balance, err := e.wallet.Balance(ctx, callerID)
	if err != nil {
		return "", 0, err
	}

	charged, status := ComputeTick(balance, price)

	newBalance := balance
	if charged > 0 {
		newBalance, err = e.wallet.Adjust(ctx, callerID, -charged, callID)
		if err != nil {
			return "", 0, err
		}
	}

	if err := e.units.Append(ctx, Unit{
		ID:            uuid.NewString(),
		CallID:        callID,
		MinuteIndex:   tickNo,
		ChargedPoints: charged,
		Timestamp:     now,
	}); err != nil {
		return "", 0, err
	}

	duration := int(now.Sub(connectedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}
	if _, err := e.sessions.ApplyTick(ctx, callID, charged, duration); err != nil {
		return "", 0, err
	}

	e.mu.Lock()
	st.totalCharged += charged
	total := st.totalCharged
	e.mu.Unlock()

	if e.metrics != nil && charged > 0 {
		e.metrics.ChargedPoints.Add(float64(charged))
	}

	e.sender.SendToAccounts(ctx, []string{callerID, otomoID}, broadcast.CallTick{
		Type:               broadcast.TypeCallTick,
		CallID:             callID,
		TickNumber:         tickNo,
		ChargedPoints:      charged,
		TotalChargedPoints: total,
		DurationSeconds:    duration,
		UserBalance:        newBalance,
		Status:             string(status),
	})

	return status, total, nil
}

func (e *Engine) finalizeQuiet(callID string, reason call.EndReason) {
	if _, _, err := e.finalizer.Finalize(context.Background(), callID, reason, nil); err != nil {
		e.log.Error("finalize failed", "call_id", callID, "reason", reason, "err", err)
	}
}
