package call

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/accounts"
	"github.com/haruocode/otomohan-sub001/internal/broadcast"
	"github.com/haruocode/otomohan-sub001/internal/observability"
)

// OtomoDirectory is the slice of the account store the finalizer needs to
// restore an otomo's availability after a call ends.
type OtomoDirectory interface {
	SetOtomoAvailability(ctx context.Context, otomoID string, available bool) error
}

// CallEndRecorder receives terminal call records for the audit trail.
// audit.Service satisfies it.
type CallEndRecorder interface {
	LogCallEnd(ctx context.Context, callID, reason string, durationSeconds int, totalChargedPoints int64) error
}

// FinalizeOptions override the derived terminal values. Nil fields mean
// "derive from the session and the clock".
type FinalizeOptions struct {
	EndedAt            time.Time // zero value: now
	DurationSeconds    *int      // nil: elapsed since connection (0 if never connected)
	TotalChargedPoints *int64    // nil: the session's billed total
}

// Finalizer is the single point of truth for "has this call already ended".
// Every termination trigger (timer, gateway, media timeout) funnels through
// Finalize; whichever caller reaches the store's compare-and-set first wins
// and emits the one call_end broadcast, all others observe alreadyEnded.
type Finalizer struct {
	calls   Store
	otomos  OtomoDirectory
	sender  broadcast.Sender
	metrics *observability.Metrics
	audit   CallEndRecorder
	log     *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewFinalizer(calls Store, otomos OtomoDirectory, sender broadcast.Sender, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{
		calls:  calls,
		otomos: otomos,
		sender: sender,
		log:    log,
		clock:  time.Now,
	}
}

// SetMetrics attaches Prometheus instruments. Optional.
func (f *Finalizer) SetMetrics(m *observability.Metrics) { f.metrics = m }

// SetAudit attaches the audit trail. Optional; audit failures never block
// finalization.
func (f *Finalizer) SetAudit(a CallEndRecorder) { f.audit = a }

var errInvalidEndReason = errors.New("invalid end reason")

// Finalize transitions callID to a terminal state and broadcasts the call_end
// event to both participants. Idempotent: a second call for an already-ended
// call returns alreadyEnded=true, mutates nothing, and broadcasts nothing.
// The returned payload is always populated so callers can report the same
// event without recomputing it.
func (f *Finalizer) Finalize(ctx context.Context, callID string, reason EndReason, opts *FinalizeOptions) (broadcast.CallEnd, bool, error) {
	if !ValidEndReason(reason) {
		return broadcast.CallEnd{}, false, errInvalidEndReason
	}

	sess, err := f.calls.Get(ctx, callID)
	if err != nil {
		return broadcast.CallEnd{}, false, err
	}
	if sess.Status.Terminal() {
		return endPayload(sess), true, nil
	}

	now := f.clock()
	endedAt := now
	if opts != nil && !opts.EndedAt.IsZero() {
		endedAt = opts.EndedAt
	}
	duration := 0
	if sess.ConnectedAt != nil {
		duration = int(endedAt.Sub(*sess.ConnectedAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
	}
	if opts != nil && opts.DurationSeconds != nil {
		duration = *opts.DurationSeconds
	}

	// Restore availability before the terminal transition so a missing otomo
	// record surfaces without leaving the call half-finalized. Redundant under
	// a finalize race, but setting an already-true flag is harmless.
	if err := f.otomos.SetOtomoAvailability(ctx, sess.OtomoID, true); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return broadcast.CallEnd{}, false, ErrOtomoNotFound
		}
		return broadcast.CallEnd{}, false, err
	}

	final, alreadyEnded, err := f.calls.End(ctx, callID, reason, endedAt, duration)
	if err != nil {
		return broadcast.CallEnd{}, false, err
	}
	if alreadyEnded {
		return endPayload(final), true, nil
	}

	payload := endPayload(final)
	if opts != nil && opts.TotalChargedPoints != nil {
		payload.TotalChargedPoints = *opts.TotalChargedPoints
	}

	f.sender.SendToAccounts(ctx, []string{final.CallerID, final.OtomoID}, payload)

	if f.metrics != nil {
		f.metrics.CallEndings.WithLabelValues(string(reason)).Inc()
	}
	if f.audit != nil {
		if err := f.audit.LogCallEnd(ctx, callID, string(reason), payload.DurationSeconds, payload.TotalChargedPoints); err != nil {
			f.log.Error("audit append failed", "call_id", callID, "err", err)
		}
	}
	f.log.Info("call finalized",
		"call_id", callID,
		"reason", reason,
		"duration_seconds", payload.DurationSeconds,
		"total_charged_points", payload.TotalChargedPoints,
	)
	return payload, false, nil
}

func endPayload(s Session) broadcast.CallEnd {
	var endedAt time.Time
	if s.EndedAt != nil {
		endedAt = *s.EndedAt
	}
	return broadcast.CallEnd{
		Type:               broadcast.TypeCallEnd,
		CallID:             s.CallID,
		UserID:             s.CallerID,
		OtomoID:            s.OtomoID,
		EndedAt:            endedAt,
		Reason:             string(s.EndReason),
		DurationSeconds:    s.DurationSeconds,
		TotalChargedPoints: s.BilledPoints,
	}
}
