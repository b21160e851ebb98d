package call

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/accounts"
	"github.com/haruocode/otomohan-sub001/internal/broadcast"
	"github.com/haruocode/otomohan-sub001/internal/pricing"
)

var ErrInvalidArgument = errors.New("invalid argument")

// ParticipantDirectory is the slice of the account store the coordinator
// needs. accounts.Directory satisfies it.
type ParticipantDirectory interface {
	GetCaller(ctx context.Context, id string) (accounts.Caller, error)
	GetOtomo(ctx context.Context, id string) (accounts.Otomo, error)
	SetOtomoAvailability(ctx context.Context, id string, available bool) error
}

// RateResolver returns the effective per-minute price for an otomo.
// pricing.Service satisfies it.
type RateResolver interface {
	ResolveRate(ctx context.Context, otomoID string, at time.Time) (pricing.Rate, error)
}

// TimerController is the billing timer surface the call lifecycle drives.
// The per-call timer state belongs to the engine alone; the coordinator only
// ever starts and stops.
type TimerController interface {
	Start(sess Session, pricePerMinute int64, connectedAt time.Time)
	Stop(callID string)
}

// InitiateRequest asks to start a call. CallID is externally supplied so the
// client can correlate the whole lifecycle.
type InitiateRequest struct {
	CallID   string
	CallerID string
	OtomoID  string
}

// Coordinator validates and executes call initiation, acceptance and
// rejection against companion availability and participant busy-state.
// It never mutates timer state directly and never finalizes except through
// the Finalizer.
type Coordinator struct {
	calls     Store
	dir       ParticipantDirectory
	presence  accounts.PresenceChecker
	rates     RateResolver
	timers    TimerController
	finalizer *Finalizer
	sender    broadcast.Sender
	log       *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewCoordinator(calls Store, dir ParticipantDirectory, presence accounts.PresenceChecker, rates RateResolver, timers TimerController, finalizer *Finalizer, sender broadcast.Sender, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		calls:     calls,
		dir:       dir,
		presence:  presence,
		rates:     rates,
		timers:    timers,
		finalizer: finalizer,
		sender:    sender,
		log:       log,
		clock:     time.Now,
	}
}

// Initiate validates preconditions and creates the session in
// StatusRequesting. Violations are returned before any state change; no row
// is created for a refused request.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (Session, error) {
	if req.CallID == "" || req.CallerID == "" || req.OtomoID == "" {
		return Session{}, ErrInvalidArgument
	}

	if _, err := c.dir.GetCaller(ctx, req.CallerID); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return Session{}, ErrCallerNotFound
		}
		return Session{}, err
	}

	otomo, err := c.dir.GetOtomo(ctx, req.OtomoID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return Session{}, ErrOtomoNotFound
		}
		return Session{}, err
	}

	online, err := c.presence.IsOnline(ctx, req.OtomoID)
	if err != nil {
		return Session{}, err
	}
	if !online {
		return Session{}, ErrOtomoOffline
	}
	if !otomo.Available {
		return Session{}, ErrOtomoBusy
	}

	if busy, err := c.calls.HasActiveFor(ctx, req.CallerID); err != nil {
		return Session{}, err
	} else if busy {
		return Session{}, ErrCallerBusy
	}
	if busy, err := c.calls.HasActiveFor(ctx, req.OtomoID); err != nil {
		return Session{}, err
	} else if busy {
		return Session{}, ErrOtomoBusy
	}

	now := c.clock().UTC()
	rate, err := c.rates.ResolveRate(ctx, req.OtomoID, now)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		CallID:              req.CallID,
		CallerID:            req.CallerID,
		OtomoID:             req.OtomoID,
		Status:              StatusRequesting,
		RatePerMinutePoints: rate.PointsPerMinute,
		StartedAt:           now,
		UpdatedAt:           now,
	}
	if err := c.calls.Create(ctx, sess); err != nil {
		return Session{}, err
	}

	c.sender.SendToAccounts(ctx, []string{req.OtomoID}, broadcast.CallRequested{
		Type:        broadcast.TypeCallRequested,
		CallID:      req.CallID,
		CallerID:    req.CallerID,
		OtomoID:     req.OtomoID,
		RequestedAt: now,
	})
	c.log.Info("call requested",
		"call_id", req.CallID, "caller_id", req.CallerID, "otomo_id", req.OtomoID,
		"rate_per_minute", rate.PointsPerMinute)
	return sess, nil
}

// Accept moves a requesting call to accepted, marks the otomo unavailable
// and notifies the caller. Only the called otomo may accept.
func (c *Coordinator) Accept(ctx context.Context, callID, otomoID string) (Session, error) {
	if callID == "" || otomoID == "" {
		return Session{}, ErrInvalidArgument
	}
	sess, err := c.calls.Get(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if sess.OtomoID != otomoID {
		return Session{}, ErrForbidden
	}

	now := c.clock().UTC()
	sess, err = c.calls.Transition(ctx, callID, []Status{StatusRequesting}, StatusAccepted, now)
	if err != nil {
		return Session{}, err
	}
	if err := c.dir.SetOtomoAvailability(ctx, otomoID, false); err != nil {
		c.log.Error("availability update failed after accept", "otomo_id", otomoID, "err", err)
	}

	c.sender.SendToAccounts(ctx, []string{sess.CallerID}, broadcast.CallAccepted{
		Type:                broadcast.TypeCallAccepted,
		CallID:              callID,
		OtomoID:             otomoID,
		RatePerMinutePoints: sess.RatePerMinutePoints,
		AcceptedAt:          now,
	})
	c.log.Info("call accepted", "call_id", callID, "otomo_id", otomoID)
	return sess, nil
}

// Reject moves a requesting call to its terminal rejected state and notifies
// the caller. Only the called otomo may reject.
func (c *Coordinator) Reject(ctx context.Context, callID, otomoID string) (Session, error) {
	if callID == "" || otomoID == "" {
		return Session{}, ErrInvalidArgument
	}
	sess, err := c.calls.Get(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if sess.OtomoID != otomoID {
		return Session{}, ErrForbidden
	}

	now := c.clock().UTC()
	sess, err = c.calls.Transition(ctx, callID, []Status{StatusRequesting}, StatusRejected, now)
	if err != nil {
		return Session{}, err
	}

	c.sender.SendToAccounts(ctx, []string{sess.CallerID}, broadcast.CallRejected{
		Type:    broadcast.TypeCallRejected,
		CallID:  callID,
		OtomoID: otomoID,
	})
	c.log.Info("call rejected", "call_id", callID, "otomo_id", otomoID)
	return sess, nil
}

// Connect handles the media layer's "call connected" signal: the accepted
// call becomes active, the billing timer starts, and both participants are
// notified. Idempotent at the timer level; a repeated signal for an already
// active call returns INVALID_STATE from the store and changes nothing.
func (c *Coordinator) Connect(ctx context.Context, callID string, connectedAt time.Time) (Session, error) {
	if callID == "" {
		return Session{}, ErrInvalidArgument
	}
	if connectedAt.IsZero() {
		connectedAt = c.clock().UTC()
	}

	sess, err := c.calls.Connect(ctx, callID, connectedAt)
	if err != nil {
		return Session{}, err
	}

	c.timers.Start(sess, sess.RatePerMinutePoints, connectedAt)

	c.sender.SendToAccounts(ctx, []string{sess.CallerID, sess.OtomoID}, broadcast.CallConnected{
		Type:        broadcast.TypeCallConnected,
		CallID:      callID,
		ConnectedAt: connectedAt,
	})
	c.log.Info("call connected", "call_id", callID)
	return sess, nil
}

// RequestEnd handles an explicit end request from either participant. The
// reason records who hung up. Duplicate or racing requests are absorbed via
// the finalizer's alreadyEnded result rather than surfaced as errors.
func (c *Coordinator) RequestEnd(ctx context.Context, callID, requesterID string) (broadcast.CallEnd, bool, error) {
	if callID == "" || requesterID == "" {
		return broadcast.CallEnd{}, false, ErrInvalidArgument
	}
	sess, err := c.calls.Get(ctx, callID)
	if err != nil {
		return broadcast.CallEnd{}, false, err
	}
	if !sess.Participant(requesterID) {
		return broadcast.CallEnd{}, false, ErrForbidden
	}
	if sess.Status == StatusRequesting {
		return broadcast.CallEnd{}, false, ErrInvalidState
	}

	reason := ReasonUserEnd
	if requesterID == sess.OtomoID {
		reason = ReasonOtomoEnd
	}

	c.timers.Stop(callID)
	return c.finalizer.Finalize(ctx, callID, reason, nil)
}
