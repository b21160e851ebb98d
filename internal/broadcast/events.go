// Package broadcast delivers server events to the live connections of one or
// more accounts. Delivery is best-effort: a slow or dead socket never blocks
// or fails the caller.
package broadcast

import "time"

// Event type tags. These are part of the client protocol; keep stable.
const (
	TypeCallRequested = "call_request"
	TypeCallAccepted  = "call_accepted"
	TypeCallRejected  = "call_rejected"
	TypeCallConnected = "call_connected"
	TypeCallTick      = "call_tick"
	TypeCallEnd       = "call_end"
)

type CallRequested struct {
	Type        string    `json:"type"`
	CallID      string    `json:"call_id"`
	CallerID    string    `json:"caller_id"`
	OtomoID     string    `json:"otomo_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type CallAccepted struct {
	Type                string    `json:"type"`
	CallID              string    `json:"call_id"`
	OtomoID             string    `json:"otomo_id"`
	RatePerMinutePoints int64     `json:"rate_per_minute_points"`
	AcceptedAt          time.Time `json:"accepted_at"`
}

type CallRejected struct {
	Type    string `json:"type"`
	CallID  string `json:"call_id"`
	OtomoID string `json:"otomo_id"`
}

type CallConnected struct {
	Type        string    `json:"type"`
	CallID      string    `json:"call_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type CallTick struct {
	Type               string `json:"type"`
	CallID             string `json:"call_id"`
	TickNumber         int    `json:"tick_number"`
	ChargedPoints      int64  `json:"charged_points"`
	TotalChargedPoints int64  `json:"total_charged_points"`
	DurationSeconds    int    `json:"duration_seconds"`
	UserBalance        int64  `json:"user_balance"`
	Status             string `json:"status"`
}

type CallEnd struct {
	Type               string    `json:"type"`
	CallID             string    `json:"call_id"`
	UserID             string    `json:"user_id"`
	OtomoID            string    `json:"otomo_id"`
	EndedAt            time.Time `json:"ended_at"`
	Reason             string    `json:"reason"`
	DurationSeconds    int       `json:"duration_seconds"`
	TotalChargedPoints int64     `json:"total_charged_points"`
}
