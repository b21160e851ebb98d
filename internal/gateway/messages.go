package gateway

// Inbound operation types accepted over the signaling websocket.
const (
	OpCallRequest    = "call_request"
	OpCallAccept     = "call_accept"
	OpCallReject     = "call_reject"
	OpCallEndRequest = "call_end_request"
)

// Inbound is the envelope for every client frame. OtomoID is only meaningful
// for call_request.
type Inbound struct {
	Type    string `json:"type"`
	CallID  string `json:"call_id"`
	OtomoID string `json:"otomo_id,omitempty"`
}

// Ack confirms an accepted operation. State changes themselves are announced
// through broadcast events, not acks.
type Ack struct {
	Type   string `json:"type"`
	Op     string `json:"op"`
	CallID string `json:"call_id"`
}

// ErrorFrame reports a refused operation back to the sender only.
type ErrorFrame struct {
	Type    string `json:"type"`
	Op      string `json:"op"`
	CallID  string `json:"call_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ack(op, callID string) Ack {
	return Ack{Type: "ack", Op: op, CallID: callID}
}

func errorFrame(op, callID, code, message string) ErrorFrame {
	return ErrorFrame{Type: "error", Op: op, CallID: callID, Code: code, Message: message}
}
