package call

import "errors"

// Error is a precondition/state error with a stable machine-readable code.
// Codes are part of the gateway protocol; do not rename.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

var (
	ErrCallNotFound    = &Error{Code: "CALL_NOT_FOUND", Message: "call not found"}
	ErrCallerNotFound  = &Error{Code: "CALLER_NOT_FOUND", Message: "caller not found"}
	ErrOtomoNotFound   = &Error{Code: "OTOMO_NOT_FOUND", Message: "otomo not found"}
	ErrOtomoOffline    = &Error{Code: "OTOMO_OFFLINE", Message: "otomo is offline"}
	ErrOtomoBusy       = &Error{Code: "OTOMO_BUSY", Message: "otomo is busy"}
	ErrCallerBusy      = &Error{Code: "CALLER_BUSY", Message: "caller already has a call in progress"}
	ErrDuplicateCallID = &Error{Code: "DUPLICATE_CALL_ID", Message: "call id already exists"}
	ErrForbidden       = &Error{Code: "FORBIDDEN", Message: "not a participant of this call"}
	ErrInvalidState    = &Error{Code: "INVALID_STATE", Message: "call is not in an eligible state"}
)

// CodeOf extracts the stable code from err, or "" when err carries none.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
