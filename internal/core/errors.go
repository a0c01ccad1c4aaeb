package core

// Error codes for domain errors surfaced to sessions.
const (
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeIdentityMismatch = "identity_mismatch"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeSessionReplaced  = "session_replaced"
	ErrCodeInvalidMessage   = "invalid_message"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
