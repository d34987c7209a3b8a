package attempt

import "errors"

// Caller-visible conditions. None of these indicate corruption; the caller
// must change its request (resume instead of start, fix the payload, ...).
var (
	ErrQuotaExceeded          = errors.New("attempt quota exceeded")
	ErrAttemptInProgress      = errors.New("attempt already in progress")
	ErrNoActiveAttempt        = errors.New("no active attempt")
	ErrAlreadySubmitted       = errors.New("attempt already submitted")
	ErrInvalidAnswerPayload   = errors.New("invalid answer payload")
	ErrComponentMisconfigured = errors.New("component misconfigured")

	// ErrBusy surfaces lock-manager timeouts; the caller may retry as-is.
	ErrBusy = errors.New("busy")
)
