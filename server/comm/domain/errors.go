package domain

import "errors"

// Failure taxonomy surfaced by the message gateway. ErrStoreUnavailable is
// the only retryable one; everything else is terminal for the request.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuotaExceeded    = errors.New("message quota exceeded")
	ErrPolicyViolation  = errors.New("contact details, links, and usernames are not allowed")
	ErrPlanForbidden    = errors.New("not available on the current plan")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidOperation = errors.New("operation not supported for this message kind")
	ErrNotFound         = errors.New("message not found")
	ErrStoreUnavailable = errors.New("message store unavailable")
)
