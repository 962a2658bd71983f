package errors

import goerrors "errors"

// ErrorCode represents a machine-readable error identifier for this service's error kinds.
type ErrorCode string

const (
	ErrCodeUnauthorized          ErrorCode = "unauthorized"
	ErrCodeBadRequest            ErrorCode = "bad_request"
	ErrCodeQuotaExceeded         ErrorCode = "quota_exceeded"
	ErrCodeRateLimited           ErrorCode = "rate_limited"
	ErrCodeLedgerUnavailable     ErrorCode = "ledger_unavailable"
	ErrCodeLedgerTimeout         ErrorCode = "ledger_timeout"
	ErrCodePersistenceError      ErrorCode = "persistence_error"
	ErrCodeWebhookDeliveryFailed ErrorCode = "webhook_delivery_failed"
	ErrCodeInternalError         ErrorCode = "internal_error"
)

// IsRetryable returns whether an error code represents a transient condition
// worth retrying, as opposed to a validation or authorization failure.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeLedgerUnavailable, ErrCodeLedgerTimeout, ErrCodeWebhookDeliveryFailed:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status code fixed by the external interface
// contract for each error kind.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeUnauthorized:
		return 401
	case ErrCodeBadRequest:
		return 400
	case ErrCodeQuotaExceeded:
		return 403
	case ErrCodeRateLimited:
		return 429
	case ErrCodeLedgerUnavailable:
		return 503
	case ErrCodeLedgerTimeout:
		return 504
	case ErrCodePersistenceError:
		return 500
	default:
		return 500
	}
}

// ServiceError is a typed error carrying the error code that determines the
// HTTP response written at the boundary. Every outbound I/O failure is
// wrapped into one of these at its boundary so the orchestrator can map it
// to a status without re-deriving the kind from the underlying error.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// New constructs a ServiceError with the given code and message.
func New(code ErrorCode, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// Wrap constructs a ServiceError that carries an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the ErrorCode from err, defaulting to ErrCodeInternalError
// for errors that were never classified at a boundary.
func CodeOf(err error) ErrorCode {
	var svcErr *ServiceError
	if goerrors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ErrCodeInternalError
}
