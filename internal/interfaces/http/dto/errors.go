package dto

import "net/http"

// Error code constants, format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
)

// Business rule error codes
const (
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
)

// Write protocol error codes. A stale version precondition maps to 412 so
// callers can tell "refetch and retry" apart from ordinary conflicts; an
// idempotency key reused with a different payload maps to 409.
const (
	ErrCodePreconditionFailed    = "ERR_PRECONDITION_FAILED"
	ErrCodeIdempotencyConflict   = "ERR_IDEMPOTENCY_CONFLICT"
	ErrCodeMissingIdempotencyKey = "ERR_MISSING_IDEMPOTENCY_KEY"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeBusinessRule: http.StatusUnprocessableEntity,

	ErrCodePreconditionFailed:    http.StatusPreconditionFailed,
	ErrCodeIdempotencyConflict:   http.StatusConflict,
	ErrCodeMissingIdempotencyKey: http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status code for an error code, falling
// back to 500 for unknown codes.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                  ErrCodeNotFound,
	"INVALID_INPUT":              ErrCodeInvalidInput,
	"INVALID_STATE":              ErrCodeInvalidState,
	"UNAUTHORIZED":               ErrCodeUnauthorized,
	"FORBIDDEN":                  ErrCodeForbidden,
	"INTERNAL_ERROR":             ErrCodeInternal,
	"PRECONDITION_FAILED":        ErrCodePreconditionFailed,
	"IDEMPOTENCY_CONFLICT":       ErrCodeIdempotencyConflict,
	"MISSING_IDEMPOTENCY_KEY":    ErrCodeMissingIdempotencyKey,
	"ACTIVE_BASELINE_EXISTS":     ErrCodeConflict,
	"INVALID_MONTH":              ErrCodeValidation,
	"INVALID_SIMULATION":         ErrCodeValidation,
	"INVALID_COMMENT":            ErrCodeValidation,
	"IDEMPOTENCY_REPLAY_CORRUPT": ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format. Codes
// already in the API format or unknown pass through unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
