package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// Handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidTier   ErrorCode = "validation_invalid_tier"
	ErrCodeValidationInvalidPrice  ErrorCode = "validation_invalid_price"
	ErrCodeValidationNoEffectiveAt ErrorCode = "validation_missing_effective_date"
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"
	ErrCodeValidationSubscription  ErrorCode = "validation_invalid_subscription"
	ErrCodeValidationInvalidField  ErrorCode = "validation_invalid_field"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthShopMissing  ErrorCode = "auth_shop_missing"
	ErrCodeAuthAdminInvalid ErrorCode = "auth_admin_key_invalid"

	// Limits (403/429)
	ErrCodeLimitLiveDiscounts ErrorCode = "limit_live_discounts_exceeded"
	ErrCodeRateLimit          ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundShop  ErrorCode = "not_found_shop"
	ErrCodeNotFoundRoute ErrorCode = "not_found_route"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeInternalCorrupt     ErrorCode = "internal_corrupt_state"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case s == string(ErrCodeLimitLiveDiscounts):
		return http.StatusForbidden
	case s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
