package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeInvalidPhone    = "ERR_VALIDATION_PHONE"
	ErrCodeInvalidChannel  = "ERR_VALIDATION_CHANNEL"
	ErrCodeInvalidDecision = "ERR_VALIDATION_DECISION"
	ErrCodeInvalidTemplate = "ERR_VALIDATION_TEMPLATE"
	ErrCodeEmptyEdit       = "ERR_VALIDATION_EMPTY_EDIT"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller may not act on the resource
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Confirmation link error codes
const (
	ErrCodeLinkInvalid  = "ERR_LINK_INVALID"
	ErrCodeLinkMismatch = "ERR_LINK_MISMATCH"
	// ErrCodeLinkExpired maps to 410 so the page can say "ask the store"
	ErrCodeLinkExpired = "ERR_LINK_EXPIRED"
)

// Webhook error codes
const (
	ErrCodeWebhookSecret        = "ERR_WEBHOOK_SECRET"
	ErrCodeWebhookSignature     = "ERR_WEBHOOK_SIGNATURE"
	ErrCodeWebhookNotConfigured = "ERR_WEBHOOK_NOT_CONFIGURED"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
	ErrCodeGone          = "ERR_GONE"
)

// Business rule error codes
const (
	ErrCodeInvalidState     = "ERR_INVALID_STATE"
	ErrCodeBusinessRule     = "ERR_BUSINESS_RULE"
	ErrCodeChannelDisabled  = "ERR_CHANNEL_DISABLED"
	ErrCodeUnsupportedKind  = "ERR_UNSUPPORTED_KIND"
	ErrCodeMissingIdentity  = "ERR_MISSING_IDENTITY"
	ErrCodeLinkNotRequired  = "ERR_LINK_NOT_REQUIRED"
	ErrCodePreconnectClosed = "ERR_PRECONNECT_CLOSED"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Capacity error codes
const (
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodeMaxConnections  = "ERR_MAX_CONNECTIONS"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 422 Unprocessable Entity
	ErrCodeValidation:      http.StatusUnprocessableEntity,
	ErrCodeInvalidPhone:    http.StatusUnprocessableEntity,
	ErrCodeInvalidChannel:  http.StatusUnprocessableEntity,
	ErrCodeInvalidDecision: http.StatusUnprocessableEntity,
	ErrCodeInvalidTemplate: http.StatusUnprocessableEntity,
	ErrCodeEmptyEdit:       http.StatusUnprocessableEntity,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// Confirmation links
	ErrCodeLinkInvalid:  http.StatusForbidden,
	ErrCodeLinkMismatch: http.StatusForbidden,
	ErrCodeLinkExpired:  http.StatusGone,

	// Webhooks
	ErrCodeWebhookSecret:        http.StatusUnauthorized,
	ErrCodeWebhookSignature:     http.StatusForbidden,
	ErrCodeWebhookNotConfigured: http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeGone:          http.StatusGone,

	// Business rule errors
	ErrCodeInvalidState:     http.StatusConflict,
	ErrCodeBusinessRule:     http.StatusUnprocessableEntity,
	ErrCodeChannelDisabled:  http.StatusUnprocessableEntity,
	ErrCodeUnsupportedKind:  http.StatusUnprocessableEntity,
	ErrCodeMissingIdentity:  http.StatusUnprocessableEntity,
	ErrCodeLinkNotRequired:  http.StatusUnprocessableEntity,
	ErrCodePreconnectClosed: http.StatusGone,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeMaxConnections:  http.StatusServiceUnavailable,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps shared.DomainError codes raised by the
// application layer to API error codes.
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"ALREADY_EXISTS":         ErrCodeAlreadyExists,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"INVALID_STATE":          ErrCodeInvalidState,
	"UNAUTHORIZED":           ErrCodeUnauthorized,
	"FORBIDDEN":              ErrCodeForbidden,
	"GONE":                   ErrCodeGone,
	"VALIDATION_FAILED":      ErrCodeValidation,
	"BAD_REQUEST":            ErrCodeBadRequest,
	"INTERNAL_ERROR":         ErrCodeInternal,
	"INVALID_PHONE":          ErrCodeInvalidPhone,
	"INVALID_CHANNEL":        ErrCodeInvalidChannel,
	"INVALID_DECISION":       ErrCodeInvalidDecision,
	"INVALID_TEMPLATE_KEY":   ErrCodeInvalidTemplate,
	"INVALID_DELAY":          ErrCodeValidation,
	"INVALID_NAME":           ErrCodeValidation,
	"INVALID_QUANTITY":       ErrCodeValidation,
	"INVALID_SUBSCRIBER":     ErrCodeValidation,
	"EMPTY_EDIT":             ErrCodeEmptyEdit,
	"CHANNEL_DISABLED":       ErrCodeChannelDisabled,
	"UNSUPPORTED_KIND":       ErrCodeUnsupportedKind,
	"MISSING_IDENTITY":       ErrCodeMissingIdentity,
	"LINK_NOT_REQUIRED":      ErrCodeLinkNotRequired,
	"TOKEN_EXPIRED":          ErrCodePreconnectClosed,
	"TOKEN_USED":             ErrCodePreconnectClosed,
	"LINK_INVALID":           ErrCodeLinkInvalid,
	"LINK_TENANT_MISMATCH":   ErrCodeLinkMismatch,
	"LINK_ORDER_MISMATCH":    ErrCodeLinkMismatch,
	"LINK_EXPIRED":           ErrCodeLinkExpired,
	"UNKNOWN_WEBHOOK_SECRET": ErrCodeWebhookSecret,
	"UNKNOWN_BOT":            ErrCodeWebhookSecret,
	"INVALID_SIGNATURE":      ErrCodeWebhookSignature,
	"VERIFY_TOKEN_MISMATCH":  ErrCodeWebhookSignature,
	"WEBHOOK_NOT_CONFIGURED": ErrCodeWebhookNotConfigured,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format or unknown pass through unchanged.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
