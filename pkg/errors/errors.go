package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Account lifecycle gates surfaced with machine-readable codes so
	// clients can branch without string matching.
	ErrInactiveAccount       = New("ACCOUNT_INACTIVE", http.StatusUnauthorized, "account is deactivated")
	ErrVerificationRequired  = New("VERIFICATION_REQUIRED", http.StatusUnauthorized, "email verification required")
	ErrApprovalPending       = New("APPROVAL_PENDING", http.StatusForbidden, "account approval is pending")
	ErrApprovalRejected      = New("APPROVAL_REJECTED", http.StatusForbidden, "account approval was rejected")
	ErrAlreadyVerified       = New("ALREADY_VERIFIED", http.StatusBadRequest, "email is already verified")
	ErrTokenExpired          = New("TOKEN_EXPIRED", http.StatusBadRequest, "verification token has expired")
	ErrInvalidToken          = New("INVALID_TOKEN", http.StatusBadRequest, "invalid verification token")
	ErrDuplicateApplication  = New("DUPLICATE_APPLICATION", http.StatusBadRequest, "you have already applied to this opportunity")
	ErrOpportunityClosed     = New("OPPORTUNITY_CLOSED", http.StatusBadRequest, "opportunity is not open for applications")
	ErrInvalidStatus         = New("INVALID_STATUS", http.StatusBadRequest, "invalid status")
	ErrNoChanges             = New("NO_CHANGES", http.StatusBadRequest, "no changes provided")
	ErrMailDelivery          = New("MAIL_DELIVERY_FAILED", http.StatusInternalServerError, "failed to send email")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
