package domain

import (
	"errors"
	"fmt"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// AsAppError returns the first *AppError in err's chain, or nil.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr := AsAppError(err)
	return appErr != nil && appErr.Code == code
}

// Error codes surfaced to API callers.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
	CodeNotPending           = "NOT_PENDING"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInsufficientFunds    = "INSUFFICIENT_FUNDS"
	CodeExternalProvider     = "EXTERNAL_PROVIDER_ERROR"
	CodePartialCredit        = "PARTIAL_CREDIT"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_ERROR"
)

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

// ErrDuplicateTransaction reports a second pending request for the same
// external transaction id and method.
func ErrDuplicateTransaction(externalTxID string, method PaymentMethod) *AppError {
	return &AppError{
		Code:    CodeDuplicateTransaction,
		Message: fmt.Sprintf("a pending %s request already uses transaction id %s", method, externalTxID),
		Status:  409,
	}
}

// ErrNotPending reports a transition attempted from the wrong request state.
// The current state is named so the caller can re-fetch.
func ErrNotPending(requestID string, current RequestStatus) *AppError {
	return &AppError{
		Code:    CodeNotPending,
		Message: fmt.Sprintf("payment request %s is %s", requestID, current),
		Status:  409,
	}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: CodeInsufficientFunds, Message: "insufficient funds", Status: 400}
}

func ErrExternalProvider(provider string, cause error) *AppError {
	return &AppError{Code: CodeExternalProvider, Message: fmt.Sprintf("%s request failed", provider), Status: 502, Cause: cause}
}

// ErrPartialCredit reports a multi-wallet grant where only some legs applied.
func ErrPartialCredit(msg string, cause error) *AppError {
	return &AppError{Code: CodePartialCredit, Message: msg, Status: 500, Cause: cause}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
