package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, client-visible error identifier.
type Code string

const (
	CodeInsufficientFunds      Code = "insufficient_funds"
	CodeAlreadyOwned           Code = "already_owned"
	CodeRecipientAlreadyOwns   Code = "recipient_already_owns"
	CodeSelfTransfer           Code = "self_transfer"
	CodeSelfReport             Code = "self_report"
	CodeInvalidAmount          Code = "invalid_amount"
	CodePermissionDenied       Code = "permission_denied"
	CodeModeratorLimitExceeded Code = "moderator_limit_exceeded"
	CodeInvalidColumn          Code = "invalid_column"
	CodeCannotBanAdmin         Code = "cannot_ban_admin"
	CodeNotFound               Code = "not_found"
	CodeVersionMismatch        Code = "version_mismatch"
	CodeAccountBanned          Code = "account_banned"
	CodeInvalidState           Code = "invalid_state"
	CodeAlreadyExists          Code = "already_exists"
	CodeRateLimited            Code = "rate_limited"
	CodeInvalidInput           Code = "invalid_input"
	CodeReceiptInvalid         Code = "receipt_invalid"
	CodeInternal               Code = "internal"
)

// AppError is an expected, recoverable outcome. Anything that is not an AppError is
// treated as an unexpected store or transport failure.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func NewAppError(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches any AppError carrying the same code, so callers can compare against the
// sentinels below with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInsufficientFunds      = &AppError{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrAlreadyOwned           = &AppError{Code: CodeAlreadyOwned, Message: "item already owned"}
	ErrRecipientAlreadyOwns   = &AppError{Code: CodeRecipientAlreadyOwns, Message: "recipient already owns item"}
	ErrSelfTransfer           = &AppError{Code: CodeSelfTransfer, Message: "sender and recipient are the same player"}
	ErrSelfReport             = &AppError{Code: CodeSelfReport, Message: "players cannot report themselves"}
	ErrInvalidAmount          = &AppError{Code: CodeInvalidAmount, Message: "invalid amount"}
	ErrPermissionDenied       = &AppError{Code: CodePermissionDenied, Message: "permission denied"}
	ErrModeratorLimitExceeded = &AppError{Code: CodeModeratorLimitExceeded, Message: "moderator limit exceeded"}
	ErrInvalidColumn          = &AppError{Code: CodeInvalidColumn, Message: "column is not mutable"}
	ErrCannotBanAdmin         = &AppError{Code: CodeCannotBanAdmin, Message: "only owners can ban admins"}
	ErrNotFound               = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrVersionMismatch        = &AppError{Code: CodeVersionMismatch, Message: "gameplay version mismatch"}
	ErrAccountBanned          = &AppError{Code: CodeAccountBanned, Message: "account is banned"}
	ErrInvalidState           = &AppError{Code: CodeInvalidState, Message: "invalid state transition"}
	ErrAlreadyExists          = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrRateLimited            = &AppError{Code: CodeRateLimited, Message: "too many requests"}
	ErrInvalidInput           = &AppError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrReceiptInvalid         = &AppError{Code: CodeReceiptInvalid, Message: "receipt rejected"}
)

// CodeOf returns the code of the first AppError in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status the HTTP layer should answer with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied, CodeCannotBanAdmin, CodeAccountBanned:
		return http.StatusForbidden
	case CodeAlreadyOwned, CodeRecipientAlreadyOwns, CodeAlreadyExists, CodeInvalidState, CodeVersionMismatch:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInsufficientFunds, CodeModeratorLimitExceeded:
		return http.StatusUnprocessableEntity
	case CodeSelfTransfer, CodeSelfReport, CodeInvalidAmount, CodeInvalidColumn, CodeInvalidInput, CodeReceiptInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
