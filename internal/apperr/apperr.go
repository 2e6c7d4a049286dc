// Package apperr defines structured, machine-readable errors surfaced to
// callers of the valuation engine.
package apperr

import "fmt"

// Machine-readable error codes.
const (
	CodeFinalBillingCompleted = "FINAL_BILLING_COMPLETED"
	CodeFutureYearLocked      = "FUTURE_YEAR_NOT_EDITABLE"
	CodeInvalidInput          = "INVALID_INPUT"
)

// Error carries a machine-readable code plus a human message. Write-path
// rejections (billing locks) include a redirect year pointing callers at
// the year they may edit instead.
type Error struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RedirectYear int    `json:"redirect_year,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FinalBillingCompleted builds the rejection for edits to a finally-billed
// year.
func FinalBillingCompleted(year, redirectYear int) *Error {
	return &Error{
		Code:         CodeFinalBillingCompleted,
		Message:      fmt.Sprintf("tax year %d has been finally billed and is locked for edits", year),
		RedirectYear: redirectYear,
	}
}

// FutureYearLocked builds the rejection for edits to a future tax year.
func FutureYearLocked(year, redirectYear int) *Error {
	return &Error{
		Code:         CodeFutureYearLocked,
		Message:      fmt.Sprintf("tax year %d has not opened for assessment", year),
		RedirectYear: redirectYear,
	}
}

// InvalidInput builds a structurally-invalid-input rejection.
func InvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}
