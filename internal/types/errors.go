// Package types provides shared types, interfaces, and errors for the application.
package types

import (
	"errors"
	"strconv"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Interception errors
	ErrAttemptLimitExceeded = errors.New("captcha attempt limit exceeded")
	ErrUnsolvedChallenge    = errors.New("captcha challenge could not be solved")
	ErrResolverTimeout      = errors.New("captcha resolver timed out")
	ErrAmbiguousFields      = errors.New("challenge form has more than one visible input")
	ErrFieldsNotFound       = errors.New("challenge form has no visible input")
	ErrInvalidTarget        = errors.New("challenge form target is not a valid URL")
	ErrCanceled             = errors.New("interception canceled")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrURLRequired    = errors.New("url is required")

	// CAPTCHA solver errors
	ErrCaptchaSolverTimeout  = errors.New("captcha solver timed out")
	ErrCaptchaSolverRejected = errors.New("captcha task was rejected")
	ErrCaptchaSolverBalance  = errors.New("insufficient solver balance")
	ErrCaptchaUnsolvable     = errors.New("captcha reported unsolvable by provider")
	ErrCaptchaNoProviders    = errors.New("no captcha solver providers configured")
	ErrCaptchaImageFetch     = errors.New("failed to fetch captcha image")
)

// Reason is the machine-readable code attached to a rejected interception.
type Reason string

// Rejection reasons.
const (
	ReasonNone                 Reason = ""
	ReasonAttemptLimitExceeded Reason = "AttemptLimitExceeded"
	ReasonUnsolvedChallenge    Reason = "UnsolvedChallenge"
	ReasonAmbiguousFields      Reason = "AmbiguousFields"
	ReasonFieldsNotFound       Reason = "FieldsNotFound"
	ReasonInvalidTarget        Reason = "InvalidTarget"
	ReasonCanceled             Reason = "Canceled"
)

// RejectionError describes why a request chain cannot continue past a challenge.
// It implements the error interface and supports error unwrapping.
type RejectionError struct {
	Reason  Reason // Distinguishing reason code
	URL     string // The page URL that carried the challenge
	Message string // Human-readable error message
	Err     error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RejectionError) Unwrap() error {
	return e.Err
}

// NewAttemptLimitError creates an error for a chain that reached its attempt bound.
func NewAttemptLimitError(url string, attempts int) *RejectionError {
	return &RejectionError{
		Reason:  ReasonAttemptLimitExceeded,
		URL:     url,
		Message: "attempt limit exceeded: " + strconv.Itoa(attempts) + " resubmissions already made",
		Err:     ErrAttemptLimitExceeded,
	}
}

// NewUnsolvedError creates an error for a challenge the resolver did not answer.
// err may be nil when the resolver simply had no solution.
func NewUnsolvedError(url string, err error) *RejectionError {
	msg := "unsolved challenge"
	if err != nil {
		msg += ": " + err.Error()
		err = errors.Join(ErrUnsolvedChallenge, err)
	} else {
		err = ErrUnsolvedChallenge
	}
	return &RejectionError{
		Reason:  ReasonUnsolvedChallenge,
		URL:     url,
		Message: msg,
		Err:     err,
	}
}

// NewFieldsError creates an error for a form whose solution field cannot be determined.
func NewFieldsError(url string, err error) *RejectionError {
	reason := ReasonFieldsNotFound
	if errors.Is(err, ErrAmbiguousFields) {
		reason = ReasonAmbiguousFields
	}
	return &RejectionError{
		Reason:  reason,
		URL:     url,
		Message: "cannot determine solution field: " + err.Error(),
		Err:     err,
	}
}

// NewInvalidTargetError creates an error for an unusable form target.
func NewInvalidTargetError(url string, err error) *RejectionError {
	return &RejectionError{
		Reason:  ReasonInvalidTarget,
		URL:     url,
		Message: "cannot build resubmission: " + err.Error(),
		Err:     err,
	}
}

// NewCanceledError creates an error for a cycle abandoned because its context ended.
func NewCanceledError(url string, cause error) *RejectionError {
	return &RejectionError{
		Reason:  ReasonCanceled,
		URL:     url,
		Message: "interception canceled: " + cause.Error(),
		Err:     errors.Join(ErrCanceled, cause),
	}
}

// CaptchaError provides detailed information about CAPTCHA solving failures.
// It implements the error interface and supports error unwrapping.
type CaptchaError struct {
	Provider string // Provider name: "2captcha", "capsolver"
	TaskID   string // Task ID from the provider (for debugging)
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *CaptchaError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CaptchaError) Unwrap() error {
	return e.Err
}

// NewCaptchaTimeoutError creates an error for CAPTCHA solve timeout.
func NewCaptchaTimeoutError(provider, taskID string) *CaptchaError {
	return &CaptchaError{
		Provider: provider,
		TaskID:   taskID,
		Code:     "timeout",
		Message:  "CAPTCHA solving timed out waiting for solution from " + provider,
		Err:      ErrCaptchaSolverTimeout,
	}
}

// NewCaptchaRejectedError creates an error when CAPTCHA task is rejected.
func NewCaptchaRejectedError(provider, code, reason string) *CaptchaError {
	return &CaptchaError{
		Provider: provider,
		Code:     code,
		Message:  "CAPTCHA task rejected by " + provider + ": " + reason,
		Err:      ErrCaptchaSolverRejected,
	}
}

// NewCaptchaUnsolvableError creates an error for an image the provider's workers could not read.
func NewCaptchaUnsolvableError(provider, code string) *CaptchaError {
	return &CaptchaError{
		Provider: provider,
		Code:     code,
		Message:  "CAPTCHA could not be read by " + provider,
		Err:      ErrCaptchaUnsolvable,
	}
}

// NewCaptchaBalanceError creates an error for insufficient balance.
func NewCaptchaBalanceError(provider string) *CaptchaError {
	return &CaptchaError{
		Provider: provider,
		Code:     "insufficient_balance",
		Message:  "Insufficient balance in " + provider + " account",
		Err:      ErrCaptchaSolverBalance,
	}
}
