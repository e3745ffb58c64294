// Package failure defines the typed outcomes returned by the monetization engine.
//
// Every expected outcome (insufficient coins, a replayed receipt, an ad that was not
// watched long enough) is a *Error carrying a stable Code and a Message that is safe
// to show to the player. Infrastructure problems are wrapped with Storage so callers
// can tell "retry later" apart from "the request was understood and refused".
package failure

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeInvalidTracking      Code = "INVALID_TRACKING"
	CodePlaybackIncomplete   Code = "PLAYBACK_INCOMPLETE"
	CodePlaybackTooShort     Code = "PLAYBACK_TOO_SHORT"
	CodeProviderRejected     Code = "PROVIDER_REJECTED"
	CodeProviderTimeout      Code = "PROVIDER_TIMEOUT"
	CodeUnknownPackage       Code = "UNKNOWN_PACKAGE"
	CodeReceiptInvalid       Code = "RECEIPT_INVALID"
	CodeDuplicateTransaction Code = "DUPLICATE_TRANSACTION"
	CodeNotPaidContent       Code = "NOT_PAID_CONTENT"
	CodeNotAdContent         Code = "NOT_AD_CONTENT"
	CodeNoAdAvailable        Code = "NO_AD_AVAILABLE"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeStorage              Code = "STORAGE_FAILURE"
)

var (
	ErrValidation           = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds, Message: "insufficient coins"}
	ErrInvalidTracking      = &Error{Code: CodeInvalidTracking, Message: "invalid or expired ad tracking id"}
	ErrPlaybackIncomplete   = &Error{Code: CodePlaybackIncomplete, Message: "ad was not played to completion"}
	ErrPlaybackTooShort     = &Error{Code: CodePlaybackTooShort, Message: "ad not watched long enough"}
	ErrProviderRejected     = &Error{Code: CodeProviderRejected, Message: "ad provider rejected the view"}
	ErrProviderTimeout      = &Error{Code: CodeProviderTimeout, Message: "provider did not answer in time"}
	ErrUnknownPackage       = &Error{Code: CodeUnknownPackage, Message: "unknown coin package"}
	ErrReceiptInvalid       = &Error{Code: CodeReceiptInvalid, Message: "purchase receipt is not valid"}
	ErrDuplicateTransaction = &Error{Code: CodeDuplicateTransaction, Message: "transaction already processed"}
	ErrNotPaidContent       = &Error{Code: CodeNotPaidContent, Message: "content is not unlockable with coins"}
	ErrNotAdContent         = &Error{Code: CodeNotAdContent, Message: "content is not unlockable with ads"}
	ErrNoAdAvailable        = &Error{Code: CodeNoAdAvailable, Message: "no ad available"}
	ErrRateLimited          = &Error{Code: CodeRateLimited, Message: "too many requests"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrStorage              = &Error{Code: CodeStorage, Message: "storage temporarily unavailable, please retry"}
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match on Code so errors.Is(err, failure.ErrInsufficientFunds)
// works for any message variant.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Storage wraps an infrastructure error. The message never includes err's text.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Code: CodeStorage, Message: ErrStorage.Message, Err: err}
}

func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Reason returns the player-facing message for err, or a generic text for
// anything that is not a typed failure.
func Reason(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "internal error"
}

func IsStorage(err error) bool {
	return CodeOf(err) == CodeStorage
}
