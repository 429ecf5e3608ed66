package types

import (
	"errors"
	"fmt"
	"strings"
)

// SplitpayError is the typed error returned across package boundaries.
type SplitpayError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	err error
}

func (e *SplitpayError) Error() string {
	return e.Message
}

func (e *SplitpayError) Unwrap() error {
	return e.err
}

// Is matches on Code so callers can use errors.Is with the sentinels below.
func (e *SplitpayError) Is(target error) bool {
	t, ok := target.(*SplitpayError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Common error codes
const (
	ErrInvalidAmount       = "INVALID_AMOUNT"
	ErrMissingField        = "MISSING_FIELD"
	ErrDispatchFailure     = "DISPATCH_FAILURE"
	ErrSubmissionFailure   = "SUBMISSION_FAILURE"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrUnsupportedAsset    = "UNSUPPORTED_ASSET"
	ErrConfigError         = "CONFIG_ERROR"
	ErrNetworkError        = "NETWORK_ERROR"
)

// Sentinels for errors.Is. They carry only a code.
var (
	InvalidAmount       = &SplitpayError{Code: ErrInvalidAmount}
	MissingField        = &SplitpayError{Code: ErrMissingField}
	DispatchFailure     = &SplitpayError{Code: ErrDispatchFailure}
	SubmissionFailure   = &SplitpayError{Code: ErrSubmissionFailure}
	InsufficientBalance = &SplitpayError{Code: ErrInsufficientBalance}
	UnsupportedAsset    = &SplitpayError{Code: ErrUnsupportedAsset}
)

// ErrSignerCancelled is the structured cancellation signal a signer returns
// when the user declines to sign. It is not a failure.
var ErrSignerCancelled = errors.New("signer: request cancelled by user")

func NewInvalidAmountError(format string, args ...interface{}) *SplitpayError {
	return &SplitpayError{
		Code:    ErrInvalidAmount,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewMissingFieldError(fields ...string) *SplitpayError {
	return &SplitpayError{
		Code:    ErrMissingField,
		Message: fmt.Sprintf("missing required field(s): %s", strings.Join(fields, ", ")),
		Data:    fields,
	}
}

// NewDispatchFailure builds the error for an extrinsic the runtime rejected.
func NewDispatchFailure(asset string, de *DispatchError) *SplitpayError {
	msg := fmt.Sprintf("%s payment rejected by runtime", asset)
	if de != nil {
		switch {
		case de.Section != "" || de.Name != "":
			msg = fmt.Sprintf("%s payment failed (%s.%s)", asset, de.Section, de.Name)
			if len(de.Docs) > 0 {
				msg += ": " + strings.Join(de.Docs, " ")
			}
		case de.Raw != "":
			msg = fmt.Sprintf("%s payment failed: %s", asset, de.Raw)
		}
	}
	return &SplitpayError{
		Code:    ErrDispatchFailure,
		Message: msg,
		Data:    de,
	}
}

// NewSubmissionFailure wraps a network or signing level error.
func NewSubmissionFailure(err error) *SplitpayError {
	return &SplitpayError{
		Code:    ErrSubmissionFailure,
		Message: fmt.Sprintf("submission failed: %v", err),
		err:     err,
	}
}

// NewNetworkError wraps a failed chain query or RPC call. The cause stays
// reachable through errors.Is and errors.As.
func NewNetworkError(op string, err error) *SplitpayError {
	return &SplitpayError{
		Code:    ErrNetworkError,
		Message: fmt.Sprintf("%s: %v", op, err),
		Data:    err.Error(),
		err:     err,
	}
}

// DispatchErrorOf extracts the decoded dispatch error from err, if any.
func DispatchErrorOf(err error) (*DispatchError, bool) {
	var se *SplitpayError
	if !errors.As(err, &se) || se.Code != ErrDispatchFailure {
		return nil, false
	}
	de, ok := se.Data.(*DispatchError)
	return de, ok
}
