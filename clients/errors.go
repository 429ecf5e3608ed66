package clients

import (
	"context"
	"errors"
	"strings"

	"github.com/vitwit/splitpay/types"
)

// Markers wallet extensions put in the error text when the user closes the
// signing prompt. Only consulted when a signer does not return
// types.ErrSignerCancelled.
var cancellationMarkers = []string{
	"cancelled",
	"canceled",
	"rejected by user",
	"user rejected",
}

// IsCancellation reports whether err means the user declined to sign.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrSignerCancelled) {
		return true
	}
	// context cancellation is ours, not the user's
	if errors.Is(err, context.Canceled) {
		return false
	}
	// a failed RPC never carries the wallet's answer
	var se *types.SplitpayError
	if errors.As(err, &se) && se.Code == types.ErrNetworkError {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range cancellationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
