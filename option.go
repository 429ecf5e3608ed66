package splitpay

import (
	"context"
	"time"

	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/logger"
	"github.com/vitwit/splitpay/metrics"
	"github.com/vitwit/splitpay/types"
	"github.com/vitwit/splitpay/verification"
)

type Option func(*Splitpay)

func WithLogger(l logger.Logger) Option {
	return func(s *Splitpay) {
		s.logger = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Splitpay) {
		s.metrics = m
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Splitpay) {
		s.timeout = d
	}
}

// WithDialer replaces the Asset Hub connection used by Connect. Addresses are
// then only checked when WithAddressValidator is also given.
func WithDialer(d Dialer) Option {
	return func(s *Splitpay) {
		s.dial = d
		s.customDial = true
	}
}

// WithAddressValidator checks payer, recipient and fee recipient with fn
// before anything is signed.
func WithAddressValidator(fn verification.AddressValidator) Option {
	return func(s *Splitpay) {
		s.validateAddress = fn
	}
}

// WithClient makes every session use client.
func WithClient(client clients.ChainClient) Option {
	return WithDialer(func(context.Context, *types.Config) (clients.ChainClient, error) {
		return client, nil
	})
}

// WithReceiptConsumer hands every finalized receipt to c.
func WithReceiptConsumer(c clients.ReceiptConsumer) Option {
	return func(s *Splitpay) {
		s.consumers = append(s.consumers, c)
	}
}
