package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/logger"
	"github.com/vitwit/splitpay/transfer"
	"github.com/vitwit/splitpay/types"
)

// Verifier defines the contract for checking a payment before it is signed.
type Verifier interface {
	Verify(ctx context.Context, client clients.ChainClient, req *types.PaymentRequest) (*types.VerificationResult, error)
	VerifyWithRetry(ctx context.Context, client clients.ChainClient, req *types.PaymentRequest, maxRetries uint64, retryDelay time.Duration) (*types.VerificationResult, error)
	QuickVerify(req *types.PaymentRequest) (*types.VerificationResult, error)
}

var _ Verifier = (*Service)(nil)

// AddressValidator rejects malformed account addresses.
type AddressValidator func(address string) error

// Service checks requests and payer funds before submission.
type Service struct {
	timeout         time.Duration
	validateAddress AddressValidator
	logger          logger.Logger
}

type Option func(*Service)

// WithAddressValidator checks payer, recipient and fee recipient with fn.
func WithAddressValidator(fn AddressValidator) Option {
	return func(s *Service) {
		s.validateAddress = fn
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a verification service
func NewService(timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		timeout: timeout,
		logger:  logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify validates req and checks that the payer holds enough of the asset to
// cover both legs. A shortfall returns an INSUFFICIENT_BALANCE error together
// with a result carrying the current balance.
func (s *Service) Verify(
	ctx context.Context,
	client clients.ChainClient,
	req *types.PaymentRequest,
) (*types.VerificationResult, error) {
	result, set, err := s.quickVerify(req)
	if err != nil {
		return result, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, _, err := client.Balance(ctx, req.Asset, req.Payer)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	result.Balance = transfer.FromAtomic(raw, req.Asset.Decimals)
	result.Required = transfer.FromAtomic(set.Total(), req.Asset.Decimals)

	if raw.Cmp(set.Total()) < 0 {
		err := &types.SplitpayError{
			Code: types.ErrInsufficientBalance,
			Message: fmt.Sprintf("insufficient %s balance: have %s, need %s",
				req.Asset, result.Balance, result.Required),
			Data: result.Balance,
		}
		result.Error = err.Message

		s.logger.Warn("insufficient balance", map[string]any{
			"payer":    req.Payer,
			"asset":    req.Asset.Symbol,
			"balance":  result.Balance.String(),
			"required": result.Required.String(),
		})
		return result, err
	}

	result.Valid = true
	return result, nil
}

// QuickVerify performs the checks that need no chain access.
func (s *Service) QuickVerify(req *types.PaymentRequest) (*types.VerificationResult, error) {
	result, _, err := s.quickVerify(req)
	if err != nil {
		return result, err
	}
	result.Valid = true
	return result, nil
}

func (s *Service) quickVerify(req *types.PaymentRequest) (*types.VerificationResult, *types.TransferSet, error) {
	result := &types.VerificationResult{}

	set, err := transfer.BuildTransferSet(req)
	if err != nil {
		result.Error = err.Error()
		return result, nil, err
	}
	result.Asset = req.Asset.Symbol
	result.Payer = req.Payer

	if s.validateAddress != nil {
		for _, addr := range []string{req.Payer, req.Recipient, req.FeeRecipient} {
			if err := s.validateAddress(addr); err != nil {
				result.Error = err.Error()
				return result, nil, err
			}
		}
	}

	return result, set, nil
}

// VerifyWithRetry retries Verify on network errors only.
func (s *Service) VerifyWithRetry(
	ctx context.Context,
	client clients.ChainClient,
	req *types.PaymentRequest,
	maxRetries uint64,
	retryDelay time.Duration,
) (*types.VerificationResult, error) {
	var result *types.VerificationResult

	op := func() error {
		res, err := s.Verify(ctx, client, req)
		result = res
		if err == nil {
			return nil
		}

		var se *types.SplitpayError
		if errors.As(err, &se) && se.Code != types.ErrNetworkError {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return result, err
	}
	return result, nil
}
