// Package splitpay sends split payments on Polkadot Asset Hub: 99% of the
// amount to a recipient and 1% to a fee collector in one atomic batch, with
// finality tracking, fee reconciliation and receipts.
package splitpay

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/fees"
	"github.com/vitwit/splitpay/logger"
	"github.com/vitwit/splitpay/metrics"
	"github.com/vitwit/splitpay/settlement"
	"github.com/vitwit/splitpay/transfer"
	"github.com/vitwit/splitpay/types"
	"github.com/vitwit/splitpay/utils"
	"github.com/vitwit/splitpay/verification"
)

// Dialer opens a chain client for a configuration.
type Dialer func(ctx context.Context, config *types.Config) (clients.ChainClient, error)

// Splitpay is the main struct that provides all splitpay functionality
type Splitpay struct {
	config     *types.Config
	verifier   verification.Verifier
	tracker    settlement.Submitter
	reconciler *fees.Reconciler
	locks      *PayerLocks

	dial            Dialer
	customDial      bool
	validateAddress verification.AddressValidator
	consumers []clients.ReceiptConsumer
	timeout   time.Duration
	logger    logger.Logger
	metrics   metrics.Recorder
}

// New creates a Splitpay instance with the given configuration
func New(config *types.Config, opts ...Option) (*Splitpay, error) {
	if config == nil {
		return nil, &types.SplitpayError{Code: types.ErrConfigError, Message: "config is required"}
	}
	if err := utils.ValidateConfig(config); err != nil {
		return nil, err
	}

	s := &Splitpay{
		config:  config,
		locks:   NewPayerLocks(),
		dial:    dialSubstrate,
		timeout: config.DefaultTimeout,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	// Asset Hub only accepts SS58 accounts; custom clients may use their own
	// identifiers unless a validator is given.
	if s.validateAddress == nil && !s.customDial {
		s.validateAddress = utils.ValidateAddress
	}

	verifierOpts := []verification.Option{verification.WithLogger(s.logger)}
	if s.validateAddress != nil {
		verifierOpts = append(verifierOpts, verification.WithAddressValidator(s.validateAddress))
	}
	s.verifier = verification.NewService(s.timeout, verifierOpts...)
	s.tracker = settlement.NewTracker(
		s.timeout,
		settlement.WithLogger(s.logger),
		settlement.WithMetrics(s.metrics),
		settlement.WithExplorerURLTemplate(config.ExplorerURLTemplate),
		settlement.WithHeaderRetry(uint64(config.RetryCount), nil),
	)
	s.reconciler = fees.NewReconciler(s.logger)

	return s, nil
}

// NewWithDefaults creates a Splitpay instance for Asset Hub that sends the 1%
// share to feeRecipient.
func NewWithDefaults(feeRecipient string, opts ...Option) (*Splitpay, error) {
	config := types.DefaultConfig()
	config.FeeRecipient = feeRecipient
	return New(config, opts...)
}

func dialSubstrate(_ context.Context, config *types.Config) (clients.ChainClient, error) {
	return clients.NewSubstrateClient(config.NodeURL)
}

const verifyRetryDelay = 500 * time.Millisecond

// Config returns the configuration in use.
func (s *Splitpay) Config() *types.Config {
	return s.config
}

// Locks returns the per-payer locks shared by this instance.
func (s *Splitpay) Locks() *PayerLocks {
	return s.locks
}

// Connect opens a session for signer. The session owns the chain connection
// and must be closed by the caller.
func (s *Splitpay) Connect(ctx context.Context, signer clients.Signer) (*Session, error) {
	if signer == nil || signer.Address() == "" {
		return nil, types.NewMissingFieldError("signer")
	}

	client, err := s.dial(ctx, s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s.logger.Info("session opened", map[string]any{
		"network": client.GetNetwork(),
		"account": signer.Address(),
	})

	return &Session{
		Client:  client,
		Signer:  signer,
		Account: signer.Address(),
	}, nil
}

// Asset resolves a symbol against the configured registry.
func (s *Splitpay) Asset(symbol string) (types.Asset, error) {
	return types.LookupAsset(s.config.Registry(), symbol)
}

// NewPaymentRequest builds a request from the session's account to recipient,
// using the configured fee recipient and fee asset.
func (s *Splitpay) NewPaymentRequest(session *Session, asset string, amount decimal.Decimal, recipient string) (*types.PaymentRequest, error) {
	a, err := s.Asset(asset)
	if err != nil {
		return nil, err
	}

	req := &types.PaymentRequest{
		Asset:        a,
		Amount:       amount,
		Recipient:    recipient,
		FeeRecipient: s.config.FeeRecipient,
	}
	if session != nil {
		req.Payer = session.Account
	}

	if s.config.FeeAsset != "" {
		fa, err := s.Asset(s.config.FeeAsset)
		if err != nil {
			return nil, err
		}
		if !fa.Native {
			req.FeeAsset = &fa
		}
	}

	return req, nil
}

// QuickVerify checks req without touching the chain: amounts, addresses
// and the split itself.
func (s *Splitpay) QuickVerify(req *types.PaymentRequest) (*types.VerificationResult, error) {
	return s.verifier.QuickVerify(req)
}

// Split is a dry run of the amount splitter, in user units.
func (s *Splitpay) Split(asset string, amount decimal.Decimal) (recipient, fee decimal.Decimal, err error) {
	a, err := s.Asset(asset)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	r, f, err := transfer.SplitAmount(amount, a.Decimals)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return transfer.FromAtomic(r, a.Decimals), transfer.FromAtomic(f, a.Decimals), nil
}

// Balance returns the session account's free balance of asset in user units.
func (s *Splitpay) Balance(ctx context.Context, session *Session, asset string) (decimal.Decimal, error) {
	if err := session.Validate(); err != nil {
		return decimal.Zero, err
	}
	a, err := s.Asset(asset)
	if err != nil {
		return decimal.Zero, err
	}

	raw, _, err := session.Client.Balance(ctx, a, session.Account)
	if err != nil {
		return decimal.Zero, err
	}
	return transfer.FromAtomic(raw, a.Decimals), nil
}

// Pay verifies req, submits it through the session and follows it to
// finality. A signer cancellation returns a result in StateCancelled with a
// nil error.
func (s *Splitpay) Pay(
	ctx context.Context,
	session *Session,
	req *types.PaymentRequest,
	sink types.ProgressSink,
) (*types.PaymentResult, error) {
	if sink == nil {
		sink = func(types.ProgressUpdate) {}
	}

	if err := session.Validate(); err != nil {
		return nil, s.reject(sink, err)
	}
	if req != nil && req.Payer == "" {
		withPayer := *req
		withPayer.Payer = session.Account
		req = &withPayer
	}

	if _, err := s.verifier.VerifyWithRetry(ctx, session.Client, req, uint64(s.config.RetryCount), verifyRetryDelay); err != nil {
		return nil, s.reject(sink, err)
	}

	set, err := transfer.BuildTransferSet(req)
	if err != nil {
		return nil, s.reject(sink, err)
	}

	feeAsset := types.AssetDOT
	if set.FeeAsset != nil {
		feeAsset = *set.FeeAsset
	}

	pre, err := s.reconciler.Snapshot(ctx, session.Client, set.Payer, feeAsset)
	if err != nil {
		s.logger.Warn("pre-payment balance snapshot failed", map[string]any{"error": err.Error()})
	}

	outcome, err := s.tracker.Submit(ctx, session, set, sink)
	if err != nil {
		return nil, err
	}
	if outcome.State == types.StateCancelled {
		return &types.PaymentResult{State: types.StateCancelled}, nil
	}

	post, err := s.reconciler.Snapshot(ctx, session.Client, set.Payer, feeAsset)
	if err != nil {
		s.logger.Warn("post-payment balance snapshot failed", map[string]any{"error": err.Error()})
	}

	transferredFeeAsset, requestedNative := decimal.Zero, decimal.Zero
	paid := transfer.FromAtomic(set.Total(), set.Asset().Decimals)
	if set.Asset().Same(feeAsset) {
		transferredFeeAsset = paid
	}
	if set.Asset().Native {
		requestedNative = paid
	}

	report := s.reconciler.Reconcile(pre, post, transferredFeeAsset, requestedNative, feeAsset)
	if report.Band != types.FeeBandNone {
		s.logger.Info(report.Message, map[string]any{"band": string(report.Band)})
	}

	result := &types.PaymentResult{
		State:   outcome.State,
		Receipt: outcome.Receipt,
		Fee:     &report,
	}

	for _, c := range s.consumers {
		if err := c.Consume(ctx, outcome.Receipt); err != nil {
			s.logger.Warn("receipt consumer failed", map[string]any{
				"receiptId": outcome.Receipt.ID,
				"error":     err.Error(),
			})
		}
	}

	return result, nil
}

func (s *Splitpay) reject(sink types.ProgressSink, err error) error {
	sink(types.ProgressUpdate{State: types.ProgressError, Message: err.Error()})
	s.logger.Error("payment rejected", map[string]any{"error": err.Error()})
	return err
}

// Version information
const (
	Version = "1.0.0"
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":   Version,
		"settlement_layer":  "polkadot-asset-hub",
		"supported_assets":  []string{"DOT", "USDT", "BRLd"},
		"recipient_share":   "99%",
		"fee_share":         "1%",
		"default_fee_asset": types.AssetUSDT.Symbol,
	}
}
