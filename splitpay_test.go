package splitpay

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/types"
)

const (
	payer     = "payer"
	recipient = "recipient"
	collector = "collector"
)

type receiptCollector struct {
	mu       sync.Mutex
	receipts []*types.Receipt
	err      error
}

func (c *receiptCollector) Consume(_ context.Context, r *types.Receipt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts = append(c.receipts, r)
	return c.err
}

func setup(t *testing.T, opts ...Option) (*Splitpay, *clients.MemoryClient, *Session) {
	t.Helper()

	chain := clients.NewMemoryClient(
		clients.WithMemoryFees(big.NewInt(150_000_000), big.NewInt(1_500_000)),
		clients.WithMemoryStartBlock(123455),
	)
	chain.Fund(types.AssetDOT, payer, big.NewInt(50_000_000_000))
	chain.Fund(types.AssetUSDT, payer, big.NewInt(100_000_000))
	chain.Fund(types.AssetBRLd, payer, big.NewInt(20_000_000_000_000))

	sp, err := NewWithDefaults(collector, append([]Option{WithClient(chain), WithTimeout(5 * time.Second)}, opts...)...)
	require.NoError(t, err)

	session, err := sp.Connect(context.Background(), &clients.MemorySigner{Account: payer})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	return sp, chain, session
}

func balance(t *testing.T, chain *clients.MemoryClient, asset types.Asset, account string) string {
	t.Helper()
	b, _, err := chain.Balance(context.Background(), asset, account)
	require.NoError(t, err)
	return b.String()
}

func TestPay_BRLdWithUSDTFee(t *testing.T) {
	rc := &receiptCollector{}
	sp, chain, session := setup(t, WithReceiptConsumer(rc))

	req, err := sp.NewPaymentRequest(session, "BRLd", decimal.NewFromInt(1000), recipient)
	require.NoError(t, err)

	var states []types.ProgressState
	result, err := sp.Pay(context.Background(), session, req, func(u types.ProgressUpdate) {
		states = append(states, u.State)
	})
	require.NoError(t, err)

	assert.Equal(t, types.StateFinalized, result.State)
	assert.Equal(t, []types.ProgressState{types.ProgressProcessing, types.ProgressInBlock, types.ProgressFinalized}, states)

	assert.Equal(t, "9900000000000", balance(t, chain, types.AssetBRLd, recipient))
	assert.Equal(t, "100000000000", balance(t, chain, types.AssetBRLd, collector))

	require.NotNil(t, result.Fee)
	assert.Equal(t, types.FeeBandFeeAsset, result.Fee.Band)
	assert.Equal(t, "Network fee: 1.5000 USDT", result.Fee.Message)

	require.NotNil(t, result.Receipt)
	assert.Equal(t,
		"Amount in BRLd: 1000,00. Payment finalized in block: 123456, https://assethub-polkadot.subscan.io/extrinsic/123456-2",
		result.Receipt.Message)

	require.Len(t, rc.receipts, 1)
	assert.Same(t, result.Receipt, rc.receipts[0])
}

func TestPay_USDTIsAlsoFeeAsset(t *testing.T) {
	sp, _, session := setup(t)

	req, err := sp.NewPaymentRequest(session, "USDT", decimal.NewFromInt(10), recipient)
	require.NoError(t, err)

	result, err := sp.Pay(context.Background(), session, req, nil)
	require.NoError(t, err)
	assert.Equal(t, types.FeeBandFeeAsset, result.Fee.Band)
	assert.True(t, decimal.RequireFromString("1.5").Equal(result.Fee.Amount), result.Fee.Amount.String())
}

func TestPay_NativeFee(t *testing.T) {
	sp, _, session := setup(t)
	sp.Config().FeeAsset = "DOT"

	req, err := sp.NewPaymentRequest(session, "DOT", decimal.NewFromInt(2), recipient)
	require.NoError(t, err)
	assert.Nil(t, req.FeeAsset)

	result, err := sp.Pay(context.Background(), session, req, nil)
	require.NoError(t, err)
	assert.Equal(t, types.FeeBandNative, result.Fee.Band)
	assert.Equal(t, "Network fee: 0.0150 DOT", result.Fee.Message)
}

func TestPay_ReceiptConsumerFailureIsNotFatal(t *testing.T) {
	rc := &receiptCollector{err: errors.New("disk full")}
	sp, _, session := setup(t, WithReceiptConsumer(rc))

	req, err := sp.NewPaymentRequest(session, "USDT", decimal.NewFromInt(1), recipient)
	require.NoError(t, err)

	result, err := sp.Pay(context.Background(), session, req, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StateFinalized, result.State)
	assert.Len(t, rc.receipts, 1)
}

func TestPay_InsufficientBalance(t *testing.T) {
	sp, chain, session := setup(t)

	req, err := sp.NewPaymentRequest(session, "USDT", decimal.NewFromInt(1_000), recipient)
	require.NoError(t, err)

	var updates []types.ProgressUpdate
	_, err = sp.Pay(context.Background(), session, req, func(u types.ProgressUpdate) {
		updates = append(updates, u)
	})
	assert.ErrorIs(t, err, types.InsufficientBalance)
	require.Len(t, updates, 1)
	assert.Equal(t, types.ProgressError, updates[0].State)
	assert.Empty(t, chain.Submitted())
}

func TestPay_ValidationBeforeNetwork(t *testing.T) {
	sp, chain, session := setup(t)

	req, err := sp.NewPaymentRequest(session, "USDT", decimal.NewFromInt(1), "")
	require.NoError(t, err)

	_, err = sp.Pay(context.Background(), session, req, nil)
	assert.ErrorIs(t, err, types.MissingField)

	req.Recipient = recipient
	req.Amount = decimal.Zero
	_, err = sp.Pay(context.Background(), session, req, nil)
	assert.ErrorIs(t, err, types.InvalidAmount)

	_, err = sp.Pay(context.Background(), nil, req, nil)
	assert.ErrorIs(t, err, types.MissingField)

	assert.Empty(t, chain.Submitted())
}

func TestPay_Cancelled(t *testing.T) {
	sp, chain, _ := setup(t)

	session, err := sp.Connect(context.Background(), &clients.MemorySigner{Account: payer, Decline: true})
	require.NoError(t, err)

	req, err := sp.NewPaymentRequest(session, "DOT", decimal.NewFromInt(1), recipient)
	require.NoError(t, err)

	result, err := sp.Pay(context.Background(), session, req, nil)
	require.NoError(t, err)
	assert.True(t, result.Cancelled())
	assert.Nil(t, result.Receipt)
	assert.Nil(t, result.Fee)
	assert.Empty(t, chain.Submitted())
}

func TestPay_DispatchFailure(t *testing.T) {
	sp, chain, session := setup(t)
	chain.Queue(clients.Script{
		Statuses: []types.StatusEvent{
			{Kind: types.StatusReady},
			{Kind: types.StatusInBlock, BlockHash: "0x1", DispatchError: &types.DispatchError{Section: "assets", Name: "Frozen", Docs: []string{"The origin account is frozen."}}},
		},
	})

	req, err := sp.NewPaymentRequest(session, "USDT", decimal.NewFromInt(1), recipient)
	require.NoError(t, err)

	_, err = sp.Pay(context.Background(), session, req, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.DispatchFailure)
	assert.Contains(t, err.Error(), "assets.Frozen")
}

// flakyBalanceClient fails the first failFirst Balance calls, and every call
// once a transfer set has been submitted when failAfterSubmit is set.
type flakyBalanceClient struct {
	*clients.MemoryClient
	failFirst       int32
	failAfterSubmit bool

	calls     atomic.Int32
	submitted atomic.Bool
}

func (c *flakyBalanceClient) SubmitTransferSet(ctx context.Context, set *types.TransferSet, signer clients.Signer) (clients.Subscription, error) {
	c.submitted.Store(true)
	return c.MemoryClient.SubmitTransferSet(ctx, set, signer)
}

func (c *flakyBalanceClient) Balance(ctx context.Context, asset types.Asset, account string) (*big.Int, bool, error) {
	n := c.calls.Add(1)
	if n <= c.failFirst || (c.failAfterSubmit && c.submitted.Load()) {
		return nil, false, types.NewNetworkError("get balance", errors.New("connection reset by peer"))
	}
	return c.MemoryClient.Balance(ctx, asset, account)
}

func flakySetup(t *testing.T, client *flakyBalanceClient) (*Splitpay, *Session) {
	t.Helper()
	client.Fund(types.AssetDOT, payer, big.NewInt(50_000_000_000))
	client.Fund(types.AssetUSDT, payer, big.NewInt(100_000_000))

	sp, err := NewWithDefaults(collector, WithClient(client), WithTimeout(5*time.Second))
	require.NoError(t, err)
	session, err := sp.Connect(context.Background(), &clients.MemorySigner{Account: payer})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return sp, session
}

func TestPay_BalanceUnavailableAfterSubmission(t *testing.T) {
	client := &flakyBalanceClient{MemoryClient: clients.NewMemoryClient(), failAfterSubmit: true}
	sp, session := flakySetup(t, client)

	req, err := sp.NewPaymentRequest(session, "USDT", decimal.NewFromInt(10), recipient)
	require.NoError(t, err)

	result, err := sp.Pay(context.Background(), session, req, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StateFinalized, result.State)
	require.NotNil(t, result.Receipt)
	require.NotNil(t, result.Fee)
	assert.Equal(t, types.FeeBandUndetermined, result.Fee.Band)
	assert.Equal(t, "Network fee could not be determined", result.Fee.Message)
	assert.Len(t, client.Submitted(), 1)
}

func TestPay_RetriesTransientVerificationFailure(t *testing.T) {
	client := &flakyBalanceClient{MemoryClient: clients.NewMemoryClient(), failFirst: 1}
	sp, session := flakySetup(t, client)

	req, err := sp.NewPaymentRequest(session, "USDT", decimal.NewFromInt(10), recipient)
	require.NoError(t, err)

	result, err := sp.Pay(context.Background(), session, req, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StateFinalized, result.State)
	assert.Len(t, client.Submitted(), 1)
}

func TestQuickVerify_AddressValidation(t *testing.T) {
	const (
		alice = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"
		bob   = "14E5nqKAp3oAJcmzgZhUD2RcptBeUBScxKHgJKU4HPNcKVf3"
	)
	req := func(to string) *types.PaymentRequest {
		return &types.PaymentRequest{
			Asset:        types.AssetUSDT,
			Amount:       decimal.NewFromInt(10),
			Payer:        alice,
			Recipient:    to,
			FeeRecipient: bob,
		}
	}

	// the Asset Hub dialer implies SS58 checks
	sp, err := NewWithDefaults(bob)
	require.NoError(t, err)
	_, err = sp.QuickVerify(req("recipient"))
	assert.Error(t, err)
	res, err := sp.QuickVerify(req(bob))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	// custom clients keep their own identifiers
	sp, err = NewWithDefaults(bob, WithClient(clients.NewMemoryClient()))
	require.NoError(t, err)
	_, err = sp.QuickVerify(req("recipient"))
	assert.NoError(t, err)

	rejected := errors.New("blocked")
	sp, err = NewWithDefaults(bob, WithClient(clients.NewMemoryClient()), WithAddressValidator(func(addr string) error {
		if addr == "recipient" {
			return rejected
		}
		return nil
	}))
	require.NoError(t, err)
	_, err = sp.QuickVerify(req("recipient"))
	assert.ErrorIs(t, err, rejected)
}

func TestSplit(t *testing.T) {
	sp, _, _ := setup(t)

	r, f, err := sp.Split("BRLd", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "990", r.String())
	assert.Equal(t, "10", f.String())

	_, _, err = sp.Split("EUR", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, types.UnsupportedAsset)

	_, _, err = sp.Split("USDT", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, types.InvalidAmount)
}

func TestBalance(t *testing.T) {
	sp, _, session := setup(t)

	b, err := sp.Balance(context.Background(), session, "usdt")
	require.NoError(t, err)
	assert.Equal(t, "100", b.String())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = NewWithDefaults("")
	var se *types.SplitpayError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, types.ErrConfigError, se.Code)
}

func TestConnect(t *testing.T) {
	sp, _, _ := setup(t)

	_, err := sp.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, types.MissingField)

	failing, err := NewWithDefaults(collector, WithDialer(func(context.Context, *types.Config) (clients.ChainClient, error) {
		return nil, errors.New("dial tcp: refused")
	}))
	require.NoError(t, err)
	_, err = failing.Connect(context.Background(), &clients.MemorySigner{Account: payer})
	assert.Error(t, err)
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v["library_version"])
}
