package verification

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/types"
)

func request(amount string) *types.PaymentRequest {
	return &types.PaymentRequest{
		Asset:        types.AssetUSDT,
		Payer:        "payer",
		Recipient:    "recipient",
		FeeRecipient: "collector",
		Amount:       decimal.RequireFromString(amount),
	}
}

func TestVerify_SufficientBalance(t *testing.T) {
	c := clients.NewMemoryClient()
	c.Fund(types.AssetUSDT, "payer", big.NewInt(10_000_000))

	res, err := NewService(time.Second).Verify(context.Background(), c, request("10"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, decimal.NewFromInt(10).Equal(res.Balance))
	assert.True(t, decimal.NewFromInt(10).Equal(res.Required))
}

func TestVerify_InsufficientBalance(t *testing.T) {
	c := clients.NewMemoryClient()
	c.Fund(types.AssetUSDT, "payer", big.NewInt(2_500_000))

	res, err := NewService(time.Second).Verify(context.Background(), c, request("10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.InsufficientBalance)
	assert.False(t, res.Valid)
	assert.True(t, decimal.RequireFromString("2.5").Equal(res.Balance))

	var se *types.SplitpayError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, res.Balance, se.Data)
}

func TestVerify_UnknownAccountHasNoBalance(t *testing.T) {
	res, err := NewService(time.Second).Verify(context.Background(), clients.NewMemoryClient(), request("1"))
	assert.ErrorIs(t, err, types.InsufficientBalance)
	assert.True(t, res.Balance.IsZero())
}

func TestVerify_InvalidRequestSkipsChain(t *testing.T) {
	c := clients.NewMemoryClient()
	c.FailBalances(errors.New("must not be called"))

	req := request("10")
	req.Recipient = ""
	_, err := NewService(time.Second).Verify(context.Background(), c, req)
	assert.ErrorIs(t, err, types.MissingField)

	_, err = NewService(time.Second).Verify(context.Background(), c, request("0"))
	assert.ErrorIs(t, err, types.InvalidAmount)
}

func TestVerify_AddressValidator(t *testing.T) {
	bad := errors.New("bad address")
	svc := NewService(time.Second, WithAddressValidator(func(addr string) error {
		if addr == "collector" {
			return bad
		}
		return nil
	}))

	res, err := svc.QuickVerify(request("1"))
	assert.ErrorIs(t, err, bad)
	assert.False(t, res.Valid)
}

func TestQuickVerify(t *testing.T) {
	res, err := NewService(time.Second).QuickVerify(request("1"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "USDT", res.Asset)
}

func TestVerifyWithRetry(t *testing.T) {
	c := clients.NewMemoryClient()
	c.Fund(types.AssetUSDT, "payer", big.NewInt(1))

	// business errors are not retried
	_, err := NewService(time.Second).VerifyWithRetry(context.Background(), c, request("10"), 3, time.Millisecond)
	assert.ErrorIs(t, err, types.InsufficientBalance)

	c.FailBalances(&types.SplitpayError{Code: types.ErrNetworkError, Message: "rpc down"})
	_, err = NewService(time.Second).VerifyWithRetry(context.Background(), c, request("10"), 2, time.Millisecond)
	require.Error(t, err)
	var se *types.SplitpayError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, types.ErrNetworkError, se.Code)
}
