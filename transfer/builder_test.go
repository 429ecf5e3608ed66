package transfer

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/splitpay/types"
)

func testRequest() *types.PaymentRequest {
	return &types.PaymentRequest{
		Asset:        types.AssetBRLd,
		Payer:        "payer",
		Recipient:    "R",
		FeeRecipient: "F",
		Amount:       decimal.NewFromInt(1000),
	}
}

func TestBuildTransferSet(t *testing.T) {
	set, err := BuildTransferSet(testRequest())
	require.NoError(t, err)

	assert.Equal(t, "payer", set.Payer)
	assert.Equal(t, "R", set.Recipient().Destination)
	assert.Equal(t, "9900000000000", set.Recipient().Amount.String())
	assert.Equal(t, "F", set.Fee().Destination)
	assert.Equal(t, "100000000000", set.Fee().Amount.String())
	assert.Equal(t, types.AssetBRLd, set.Asset())
	assert.Equal(t, "10000000000000", set.Total().String())
	assert.Nil(t, set.FeeAsset)
}

func TestBuildTransferSet_TenUnits(t *testing.T) {
	req := testRequest()
	req.Amount = decimal.NewFromInt(10)

	set, err := BuildTransferSet(req)
	require.NoError(t, err)

	assert.Equal(t, "99000000000", set.Legs[0].Amount.String())
	assert.Equal(t, "1000000000", set.Legs[1].Amount.String())
}

func TestBuildTransferSet_FeeAssetCopied(t *testing.T) {
	req := testRequest()
	feeAsset := types.AssetUSDT
	req.FeeAsset = &feeAsset

	set, err := BuildTransferSet(req)
	require.NoError(t, err)
	require.NotNil(t, set.FeeAsset)

	feeAsset.Symbol = "changed"
	assert.Equal(t, "USDT", set.FeeAsset.Symbol)
}

func TestBuildTransferSet_MissingField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.PaymentRequest)
		field  string
	}{
		{"payer", func(r *types.PaymentRequest) { r.Payer = "" }, "payer"},
		{"recipient", func(r *types.PaymentRequest) { r.Recipient = "" }, "recipient"},
		{"fee recipient", func(r *types.PaymentRequest) { r.FeeRecipient = "" }, "feeRecipient"},
		{"asset symbol", func(r *types.PaymentRequest) { r.Asset.Symbol = "" }, "asset.symbol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(req)

			_, err := BuildTransferSet(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.MissingField))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	_, err := BuildTransferSet(nil)
	assert.True(t, errors.Is(err, types.MissingField))
}

func TestBuildTransferSet_InvalidAmount(t *testing.T) {
	req := testRequest()
	req.Amount = decimal.Zero
	_, err := BuildTransferSet(req)
	assert.True(t, errors.Is(err, types.InvalidAmount))

	req = testRequest()
	req.Asset.Decimals = -2
	_, err = BuildTransferSet(req)
	assert.True(t, errors.Is(err, types.InvalidAmount))

	req = testRequest()
	req.Asset.Decimals = types.MaxDecimals + 1
	_, err = BuildTransferSet(req)
	assert.True(t, errors.Is(err, types.InvalidAmount))
}
