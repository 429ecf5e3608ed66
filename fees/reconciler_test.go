package fees

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snap(native, feeAsset string) *types.BalanceSnapshot {
	return &types.BalanceSnapshot{Native: d(native), FeeAsset: d(feeAsset)}
}

func TestReconcile(t *testing.T) {
	r := NewReconciler(nil)

	tests := []struct {
		name        string
		pre, post   *types.BalanceSnapshot
		transferred string
		native      string
		wantBand    types.FeeBand
		wantAmount  string
		wantMessage string
	}{
		{
			name:        "fee paid in fee asset",
			pre:         snap("5", "100"),
			post:        snap("5", "98.5"),
			transferred: "0",
			native:      "0",
			wantBand:    types.FeeBandFeeAsset,
			wantAmount:  "1.5",
			wantMessage: "Network fee: 1.5000 USDT",
		},
		{
			name:        "fee asset is also the paid asset",
			pre:         snap("5", "100"),
			post:        snap("5", "89.98"),
			transferred: "10",
			native:      "0",
			wantBand:    types.FeeBandFeeAsset,
			wantAmount:  "0.02",
			wantMessage: "Network fee: 0.0200 USDT",
		},
		{
			name:        "fee paid in native",
			pre:         snap("5", "100"),
			post:        snap("3.9", "100"),
			transferred: "0",
			native:      "1",
			wantBand:    types.FeeBandNative,
			wantAmount:  "0.1",
			wantMessage: "Network fee: 0.1000 DOT",
		},
		{
			name:        "fee smaller than display precision",
			pre:         snap("5", "100"),
			post:        snap("5", "99.99996"),
			transferred: "0",
			native:      "0",
			wantBand:    types.FeeBandFeeAsset,
			wantAmount:  "0.00004",
			wantMessage: "Network fee: 0.00004 USDT",
		},
		{
			name:        "native fee smaller than display precision",
			pre:         snap("5", "100"),
			post:        snap("4.99999", "100"),
			transferred: "0",
			native:      "0",
			wantBand:    types.FeeBandNative,
			wantAmount:  "0.00001",
			wantMessage: "Network fee: 0.00001 DOT",
		},
		{
			name:        "equal balances",
			pre:         snap("5", "100"),
			post:        snap("5", "100"),
			transferred: "0",
			native:      "0",
			wantBand:    types.FeeBandNone,
			wantAmount:  "0",
			wantMessage: "no significant fee detected",
		},
		{
			name:        "delta within tolerance",
			pre:         snap("5", "100"),
			post:        snap("5", "99.9999995"),
			transferred: "0",
			native:      "0",
			wantBand:    types.FeeBandNone,
			wantAmount:  "0",
			wantMessage: "no significant fee detected",
		},
		{
			name:        "fee asset band takes precedence",
			pre:         snap("5", "100"),
			post:        snap("4", "99"),
			transferred: "0",
			native:      "0",
			wantBand:    types.FeeBandFeeAsset,
			wantAmount:  "1",
			wantMessage: "Network fee: 1.0000 USDT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := r.Reconcile(tt.pre, tt.post, d(tt.transferred), d(tt.native), types.AssetUSDT)
			assert.Equal(t, tt.wantBand, report.Band)
			assert.True(t, d(tt.wantAmount).Equal(report.Amount), "amount %s", report.Amount)
			assert.Equal(t, tt.wantMessage, report.Message)
		})
	}
}

func TestReconcile_MissingSnapshot(t *testing.T) {
	r := NewReconciler(nil)

	report := r.Reconcile(nil, snap("1", "1"), decimal.Zero, decimal.Zero, types.AssetUSDT)
	assert.Equal(t, types.FeeBandUndetermined, report.Band)

	report = r.Reconcile(snap("1", "1"), nil, decimal.Zero, decimal.Zero, types.AssetUSDT)
	assert.Equal(t, types.FeeBandUndetermined, report.Band)
}

func TestReconcile_NativeFeeAsset(t *testing.T) {
	r := NewReconciler(nil)

	report := r.Reconcile(snap("10", "10"), snap("8.5", "8.5"), decimal.Zero, d("1"), types.AssetDOT)
	assert.Equal(t, types.FeeBandNative, report.Band)
	assert.True(t, d("0.5").Equal(report.Amount))
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	client := clients.NewMemoryClient()
	client.Fund(types.AssetDOT, "alice", big.NewInt(25_000_000_000))
	client.Fund(types.AssetUSDT, "alice", big.NewInt(1_500_000))

	r := NewReconciler(nil)

	s, err := r.Snapshot(ctx, client, "alice", types.AssetUSDT)
	require.NoError(t, err)
	assert.True(t, d("2.5").Equal(s.Native))
	assert.True(t, d("1.5").Equal(s.FeeAsset))
	assert.False(t, s.TakenAt.IsZero())

	s, err = r.Snapshot(ctx, client, "bob", types.AssetUSDT)
	require.NoError(t, err)
	assert.True(t, s.Native.IsZero())
	assert.True(t, s.FeeAsset.IsZero())

	s, err = r.Snapshot(ctx, client, "alice", types.AssetDOT)
	require.NoError(t, err)
	assert.True(t, s.Native.Equal(s.FeeAsset))
}

func TestSnapshot_QueryFailure(t *testing.T) {
	client := clients.NewMemoryClient()
	client.FailBalances(errors.New("rpc down"))

	_, err := NewReconciler(nil).Snapshot(context.Background(), client, "alice", types.AssetUSDT)
	assert.Error(t, err)
}
