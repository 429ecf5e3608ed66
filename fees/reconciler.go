// Package fees infers the network fee actually charged for a payment by
// differencing the payer's balances around submission.
package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/logger"
	"github.com/vitwit/splitpay/transfer"
	"github.com/vitwit/splitpay/types"
)

// DefaultTolerance is the smallest delta, in asset units, reported as a fee.
var DefaultTolerance = decimal.New(1, -6)

// Reconciler snapshots balances and classifies the observed fee.
type Reconciler struct {
	tolerance decimal.Decimal
	logger    logger.Logger
}

// NewReconciler returns a Reconciler using DefaultTolerance.
func NewReconciler(l logger.Logger) *Reconciler {
	if l == nil {
		l = logger.NoopLogger{}
	}
	return &Reconciler{
		tolerance: DefaultTolerance,
		logger:    l,
	}
}

// Snapshot reads the payer's native and fee-asset balances in user units.
// An account without a record for an asset counts as zero.
func (r *Reconciler) Snapshot(
	ctx context.Context,
	client clients.ChainClient,
	payer string,
	feeAsset types.Asset,
) (*types.BalanceSnapshot, error) {
	native, err := r.balance(ctx, client, types.AssetDOT, payer)
	if err != nil {
		return nil, err
	}

	snap := &types.BalanceSnapshot{
		Native:   native,
		FeeAsset: native,
		TakenAt:  time.Now().UTC(),
	}

	if !feeAsset.Native {
		snap.FeeAsset, err = r.balance(ctx, client, feeAsset, payer)
		if err != nil {
			return nil, err
		}
	}

	return snap, nil
}

func (r *Reconciler) balance(
	ctx context.Context,
	client clients.ChainClient,
	asset types.Asset,
	account string,
) (decimal.Decimal, error) {
	raw, found, err := client.Balance(ctx, asset, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query %s balance: %w", asset, err)
	}
	if !found {
		return decimal.Zero, nil
	}
	return transfer.FromAtomic(raw, asset.Decimals), nil
}

// Reconcile classifies the fee observed between pre and post.
//
// transferredFeeAsset is the amount of the fee asset that left the account as
// part of the payment itself (zero unless the paid asset is the fee asset).
// requestedNative is the native amount the payment moved (zero unless the
// paid asset is native). A nil snapshot yields FeeBandUndetermined.
func (r *Reconciler) Reconcile(
	pre, post *types.BalanceSnapshot,
	transferredFeeAsset, requestedNative decimal.Decimal,
	feeAsset types.Asset,
) types.FeeReport {
	if pre == nil || post == nil {
		return types.FeeReport{
			Band:    types.FeeBandUndetermined,
			Message: "Network fee could not be determined",
		}
	}

	feeExcess := pre.FeeAsset.Sub(post.FeeAsset).Sub(transferredFeeAsset)
	if !feeAsset.Native && feeExcess.GreaterThan(r.tolerance) {
		return types.FeeReport{
			Band:    types.FeeBandFeeAsset,
			Amount:  feeExcess,
			Asset:   feeAsset.Symbol,
			Message: fmt.Sprintf("Network fee: %s %s", formatFee(feeExcess), feeAsset.Symbol),
		}
	}

	nativeExcess := pre.Native.Sub(post.Native).Sub(requestedNative)
	if nativeExcess.GreaterThan(r.tolerance) {
		return types.FeeReport{
			Band:    types.FeeBandNative,
			Amount:  nativeExcess,
			Asset:   types.AssetDOT.Symbol,
			Message: fmt.Sprintf("Network fee: %s %s", formatFee(nativeExcess), types.AssetDOT.Symbol),
		}
	}

	r.logger.Debug("no fee delta above tolerance", map[string]any{
		"feeAssetDelta": feeExcess.String(),
		"nativeDelta":   nativeExcess.String(),
	})

	return types.FeeReport{
		Band:    types.FeeBandNone,
		Amount:  decimal.Zero,
		Message: "no significant fee detected",
	}
}

// formatFee shows four decimals unless that would round a detected fee to
// zero, in which case the exact value is printed.
func formatFee(amount decimal.Decimal) string {
	if amount.Round(4).IsZero() {
		return amount.String()
	}
	return amount.StringFixed(4)
}
