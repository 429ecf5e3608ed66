// Package transfer turns a user-facing payment into the atomic two-leg
// transfer set submitted on chain.
package transfer

import (
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/vitwit/splitpay/types"
)

var (
	recipientShare = decimal.RequireFromString("0.99")
	feeShare       = decimal.RequireFromString("0.01")
)

// SplitAmount converts amount (user units) into the recipient and fee shares
// in atomic units for an asset with the given precision.
//
// Each share is truncated toward zero, so recipient+fee never exceeds
// floor(amount * 10^precision).
func SplitAmount(amount decimal.Decimal, precision int) (recipient, fee *big.Int, err error) {
	if !amount.IsPositive() {
		return nil, nil, types.NewInvalidAmountError("amount must be greater than 0, got %s", amount)
	}
	if precision < 0 || precision > types.MaxDecimals {
		return nil, nil, types.NewInvalidAmountError("decimal precision must be between 0 and %d, got %d", types.MaxDecimals, precision)
	}

	recipient = ToAtomic(amount.Mul(recipientShare), precision)
	fee = ToAtomic(amount.Mul(feeShare), precision)
	return recipient, fee, nil
}

// ToAtomic returns floor(value * 10^precision).
func ToAtomic(value decimal.Decimal, precision int) *big.Int {
	return value.Shift(int32(precision)).Floor().BigInt()
}

// FromAtomic converts atomic units back into user units.
func FromAtomic(value *big.Int, precision int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(precision))
}
