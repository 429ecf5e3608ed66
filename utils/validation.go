package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vedhavyas/go-subkey/v2"
	"github.com/vitwit/splitpay/types"
)

// ValidateAmount checks that amount is a positive decimal
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, types.NewInvalidAmountError("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, types.NewInvalidAmountError("invalid amount format: %v", err)
	}

	if !dec.IsPositive() {
		return decimal.Zero, types.NewInvalidAmountError("amount must be greater than 0, got %s", dec)
	}

	return dec, nil
}

// ValidateAddress checks that address is a well-formed SS58 account address.
func ValidateAddress(address string) error {
	if address == "" {
		return types.NewMissingFieldError("address")
	}

	_, pub, err := subkey.SS58Decode(address)
	if err != nil {
		return &types.SplitpayError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("invalid SS58 address %q: %v", address, err),
		}
	}
	if len(pub) != 32 {
		return &types.SplitpayError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("SS58 address %q does not hold a 32 byte account id", address),
		}
	}

	return nil
}

// ValidateAddressForNetwork additionally checks the SS58 prefix.
func ValidateAddressForNetwork(address string, prefix uint16) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}

	format, _, _ := subkey.SS58Decode(address)
	if format != prefix {
		return &types.SplitpayError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("address %q uses network prefix %d, expected %d", address, format, prefix),
		}
	}
	return nil
}
