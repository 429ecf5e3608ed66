package types

import (
	"fmt"
	"strings"
)

// Asset describes a fungible asset on the settlement layer.
type Asset struct {
	// Symbol is the ticker shown to users, e.g. "USDT".
	Symbol string `json:"symbol" mapstructure:"symbol" validate:"required"`

	// ID is the Assets pallet identifier. Unused for the native asset.
	ID uint32 `json:"id,omitempty" mapstructure:"id"`

	// Native marks the chain's native currency (moved with the Balances pallet).
	Native bool `json:"native,omitempty" mapstructure:"native"`

	// Decimals is the on-chain precision.
	Decimals int `json:"decimals" mapstructure:"decimals" validate:"gte=0,lte=38"`

	// DisplayDecimals is the number of fraction digits used in receipts.
	DisplayDecimals int `json:"displayDecimals,omitempty" mapstructure:"display_decimals"`
}

func (a Asset) String() string {
	return a.Symbol
}

// IsZero reports whether a is the zero value.
func (a Asset) IsZero() bool {
	return a.Symbol == "" && a.ID == 0 && !a.Native
}

// Same reports whether a and b identify the same on-chain asset.
func (a Asset) Same(b Asset) bool {
	if a.Native || b.Native {
		return a.Native == b.Native
	}
	return a.ID == b.ID
}

// MaxDecimals is the largest precision an asset may declare. A u128 balance
// holds at most 39 digits.
const MaxDecimals = 38

// FeeLocation is the XCM MultiLocation under which an asset pays fees through
// ChargeAssetTxPayment: parents 0, interior X2(PalletInstance, GeneralIndex).
type FeeLocation struct {
	Parents        uint8  `json:"parents"`
	PalletInstance uint8  `json:"palletInstance"`
	GeneralIndex   uint64 `json:"generalIndex"`
}

// AssetsPalletInstance is the Assets pallet index on Asset Hub.
const AssetsPalletInstance = 50

// FeeLocation returns the MultiLocation used when a is the fee-paying asset.
func (a Asset) FeeLocation() FeeLocation {
	return FeeLocation{
		Parents:        0,
		PalletInstance: AssetsPalletInstance,
		GeneralIndex:   uint64(a.ID),
	}
}

// Assets known on Polkadot Asset Hub.
var (
	AssetDOT = Asset{
		Symbol:          "DOT",
		Native:          true,
		Decimals:        10,
		DisplayDecimals: 2,
	}
	AssetUSDT = Asset{
		Symbol:          "USDT",
		ID:              1984,
		Decimals:        6,
		DisplayDecimals: 4,
	}
	AssetBRLd = Asset{
		Symbol:          "BRLd",
		ID:              50000282,
		Decimals:        10,
		DisplayDecimals: 2,
	}
)

// DefaultAssets returns the built-in registry keyed by upper-case symbol.
func DefaultAssets() map[string]Asset {
	return map[string]Asset{
		"DOT":  AssetDOT,
		"USDT": AssetUSDT,
		"BRLD": AssetBRLd,
	}
}

// LookupAsset resolves a symbol against registry, case-insensitively.
func LookupAsset(registry map[string]Asset, symbol string) (Asset, error) {
	if a, ok := registry[strings.ToUpper(symbol)]; ok {
		return a, nil
	}
	// viper lower-cases map keys read from config files
	for key, a := range registry {
		if strings.EqualFold(key, symbol) || strings.EqualFold(a.Symbol, symbol) {
			return a, nil
		}
	}
	return Asset{}, &SplitpayError{
		Code:    ErrUnsupportedAsset,
		Message: fmt.Sprintf("unsupported asset: %s", symbol),
	}
}
