package receipt

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/splitpay/types"
)

func u32(v uint32) *uint32 { return &v }

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		digits int
		want   string
	}{
		{"two decimals", "10.5", 2, "10,50"},
		{"four decimals", "10.5", 4, "10,5000"},
		{"rounds half away from zero", "1.005", 2, "1,01"},
		{"four integer digits not grouped", "1234.5", 2, "1234,50"},
		{"five integer digits grouped", "12345.5", 2, "12.345,50"},
		{"millions", "1234567.891", 2, "1.234.567,89"},
		{"zero", "0", 2, "0,00"},
		{"no fraction", "42", 0, "42"},
		{"negative", "-12345.678", 2, "-12.345,68"},
		{"negative rounding to zero", "-0.001", 2, "0,00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(decimal.RequireFromString(tt.value), tt.digits))
		})
	}
}

func TestFormat_WithExtrinsicIndex(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	r := Format(Input{
		Asset:          types.AssetBRLd,
		Amount:         decimal.RequireFromString("10.50"),
		BlockNumber:    123456,
		BlockHash:      "0xabc",
		ExtrinsicIndex: u32(2),
		FinalizedAt:    at,
	})

	require.NotNil(t, r)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "BRLd", r.Asset)
	assert.Equal(t, "10,50", r.FormattedAmount)
	assert.Equal(t, uint64(123456), r.BlockNumber)
	require.NotNil(t, r.ExtrinsicIndex)
	assert.Equal(t, uint32(2), *r.ExtrinsicIndex)
	assert.Equal(t, "https://assethub-polkadot.subscan.io/extrinsic/123456-2", r.ExplorerURL)
	assert.Equal(t,
		"Amount in BRLd: 10,50. Payment finalized in block: 123456, https://assethub-polkadot.subscan.io/extrinsic/123456-2",
		r.Message)
	assert.Equal(t, at, r.FinalizedAt)
}

func TestFormat_WithoutExtrinsicIndex(t *testing.T) {
	r := Format(Input{
		Asset:       types.AssetUSDT,
		Amount:      decimal.RequireFromString("3"),
		BlockNumber: 77,
	})

	assert.Equal(t, "Amount in USDT: 3,0000. Payment finalized in block: 77", r.Message)
	assert.Empty(t, r.ExplorerURL)
	assert.Nil(t, r.ExtrinsicIndex)
	assert.False(t, r.FinalizedAt.IsZero())
}

func TestFormat_HeaderUnavailable(t *testing.T) {
	r := Format(Input{
		Asset:             types.AssetDOT,
		Amount:            decimal.RequireFromString("1.5"),
		BlockHash:         "0xdef",
		HeaderUnavailable: true,
		ExtrinsicIndex:    u32(4),
	})

	assert.Equal(t, "Amount in DOT: 1,50. Payment finalized, block details unavailable.", r.Message)
	assert.Zero(t, r.BlockNumber)
	assert.Empty(t, r.ExplorerURL)
	assert.Equal(t, "0xdef", r.BlockHash)
}

func TestFormat_Unverified(t *testing.T) {
	r := Format(Input{
		Asset:       types.AssetUSDT,
		Amount:      decimal.RequireFromString("3"),
		BlockNumber: 77,
		Unverified:  true,
	})
	assert.True(t, r.Unverified)
	assert.Equal(t, "Amount in USDT: 3,0000. Payment finalized in block: 77 (transfer result unverified)", r.Message)

	r = Format(Input{
		Asset:             types.AssetDOT,
		Amount:            decimal.RequireFromString("1"),
		HeaderUnavailable: true,
		Unverified:        true,
	})
	assert.Equal(t, "Amount in DOT: 1,00. Payment finalized, block details unavailable. (transfer result unverified)", r.Message)
}

func TestFormat_UniqueIDs(t *testing.T) {
	in := Input{Asset: types.AssetDOT, Amount: decimal.NewFromInt(1), BlockNumber: 1}
	assert.NotEqual(t, Format(in).ID, Format(in).ID)
}

func TestExplorerURL_CustomTemplate(t *testing.T) {
	assert.Equal(t,
		"https://example.org/tx/9-1",
		ExplorerURL("https://example.org/tx/{block}-{index}", 9, 1))
}
