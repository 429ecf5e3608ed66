// Package receipt turns finality data into the human-readable proof of a
// split payment.
package receipt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/splitpay/types"
)

// Input carries everything known about a payment once it is finalized.
type Input struct {
	Asset     types.Asset
	Amount    decimal.Decimal
	BlockHash string

	// BlockNumber is only meaningful when HeaderUnavailable is false.
	BlockNumber       uint64
	HeaderUnavailable bool

	// ExtrinsicIndex is nil when no ExtrinsicSuccess event was found in an
	// ApplyExtrinsic phase.
	ExtrinsicIndex *uint32

	// Unverified is set when the finalized block's events could not be read,
	// so the transfer result was not confirmed.
	Unverified bool

	// ExplorerURLTemplate defaults to types.DefaultExplorerURLTemplate.
	ExplorerURLTemplate string
	FinalizedAt         time.Time
}

// Format builds the receipt for a finalized payment.
func Format(in Input) *types.Receipt {
	amount := FormatAmount(in.Amount, in.Asset.DisplayDecimals)
	symbol := in.Asset.Symbol

	finalizedAt := in.FinalizedAt
	if finalizedAt.IsZero() {
		finalizedAt = time.Now().UTC()
	}

	r := &types.Receipt{
		ID:              uuid.NewString(),
		Asset:           symbol,
		FormattedAmount: amount,
		BlockHash:       in.BlockHash,
		FinalizedAt:     finalizedAt,
		Unverified:      in.Unverified,
	}

	if in.HeaderUnavailable {
		r.Message = fmt.Sprintf("Amount in %s: %s. Payment finalized, block details unavailable.", symbol, amount)
		r.Message += unverifiedNote(in.Unverified)
		return r
	}

	r.BlockNumber = in.BlockNumber
	r.Message = fmt.Sprintf("Amount in %s: %s. Payment finalized in block: %d", symbol, amount, in.BlockNumber)

	if in.ExtrinsicIndex != nil {
		idx := *in.ExtrinsicIndex
		r.ExtrinsicIndex = &idx
		r.ExplorerURL = ExplorerURL(in.ExplorerURLTemplate, in.BlockNumber, idx)
		r.Message += ", " + r.ExplorerURL
	}
	r.Message += unverifiedNote(in.Unverified)

	return r
}

func unverifiedNote(unverified bool) string {
	if unverified {
		return " (transfer result unverified)"
	}
	return ""
}

// ExplorerURL fills the {block} and {index} placeholders of template.
func ExplorerURL(template string, block uint64, index uint32) string {
	if template == "" {
		template = types.DefaultExplorerURLTemplate
	}
	return strings.NewReplacer(
		"{block}", strconv.FormatUint(block, 10),
		"{index}", strconv.FormatUint(uint64(index), 10),
	).Replace(template)
}

// FormatAmount renders value with exactly fractionDigits decimals using the
// es-ES conventions: "," as decimal separator and "." as thousands separator.
// Grouping starts at five integer digits, so 1234,50 stays ungrouped while
// 12.345,50 is grouped.
func FormatAmount(value decimal.Decimal, fractionDigits int) string {
	if fractionDigits < 0 {
		fractionDigits = 0
	}

	fixed := value.Round(int32(fractionDigits)).StringFixed(int32(fractionDigits))

	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	intPart = groupThousands(intPart)

	var b strings.Builder
	if neg && strings.Trim(intPart+fracPart, "0.") != "" {
		b.WriteByte('-')
	}
	b.WriteString(intPart)
	if fracPart != "" {
		b.WriteByte(',')
		b.WriteString(fracPart)
	}
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) < 5 {
		return digits
	}

	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
