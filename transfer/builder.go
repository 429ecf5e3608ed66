package transfer

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/splitpay/types"
)

var validate = validator.New()

// BuildTransferSet validates req and produces the [recipient, fee] transfer
// set. Nothing here touches the network.
func BuildTransferSet(req *types.PaymentRequest) (*types.TransferSet, error) {
	if req == nil {
		return nil, types.NewMissingFieldError("request")
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	recipientAmount, feeAmount, err := SplitAmount(req.Amount, req.Asset.Decimals)
	if err != nil {
		return nil, err
	}

	set := &types.TransferSet{
		Payer:     req.Payer,
		Requested: req.Amount,
		Legs: [2]types.TransferLeg{
			{
				Asset:       req.Asset,
				Destination: req.Recipient,
				Amount:      recipientAmount,
			},
			{
				Asset:       req.Asset,
				Destination: req.FeeRecipient,
				Amount:      feeAmount,
			},
		},
	}
	if req.FeeAsset != nil {
		feeAsset := *req.FeeAsset
		set.FeeAsset = &feeAsset
	}

	return set, nil
}

// ValidateRequest checks required fields and the amount. Missing fields win
// over a bad amount so the caller sees the most actionable error first.
func ValidateRequest(req *types.PaymentRequest) error {
	if err := validate.Struct(req); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return &types.SplitpayError{
				Code:    types.ErrMissingField,
				Message: fmt.Sprintf("validation failed: %v", err),
			}
		}

		var missing []string
		for _, fe := range verrs {
			if fe.Field() == "Decimals" && (fe.Tag() == "gte" || fe.Tag() == "lte") {
				return types.NewInvalidAmountError("decimal precision must be between 0 and %d, got %v", types.MaxDecimals, fe.Value())
			}
			missing = append(missing, lowerFirst(fe.StructNamespace()))
		}
		return types.NewMissingFieldError(missing...)
	}

	if !req.Amount.IsPositive() {
		return types.NewInvalidAmountError("amount must be greater than 0, got %s", req.Amount)
	}
	return nil
}

// lowerFirst turns "PaymentRequest.Asset.Symbol" into "asset.symbol".
func lowerFirst(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}
