package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/splitpay/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("ss58", validateSS58Tag); err != nil {
		panic(err)
	}
}

// ParseConfig parses and validates a Config from JSON. Unset fields keep the
// values of types.DefaultConfig.
func ParseConfig(data []byte) (*types.Config, error) {
	config := types.DefaultConfig()

	if err := json.Unmarshal(data, config); err != nil {
		return nil, &types.SplitpayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to parse config: %v", err),
		}
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ValidateConfig runs the struct tag checks and Config.Validate.
func ValidateConfig(config *types.Config) error {
	if err := validate.Struct(config); err != nil {
		return &types.SplitpayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}
	return config.Validate()
}

// paymentRequestJSON is the wire form of a payment request: assets by symbol,
// amount as a decimal string.
type paymentRequestJSON struct {
	Asset        string `json:"asset" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Payer        string `json:"payer" validate:"required,ss58"`
	Recipient    string `json:"recipient" validate:"required,ss58"`
	FeeRecipient string `json:"feeRecipient" validate:"required,ss58"`
	FeeAsset     string `json:"feeAsset,omitempty"`
}

// ParsePaymentRequest parses a JSON payment request, resolving asset symbols
// against registry.
func ParsePaymentRequest(data []byte, registry map[string]types.Asset) (*types.PaymentRequest, error) {
	var raw paymentRequestJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &types.SplitpayError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("failed to parse payment request: %v", err),
		}
	}

	if err := validate.Struct(&raw); err != nil {
		return nil, &types.SplitpayError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	amount, err := ValidateAmount(raw.Amount)
	if err != nil {
		return nil, err
	}

	asset, err := types.LookupAsset(registry, raw.Asset)
	if err != nil {
		return nil, err
	}

	req := &types.PaymentRequest{
		Asset:        asset,
		Amount:       amount,
		Payer:        raw.Payer,
		Recipient:    raw.Recipient,
		FeeRecipient: raw.FeeRecipient,
	}

	if raw.FeeAsset != "" {
		feeAsset, err := types.LookupAsset(registry, raw.FeeAsset)
		if err != nil {
			return nil, err
		}
		req.FeeAsset = &feeAsset
	}

	return req, nil
}

// SerializeReceipt converts a Receipt to JSON
func SerializeReceipt(r *types.Receipt) ([]byte, error) {
	return json.Marshal(r)
}

// SerializePaymentResult converts a PaymentResult to JSON
func SerializePaymentResult(result *types.PaymentResult) ([]byte, error) {
	return json.Marshal(result)
}

func validateSS58Tag(fl validator.FieldLevel) bool {
	return ValidateAddress(fl.Field().String()) == nil
}
