package types

import (
	"fmt"
	"time"
)

// DefaultExplorerURLTemplate points at Subscan's Asset Hub explorer. {block}
// and {index} are substituted with the block number and extrinsic index.
const DefaultExplorerURLTemplate = "https://assethub-polkadot.subscan.io/extrinsic/{block}-{index}"

// DefaultNodeURL is the public Asset Hub RPC endpoint.
const DefaultNodeURL = "wss://polkadot-asset-hub-rpc.polkadot.io"

// Config contains global configuration for the splitpay library
type Config struct {
	NodeURL             string           `json:"nodeUrl" mapstructure:"node_url" validate:"required"`
	FeeRecipient        string           `json:"feeRecipient" mapstructure:"fee_recipient" validate:"required"`
	FeeAsset            string           `json:"feeAsset,omitempty" mapstructure:"fee_asset"`
	ExplorerURLTemplate string           `json:"explorerUrlTemplate,omitempty" mapstructure:"explorer_url_template"`
	DefaultTimeout      time.Duration    `json:"defaultTimeout,omitempty" mapstructure:"default_timeout"`
	RetryCount          int              `json:"retryCount,omitempty" mapstructure:"retry_count" validate:"gte=0"`
	LogLevel            string           `json:"logLevel,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics       bool             `json:"enableMetrics,omitempty" mapstructure:"enable_metrics"`
	Assets              map[string]Asset `json:"assets,omitempty" mapstructure:"assets" validate:"dive"`
}

// DefaultConfig returns a configuration pointed at Polkadot Asset Hub.
func DefaultConfig() *Config {
	return &Config{
		NodeURL:             DefaultNodeURL,
		FeeAsset:            AssetUSDT.Symbol,
		ExplorerURLTemplate: DefaultExplorerURLTemplate,
		DefaultTimeout:      5 * time.Minute,
		RetryCount:          3,
		LogLevel:            "info",
		Assets:              DefaultAssets(),
	}
}

// Validate checks the fields validator tags cannot express.
func (c *Config) Validate() error {
	if c.FeeAsset == "" {
		return nil
	}
	if _, err := LookupAsset(c.Registry(), c.FeeAsset); err != nil {
		return &SplitpayError{
			Code:    ErrConfigError,
			Message: fmt.Sprintf("feeAsset: %v", err),
		}
	}
	return nil
}

// Registry returns the configured assets, falling back to the defaults.
func (c *Config) Registry() map[string]Asset {
	if len(c.Assets) == 0 {
		return DefaultAssets()
	}
	return c.Assets
}
