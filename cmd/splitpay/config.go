package main

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/viper"
	"github.com/vitwit/splitpay"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/logger"
	"github.com/vitwit/splitpay/metrics"
	"github.com/vitwit/splitpay/receipt"
	"github.com/vitwit/splitpay/types"
	"github.com/vitwit/splitpay/utils"
)

// Dev accounts used by --simulate when nothing is configured.
const (
	simulatedAccount      = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"
	simulatedFeeRecipient = "14E5nqKAp3oAJcmzgZhUD2RcptBeUBScxKHgJKU4HPNcKVf3"
)

// cliConfig is the library config plus the settings only the CLI needs.
type cliConfig struct {
	*types.Config

	// Secret is the seed, mnemonic or dev URI used to sign.
	Secret string
	// Account pays in --simulate mode.
	Account      string
	ReceiptsFile string
}

func loadConfig(path string, simulate bool) (*cliConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".splitpay")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	def := types.DefaultConfig()
	v.SetDefault("node_url", def.NodeURL)
	v.SetDefault("fee_recipient", "")
	v.SetDefault("fee_asset", def.FeeAsset)
	v.SetDefault("explorer_url_template", def.ExplorerURLTemplate)
	v.SetDefault("default_timeout", def.DefaultTimeout)
	v.SetDefault("retry_count", def.RetryCount)
	v.SetDefault("log_level", "warn")
	v.SetDefault("enable_metrics", false)
	v.SetDefault("secret", "")
	v.SetDefault("account", "")
	v.SetDefault("receipts_file", "")

	v.SetEnvPrefix("SPLITPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, &types.SplitpayError{
				Code:    types.ErrConfigError,
				Message: fmt.Sprintf("failed to read config: %v", err),
			}
		}
	}

	cfg := types.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &types.SplitpayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to decode config: %v", err),
		}
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = types.DefaultAssets()
	}
	if simulate && cfg.FeeRecipient == "" {
		cfg.FeeRecipient = simulatedFeeRecipient
	}

	if err := utils.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return &cliConfig{
		Config:       cfg,
		Secret:       v.GetString("secret"),
		Account:      v.GetString("account"),
		ReceiptsFile: v.GetString("receipts_file"),
	}, nil
}

// app bundles what a command needs to talk to the chain.
type app struct {
	sp     *splitpay.Splitpay
	signer clients.Signer
	store  *receipt.FileStore
}

func newApp(cfg *cliConfig, flags *globalFlags) (*app, error) {
	store, err := receipt.NewFileStore(cfg.ReceiptsFile)
	if err != nil {
		return nil, err
	}

	// --json keeps logs machine readable too; both loggers write to stderr
	log := logger.NewConsoleLogger(cfg.LogLevel)
	if flags.jsonOutput {
		log = logger.NewZapLogger(cfg.LogLevel)
	}

	opts := []splitpay.Option{
		splitpay.WithLogger(log),
		splitpay.WithReceiptConsumer(store),
	}

	if cfg.EnableMetrics {
		rec, err := metrics.NewPrometheusRecorder(nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, splitpay.WithMetrics(rec))
	}

	var signer clients.Signer
	if flags.simulate {
		account := cfg.Account
		if account == "" {
			account = simulatedAccount
		}
		opts = append(opts,
			splitpay.WithClient(newSimulatedChain(account)),
			splitpay.WithAddressValidator(utils.ValidateAddress),
		)
		signer = &clients.MemorySigner{Account: account}
	} else {
		if cfg.Secret == "" {
			return nil, &types.SplitpayError{
				Code:    types.ErrConfigError,
				Message: "signing secret not found. Set SPLITPAY_SECRET or add secret to .splitpay.yaml",
			}
		}
		signer, err = clients.NewSubstrateSigner(cfg.Secret, clients.PolkadotSS58Prefix)
		if err != nil {
			return nil, err
		}
		opts = append(opts, splitpay.WithAddressValidator(func(address string) error {
			return utils.ValidateAddressForNetwork(address, clients.PolkadotSS58Prefix)
		}))
	}

	sp, err := splitpay.New(cfg.Config, opts...)
	if err != nil {
		return nil, err
	}

	return &app{sp: sp, signer: signer, store: store}, nil
}

// newSimulatedChain funds account with 100 DOT, 1000 USDT and 1000 BRLd and
// charges realistic fees.
func newSimulatedChain(account string) *clients.MemoryClient {
	chain := clients.NewMemoryClient(
		clients.WithMemoryFees(big.NewInt(160_000_000), big.NewInt(15_000)),
	)

	for _, asset := range []types.Asset{types.AssetDOT, types.AssetUSDT, types.AssetBRLd} {
		amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals)), nil)
		units := int64(1000)
		if asset.Native {
			units = 100
		}
		chain.Fund(asset, account, amount.Mul(amount, big.NewInt(units)))
	}

	return chain
}
