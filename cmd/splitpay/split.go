package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vitwit/splitpay"
	"github.com/vitwit/splitpay/utils"
)

func newSplitCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "split <asset> <amount>",
		Short: "Preview how an amount is split",
		Long: `Show the recipient and fee collector shares for an amount without touching
the chain.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			errOut := cmd.ErrOrStderr()

			cfg, err := loadConfig(global.configPath, global.simulate)
			if err != nil {
				return printError(errOut, err)
			}
			sp, err := splitpay.New(cfg.Config)
			if err != nil {
				return printError(errOut, err)
			}

			amount, err := utils.ValidateAmount(args[1])
			if err != nil {
				return printError(errOut, err)
			}
			asset, err := sp.Asset(args[0])
			if err != nil {
				return printError(errOut, err)
			}
			recipient, fee, err := sp.Split(args[0], amount)
			if err != nil {
				return printError(errOut, err)
			}

			if global.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"asset":         asset.Symbol,
					"amount":        amount.String(),
					"recipient":     recipient.String(),
					"fee":           fee.String(),
					"fee_recipient": cfg.FeeRecipient,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n  Amount:        %s %s\n", amount.String(), color.YellowString(asset.Symbol))
			fmt.Fprintf(out, "  Recipient:     %s %s (99%%)\n", recipient.String(), asset.Symbol)
			fmt.Fprintf(out, "  Fee collector: %s %s (1%%) to %s\n", fee.String(), asset.Symbol, color.CyanString(cfg.FeeRecipient))
			return nil
		},
	}
}
