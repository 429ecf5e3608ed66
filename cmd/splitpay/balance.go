package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vitwit/splitpay/receipt"
)

func newBalanceCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [asset]",
		Short: "Show the signer's balances",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			errOut := cmd.ErrOrStderr()

			cfg, err := loadConfig(global.configPath, global.simulate)
			if err != nil {
				return printError(errOut, err)
			}
			a, err := newApp(cfg, global)
			if err != nil {
				return printError(errOut, err)
			}

			session, err := a.sp.Connect(cmd.Context(), a.signer)
			if err != nil {
				return printError(errOut, err)
			}
			defer session.Close()

			symbols := args
			if len(symbols) == 0 {
				for _, asset := range cfg.Registry() {
					symbols = append(symbols, asset.Symbol)
				}
				sort.Strings(symbols)
			}

			balances := make(map[string]string, len(symbols))
			if !global.jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "\nBalances of %s\n\n", color.CyanString(session.Account))
			}
			for _, symbol := range symbols {
				asset, err := a.sp.Asset(symbol)
				if err != nil {
					return printError(errOut, err)
				}
				amount, err := a.sp.Balance(cmd.Context(), session, symbol)
				if err != nil {
					return printError(errOut, err)
				}
				balances[asset.Symbol] = amount.String()

				if !global.jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-6s %s\n",
						color.YellowString(asset.Symbol), receipt.FormatAmount(amount, asset.DisplayDecimals))
				}
			}

			if global.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"account":  session.Account,
					"balances": balances,
				})
			}
			return nil
		},
	}
}
