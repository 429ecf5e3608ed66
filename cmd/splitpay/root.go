package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vitwit/splitpay"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	simulate   bool
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "splitpay",
		Short: "Split payments on Polkadot Asset Hub",
		Long: `splitpay sends a payment as one atomic batch: 99% to the recipient and 1%
to the configured fee collector, then waits for finality and prints a receipt.

Configuration is read from .splitpay.yaml (home or working directory), a .env
file, and SPLITPAY_* environment variables.

Examples:
  splitpay pay USDT 10.5 15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5
  splitpay pay BRLd 1000 <recipient> --fee-asset USDT --yes
  splitpay balance
  splitpay split BRLd 1000
  splitpay receipts`,
		Version:       splitpay.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default .splitpay.yaml)")
	root.PersistentFlags().BoolVar(&flags.simulate, "simulate", false, "Run against an in-memory chain")
	root.PersistentFlags().BoolVarP(&flags.jsonOutput, "json", "j", false, "Output in JSON format")

	root.AddCommand(
		newPayCmd(flags),
		newBalanceCmd(flags),
		newSplitCmd(flags),
		newReceiptsCmd(flags),
	)

	return root
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeJSON prints an already serialized document.
func writeJSON(w io.Writer, data []byte) error {
	_, err := fmt.Fprintln(w, string(data))
	return err
}

// printError reports err and hands it back for RunE.
func printError(w io.Writer, err error) error {
	fmt.Fprintln(w, color.RedString("Error: %v", err))
	return err
}
