package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vitwit/splitpay/receipt"
	"github.com/vitwit/splitpay/utils"
)

func newReceiptsCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "receipts [id]",
		Short: "List stored receipts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			errOut := cmd.ErrOrStderr()

			cfg, err := loadConfig(global.configPath, global.simulate)
			if err != nil {
				return printError(errOut, err)
			}
			store, err := receipt.NewFileStore(cfg.ReceiptsFile)
			if err != nil {
				return printError(errOut, err)
			}

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				r, ok := store.Get(args[0])
				if !ok {
					return printError(errOut, fmt.Errorf("receipt '%s' not found", args[0]))
				}
				if global.jsonOutput {
					data, err := utils.SerializeReceipt(r)
					if err != nil {
						return printError(errOut, err)
					}
					return writeJSON(out, data)
				}
				fmt.Fprintf(out, "%s  %s\n", color.CyanString(r.ID), r.Message)
				return nil
			}

			receipts := store.List()
			if global.jsonOutput {
				return printJSON(out, receipts)
			}
			if len(receipts) == 0 {
				fmt.Fprintln(out, "No receipts yet.")
				return nil
			}
			for _, r := range receipts {
				fmt.Fprintf(out, "%s  %s  %s\n",
					r.FinalizedAt.Format("2006-01-02 15:04:05"), color.CyanString(r.ID), r.Message)
			}
			return nil
		},
	}
}
