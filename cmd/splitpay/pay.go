package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vitwit/splitpay"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/transfer"
	"github.com/vitwit/splitpay/types"
	"github.com/vitwit/splitpay/utils"
)

type payFlags struct {
	feeAsset    string
	requestFile string
	noConfirm   bool
}

func newPayCmd(global *globalFlags) *cobra.Command {
	flags := &payFlags{}

	cmd := &cobra.Command{
		Use:   "pay <asset> <amount> <recipient>",
		Short: "Send a split payment",
		Long: `Send amount of asset: 99% to recipient and 1% to the configured fee collector,
as one atomic batch. The command waits for finality and prints the receipt.

Examples:
  splitpay pay USDT 10 15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5
  splitpay pay DOT 2.5 <recipient> --fee-asset DOT
  splitpay pay --request payment.json --yes`,
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.requestFile != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPay(cmd, global, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.feeAsset, "fee-asset", "", "Asset used to pay network fees (default from config)")
	cmd.Flags().StringVar(&flags.requestFile, "request", "", "Read the payment request from a JSON file")
	cmd.Flags().BoolVarP(&flags.noConfirm, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func runPay(cmd *cobra.Command, global *globalFlags, flags *payFlags, args []string) error {
	ctx := cmd.Context()
	errOut := cmd.ErrOrStderr()

	// --json has no interactive prompt, so signing must be approved upfront
	if global.jsonOutput && !flags.noConfirm {
		return printError(errOut, errors.New("--json requires --yes to sign without a confirmation prompt"))
	}

	cfg, err := loadConfig(global.configPath, global.simulate)
	if err != nil {
		return printError(errOut, err)
	}

	a, err := newApp(cfg, global)
	if err != nil {
		return printError(errOut, err)
	}

	signer := a.signer
	if !flags.noConfirm {
		signer = &clients.ConfirmingSigner{
			Signer:  signer,
			Confirm: promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout()),
		}
	}

	session, err := a.sp.Connect(ctx, signer)
	if err != nil {
		return printError(errOut, err)
	}
	defer session.Close()

	req, err := buildRequest(a.sp, session, flags, args)
	if err != nil {
		return printError(errOut, err)
	}

	unlock, err := a.sp.Locks().Lock(ctx, session.Account)
	if err != nil {
		return printError(errOut, err)
	}
	defer unlock()

	progress := newProgressPrinter(errOut, global.jsonOutput)
	result, err := a.sp.Pay(ctx, session, req, progress.Sink)
	progress.Stop()
	if err != nil {
		if global.jsonOutput {
			_ = printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"state": types.StateFailed,
				"error": err.Error(),
			})
		}
		return err
	}

	if global.jsonOutput {
		data, err := utils.SerializePaymentResult(result)
		if err != nil {
			return printError(errOut, err)
		}
		return writeJSON(cmd.OutOrStdout(), data)
	}

	displayResult(cmd.OutOrStdout(), result)
	return nil
}

func buildRequest(sp *splitpay.Splitpay, session *splitpay.Session, flags *payFlags, args []string) (*types.PaymentRequest, error) {
	var (
		req *types.PaymentRequest
		err error
	)

	if flags.requestFile != "" {
		data, readErr := os.ReadFile(flags.requestFile)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read request: %w", readErr)
		}
		req, err = utils.ParsePaymentRequest(data, sp.Config().Registry())
	} else {
		amount, amountErr := utils.ValidateAmount(args[1])
		if amountErr != nil {
			return nil, amountErr
		}
		req, err = sp.NewPaymentRequest(session, args[0], amount, args[2])
	}
	if err != nil {
		return nil, err
	}

	if flags.feeAsset != "" {
		fa, err := sp.Asset(flags.feeAsset)
		if err != nil {
			return nil, err
		}
		req.FeeAsset = nil
		if !fa.Native {
			req.FeeAsset = &fa
		}
	}

	return req, nil
}

// promptConfirm shows the batch and asks for approval before signing.
func promptConfirm(in io.Reader, out io.Writer) clients.Confirm {
	reader := bufio.NewReader(in)

	return func(_ context.Context, set *types.TransferSet) (bool, error) {
		asset := set.Asset()
		recipient, fee := set.Recipient(), set.Fee()

		fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))
		color.New(color.FgGreen).Fprintln(out, "                    SPLIT PAYMENT")
		fmt.Fprintln(out, strings.Repeat("=", 60))
		fmt.Fprintf(out, "\n  Amount:        %s %s\n", set.Requested.String(), color.YellowString(asset.Symbol))
		fmt.Fprintf(out, "  Recipient:     %s %s\n", transfer.FromAtomic(recipient.Amount, asset.Decimals).String(), color.CyanString(recipient.Destination))
		fmt.Fprintf(out, "  Fee collector: %s %s\n", transfer.FromAtomic(fee.Amount, asset.Decimals).String(), color.CyanString(fee.Destination))
		feeAsset := types.AssetDOT.Symbol
		if set.FeeAsset != nil {
			feeAsset = set.FeeAsset.Symbol
		}
		fmt.Fprintf(out, "  Network fee:   paid in %s\n", feeAsset)
		fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))

		fmt.Fprint(out, "\nSign and send? (y/N): ")
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return false, nil
		}

		response = strings.TrimSpace(strings.ToLower(response))
		return response == "y" || response == "yes", nil
	}
}

func displayResult(out io.Writer, result *types.PaymentResult) {
	if result.Cancelled() {
		fmt.Fprintln(out, "\nPayment cancelled.")
		return
	}

	fmt.Fprintln(out)
	if result.Receipt != nil {
		fmt.Fprintf(out, "  Receipt:   %s\n", color.CyanString(result.Receipt.ID))
		fmt.Fprintf(out, "  %s\n", result.Receipt.Message)
		if result.Receipt.Unverified {
			color.New(color.FgYellow).Fprintln(out, "  Warning: the block's events could not be read; check the transfer on an explorer.")
		}
	}
	if result.Fee != nil {
		fmt.Fprintf(out, "  %s\n", result.Fee.Message)
	}
}
