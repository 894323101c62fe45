package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/userop-builder/pkg/erc4337/bundler"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt <userOpHash>",
	Short: "Wait for a UserOperation to be mined",
	Long: `Poll the entry point logs for the UserOperationEvent of the given hash and
print the transaction that included it`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runReceipt(context.Background(), args[0]))
	},
}

func runReceipt(ctx context.Context, rawHash string) error {
	raw, err := hexutil.Decode(rawHash)
	if err != nil || len(raw) != common.HashLength {
		return fmt.Errorf("invalid userOpHash %q", rawHash)
	}

	w, err := loadWallet(ctx)
	if err != nil {
		return fmt.Errorf("cannot load wallet: %w", err)
	}
	defer w.Close()

	return waitForReceipt(ctx, w, common.BytesToHash(raw))
}

func waitForReceipt(ctx context.Context, w *wallet, userOpHash common.Hash) error {
	fmt.Printf("waiting up to %s for %s\n", w.config.ReceiptTimeout, userOpHash.Hex())

	txHash, found, err := w.builder.AwaitReceipt(ctx, userOpHash, w.config.ReceiptTimeout, w.config.ReceiptInterval)
	if err != nil {
		return fmt.Errorf("cannot query receipt: %w", err)
	}
	if !found {
		fmt.Printf("not mined after %s, try again later with: userop receipt %s\n", w.config.ReceiptTimeout, userOpHash.Hex())
		return nil
	}
	fmt.Printf("transaction:          %s\n", txHash.Hex())

	if w.config.BundlerURL == "" {
		return nil
	}

	// The bundler knows the execution outcome, the event lookup only the inclusion.
	client, err := bundler.NewBundlerClient(ctx, w.config.BundlerURL, w.config.Logger)
	if err != nil {
		w.config.Logger.Warn("cannot connect to bundler", "error", err)
		return nil
	}
	defer client.Close()

	receipt, err := client.GetUserOperationReceipt(ctx, userOpHash)
	if err != nil || receipt == nil {
		w.config.Logger.Warn("bundler has no receipt", "userOpHash", userOpHash.Hex(), "error", err)
		return nil
	}
	fmt.Printf("success:              %t\n", receipt.Success)
	if receipt.ActualGasCost != nil {
		fmt.Printf("actualGasCost:        %s gwei\n", formatGwei(receipt.ActualGasCost.ToInt()))
	}
	if receipt.Reason != "" {
		fmt.Printf("reason:               %s\n", receipt.Reason)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(receiptCmd)
}
