package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/userop-builder/pkg/erc4337/bundler"
)

var (
	sendFlags intentFlags
	sendWait  bool

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Build, sign and submit a UserOperation",
		Long: `Build and sign a UserOperation, submit it to the configured bundler and
wait for the entry point to emit its UserOperationEvent`,
		Run: func(cmd *cobra.Command, args []string) {
			exitOnError(runSend(context.Background()))
		},
	}
)

func runSend(ctx context.Context) error {
	intent, batch, err := sendFlags.parse()
	if err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	w, err := loadWallet(ctx)
	if err != nil {
		return fmt.Errorf("cannot load wallet: %w", err)
	}
	defer w.Close()

	if w.config.BundlerURL == "" {
		return errors.New("bundler_url is not configured")
	}

	op, err := w.builder.BuildAndSign(ctx, intent, batch)
	if err != nil {
		return fmt.Errorf("cannot build user operation: %w", err)
	}
	if err := printUserOp(ctx, w, op); err != nil {
		return err
	}

	client, err := bundler.NewBundlerClient(ctx, w.config.BundlerURL, w.config.Logger)
	if err != nil {
		return fmt.Errorf("cannot connect to bundler: %w", err)
	}
	defer client.Close()

	userOpHash, err := client.SendUserOperation(ctx, op, w.builder.EntrypointAddress())
	if err != nil {
		return fmt.Errorf("bundler rejected user operation: %w", err)
	}
	fmt.Printf("submitted:            %s\n", userOpHash.Hex())

	if !sendWait {
		return nil
	}
	return waitForReceipt(ctx, w, userOpHash)
}

func init() {
	sendFlags.register(sendCmd)
	sendCmd.Flags().BoolVar(&sendWait, "wait", true, "wait for the operation to be mined")
	rootCmd.AddCommand(sendCmd)
}
