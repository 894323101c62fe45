package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/userop-builder/core/chainio/aa"
	"github.com/AvaProtocol/userop-builder/pkg/byte4"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
)

var (
	buildFlags intentFlags
	buildSign  bool

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build a UserOperation without sending it",
		Long: `Build a UserOperation for one call, or an atomic batch when --to is repeated,
and print it as the JSON a bundler accepts`,
		Run: func(cmd *cobra.Command, args []string) {
			exitOnError(runBuild(context.Background()))
		},
	}
)

func runBuild(ctx context.Context) error {
	intent, batch, err := buildFlags.parse()
	if err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	w, err := loadWallet(ctx)
	if err != nil {
		return fmt.Errorf("cannot load wallet: %w", err)
	}
	defer w.Close()

	var op userop.UserOperation
	if buildSign {
		op, err = w.builder.BuildAndSign(ctx, intent, batch)
	} else {
		op, err = w.builder.BuildUnsigned(ctx, intent, batch)
	}
	if err != nil {
		return fmt.Errorf("cannot build user operation: %w", err)
	}

	return printUserOp(ctx, w, op)
}

func printUserOp(ctx context.Context, w *wallet, op userop.UserOperation) error {
	hash, err := w.builder.UserOpHash(ctx, op)
	if err != nil {
		return fmt.Errorf("cannot hash user operation: %w", err)
	}

	out, err := json.MarshalIndent(op, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode user operation: %w", err)
	}

	fmt.Printf("%s\n", out)
	fmt.Printf("userOpHash:           %s\n", hash.Hex())
	fmt.Printf("maxFeePerGas:         %s gwei\n", formatGwei(op.MaxFeePerGas))
	fmt.Printf("maxPriorityFeePerGas: %s gwei\n", formatGwei(op.MaxPriorityFeePerGas))
	fmt.Printf("sponsored:            %t\n", len(op.PaymasterAndData) > 0)

	if method, _, err := byte4.DecodeCalldata(aa.SimpleAccountABI, op.CallData); err == nil {
		fmt.Printf("account call:         %s\n", method.Sig)
	}
	return nil
}

func init() {
	buildFlags.register(buildCmd)
	buildCmd.Flags().BoolVar(&buildSign, "sign", false, "sign the operation with the controller key")
	rootCmd.AddCommand(buildCmd)
}
