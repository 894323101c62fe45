package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the smart wallet address",
	Long:  `Print the owner, the smart wallet address and whether the wallet is deployed yet`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runAddress(context.Background()))
	},
}

func runAddress(ctx context.Context) error {
	w, err := loadWallet(ctx)
	if err != nil {
		return fmt.Errorf("cannot load wallet: %w", err)
	}
	defer w.Close()

	sender, err := w.builder.Sender(ctx)
	if err != nil {
		return fmt.Errorf("cannot resolve wallet address: %w", err)
	}

	phantom, err := w.builder.ResolveDeploymentState(ctx)
	if err != nil {
		return fmt.Errorf("cannot check deployment: %w", err)
	}

	fmt.Printf("owner:      %s\n", w.account.Owner().Hex())
	fmt.Printf("wallet:     %s\n", sender.Hex())
	fmt.Printf("factory:    %s\n", w.config.FactoryAddress.Hex())
	fmt.Printf("salt:       %s\n", w.config.Salt.String())
	fmt.Printf("deployed:   %t\n", !phantom)
	return nil
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
