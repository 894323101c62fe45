package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	configPath = "./config/wallet.yaml"
	rootCmd    = &cobra.Command{
		Use:   "userop",
		Short: "ERC-4337 UserOperation CLI",
		Long: `Build, sign and submit ERC-4337 (EntryPoint v0.6) UserOperations
for a SimpleAccount smart wallet.

Such as "userop address" or "userop send --to 0x... --value 0.01" and so on
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/wallet.yaml", "Path to config file")
}

// exitOnError runs after the command body returned, so its deferred cleanups have run.
func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
