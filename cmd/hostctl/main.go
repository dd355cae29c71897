// Command hostctl is the WASM component host runtime's CLI: lock a
// manifest into its immutable locked-app form, validate a manifest
// without running anything, or serve an app by driving its configured
// triggers until terminated.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hostctl",
	Short: "hostctl drives the WASM component host runtime",
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLockCmd())
	rootCmd.AddCommand(newValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
