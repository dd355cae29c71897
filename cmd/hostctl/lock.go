package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wasmfactors/runtime/internal/host"
)

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <manifest.toml>",
		Short: "Resolve a manifest into its immutable locked-app form and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := host.LockManifest(args[0])
			if err != nil {
				return fmt.Errorf("locking manifest: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(app)
		},
	}
	return cmd
}
