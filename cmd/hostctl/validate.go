package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wasmfactors/runtime/pkg/manifest"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest.toml>",
		Short: "Parse and schema-validate a manifest without locking or loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading manifest: %w", err)
			}
			if _, err := manifest.Parse(data); err != nil {
				return fmt.Errorf("manifest invalid: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "manifest is valid")
			return nil
		},
	}
	return cmd
}
