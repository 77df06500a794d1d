package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "schedulectl",
		Short:        "Compile show-time rules and sync performance schedules",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(
		newParseCmd(),
		newPreviewCmd(),
		newSyncCmd(),
		newTokenCmd(),
		newMigrateCmd(),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
