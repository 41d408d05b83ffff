package commands

import (
	"fmt"

	"github.com/asaidimu/go-dataloader/internal/ui"
	"github.com/asaidimu/go-dataloader/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	var full, asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Version needs neither configuration nor a logger.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return ui.PrintJSON(out, info)
			case full:
				fmt.Fprintln(out, info.FullString())
			default:
				fmt.Fprintln(out, info.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print build details")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
