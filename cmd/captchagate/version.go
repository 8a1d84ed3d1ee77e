package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/captchagate/pkg/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "captchagate version %s\n", version.Full())
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", version.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  go:     %s\n", version.GoVersion())
		},
	}
}
