package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/captchagate/internal/config"
	"github.com/Rorqualx/captchagate/pkg/version"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "captchagate",
		Short: "CAPTCHA interception stage for crawl pipelines",
		Long: `captchagate inspects fetched pages for image CAPTCHA challenge forms,
asks a solver provider for the answer and builds the form resubmission.

It runs as an HTTP service (serve) for crawlers in any language, or drives
a single fetch chain from the command line (fetch). Settings come from
environment variables such as MAX_ATTEMPTS, TWOCAPTCHA_API_KEY and
CAPSOLVER_API_KEY.`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, applies flag overrides, sets up logging
// and validates. Logging comes first so validation warnings are visible.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	setupLogging(cfg.LogLevel, cfg.LogJSON)
	cfg.Validate()
	return cfg
}
