// Package cmd defines and implements the CLI commands for the scrapydash executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/config"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/logging"
)

var cfgFile string

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrapydash",
		Short: "AI-assisted dashboard for authoring Scrapy spiders.",
		Long: `scrapydash serves a dashboard for describing scraping goals, generating
Scrapy spider code with a hosted model, reviewing and refactoring that code,
and exporting it. Spiders are authored here, never executed.`,
		SilenceUsage: true,

		// Config is loaded once, after flags are parsed and before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, &cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables use the SCRAPYDASH_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newProbeCmd())
	return cmd
}

func resolveConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger, lerr := logging.New(false)
		if lerr != nil {
			logger = zap.NewExample()
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
