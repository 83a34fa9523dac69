package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/config"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/server"
)

type runner interface {
	Run(ctx context.Context) error
}

// buildApp is the application factory. It's a variable so tests can swap it.
var buildApp = func(ctx context.Context, cfg *config.Config) (runner, error) {
	return server.Build(ctx, cfg)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the dashboard HTTP server",
		Long: `Builds the project store, blob store, activity hub and model bridge
from configuration and serves the HTML dashboard and the /v1 JSON API until
interrupted.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := app.Run(cmd.Context()); err != nil {
		return fmt.Errorf("run application: %w", err)
	}
	return nil
}
