package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/detector"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/logging"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
)

// newProbeCmd runs the wizard preflight from the command line.
func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <url>",
		Short: "Fetches one page and reports what a spider would see",
		Long: `Performs the same one-shot preflight the wizard uses: a single fetch
(robots.txt respected unless disabled in config) reporting status, title, size
and whether the page looks JavaScript-rendered. Links are never followed.`,
		Args: cobra.ExactArgs(1),
		RunE: runProbeCommand,
	}
}

func runProbeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	p := probe.New(probe.Config{
		UserAgent:          cfg.Probe.UserAgent,
		RespectRobots:      cfg.Probe.RespectRobots,
		Timeout:            time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		PromotionThreshold: cfg.Probe.PromotionThreshold,
		AllowPrivate:       cfg.Probe.AllowPrivate,
	}, detector.NewSPA(cfg.Probe.PromotionThreshold), logging.Named(logger, "probe"))

	report, err := p.Check(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("probe %s: %w", args[0], err)
	}
	logger.Debug("probe finished", zap.Int("status", report.StatusCode), zap.Duration("duration", report.Duration))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
