// babyctl is the operational companion to the server: it runs correction
// passes and prints analytics against the same configured store, replacing
// the one-shot repair scripts that used to do this job.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/config"
	"github.com/yourname/babylog/internal/service"
	"github.com/yourname/babylog/internal/storage"
)

func newStore(ctx context.Context) (storage.EventStore, *config.Config, internal.Logger, error) {
	cfg := config.Load()
	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := storage.NewEventStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, cfg, logger, nil
}

func printYAML(v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func newCorrectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct <kind>",
		Short: "Run one idempotent correction pass over the whole history",
		Long: `Run one correction pass. Kinds:
  trim_overlap             re-end sessions at the earliest event recorded inside them
  unbounded                cap sessions recorded longer than 12 hours
  same_caregiver_overlap   shift overlapping sessions of one caregiver apart
  cross_caregiver_overlap  shift overlapping sessions of different caregivers apart
  anomalies                scan and report, fix nothing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, logger, err := newStore(ctx)
			if err != nil {
				return err
			}
			report, err := service.RunCorrectionPass(ctx, store, logger, service.PassKind(args[0]))
			if err != nil {
				return err
			}
			return printYAML(report)
		},
	}
}

func newAnalyticsCmd() *cobra.Command {
	var asOfFlag, tzFlag string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print the derived analytics snapshot for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, cfg, _, err := newStore(ctx)
			if err != nil {
				return err
			}
			loc := cfg.Location()
			if tzFlag != "" {
				if loc, err = time.LoadLocation(tzFlag); err != nil {
					return fmt.Errorf("unknown timezone %q", tzFlag)
				}
			}
			asOf := time.Now()
			if asOfFlag != "" {
				if asOf, err = time.Parse(time.RFC3339, asOfFlag); err != nil {
					return fmt.Errorf("--as-of must be RFC3339")
				}
			}
			snap, err := service.ComputeAnalytics(ctx, store, asOf, loc, cfg.RecommendedSleepMinutes)
			if err != nil {
				return err
			}
			return printYAML(snap)
		},
	}
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "compute as of this RFC3339 instant (default now)")
	cmd.Flags().StringVar(&tzFlag, "tz", "", "override the household timezone")
	return cmd
}

func newInsightsCmd() *cobra.Command {
	var tzFlag string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Print longitudinal pattern insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, cfg, _, err := newStore(ctx)
			if err != nil {
				return err
			}
			loc := cfg.Location()
			if tzFlag != "" {
				if loc, err = time.LoadLocation(tzFlag); err != nil {
					return fmt.Errorf("unknown timezone %q", tzFlag)
				}
			}
			insights, err := service.ComputePatternInsights(ctx, store, loc)
			if err != nil {
				return err
			}
			return printYAML(insights)
		},
	}
	cmd.Flags().StringVar(&tzFlag, "tz", "", "override the household timezone")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "babyctl",
		Short:         "Operational tool for the babylog event store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newCorrectCmd(), newAnalyticsCmd(), newInsightsCmd())
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
