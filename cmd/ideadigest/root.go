package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ideadigest/internal/app"
	"ideadigest/internal/config"
	"ideadigest/internal/logging"
	"ideadigest/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagVerbose        bool
	flagDryRun         bool
	flagLimitPerSource int
	flagSources        []string
	flagSkipDigest     bool
	flagDigestLimit    int
	flagDigestDays     int
	flagDigestDate     string
)

var rootCmd = &cobra.Command{
	Use:   "ideadigest",
	Short: "Collect, score and digest tech ideas",
	Long: `ideadigest fetches launches and discussions from Hacker News, GitHub
Trending and Product Hunt, scores them against configurable themes,
stores them with deduplication and renders a daily Markdown digest.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "fetch and score without writing anything")
	runCmd.Flags().IntVar(&flagLimitPerSource, "limit-per-source", 0, "max items per source (0 = config value)")
	runCmd.Flags().StringSliceVar(&flagSources, "sources", nil, "restrict the run to these sources")
	runCmd.Flags().BoolVar(&flagSkipDigest, "skip-digest", false, "skip digest generation")
	runCmd.Flags().IntVar(&flagDigestLimit, "digest-limit", 0, "max items in the digest (0 = config value)")
	runCmd.Flags().IntVar(&flagDigestDays, "digest-days", 0, "days of items to include in the digest (0 = config value)")

	digestCmd.Flags().StringVar(&flagDigestDate, "date", "", "digest date as YYYY-MM-DD (default: today)")
	digestCmd.Flags().IntVar(&flagDigestLimit, "digest-limit", 0, "max items in the digest (0 = config value)")
	digestCmd.Flags().IntVar(&flagDigestDays, "digest-days", 0, "days of items to include (0 = config value)")

	rootCmd.AddCommand(runCmd, digestCmd, cleanupCmd, statsCmd, scheduleCmd, versionCmd)
}

// buildApp loads configuration, validates it and wires the application.
func buildApp() (*app.Application, *slog.Logger, error) {
	cfg := config.Load()
	if flagVerbose {
		cfg.Logging.Level = "debug"
	}
	if flagDigestLimit > 0 {
		cfg.Digest.Limit = flagDigestLimit
	}
	if flagDigestDays > 0 {
		cfg.Digest.Days = flagDigestDays
	}

	logger := logging.New(cfg.Logging.Level)

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, problem := range problems {
			logger.Error("invalid configuration", "error", problem)
		}
		return nil, nil, fmt.Errorf("configuration is invalid (%d problems)", len(problems))
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Close()

		summary := application.Run(cmd.Context(), usecase.Options{
			DryRun:         flagDryRun,
			LimitPerSource: flagLimitPerSource,
			Sources:        flagSources,
			SkipDigest:     flagSkipDigest,
		})
		fmt.Println(summary.Summary())

		if summary.SourcesFailed() == len(summary.SourceResults) && len(summary.SourceResults) > 0 {
			return fmt.Errorf("all sources failed")
		}
		return nil
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Generate a digest from already stored items",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Close()

		date := time.Now()
		if flagDigestDate != "" {
			date, err = time.Parse("2006-01-02", flagDigestDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
		}

		result, err := application.GenerateDigest(cmd.Context(), date)
		if err != nil {
			return err
		}
		if result.Path == "" {
			fmt.Println("No items found for digest.")
			return nil
		}
		fmt.Printf("Digest written to %s (%d items).\n", result.Path, result.ItemsIncluded)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records past retention and enforce the record ceiling",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Close()

		retention, ceiling, err := application.Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d record(s) past retention, %d over the ceiling.\n", retention, ceiling)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Close()

		stats, err := application.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Total records: %d\n", stats.TotalRecords)
		sources := make([]string, 0, len(stats.BySource))
		for source := range stats.BySource {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		for _, source := range sources {
			fmt.Printf("  %s: %d\n", source, stats.BySource[source])
		}
		if !stats.Oldest.IsZero() {
			fmt.Printf("Oldest: %s\n", stats.Oldest.Format("2006-01-02"))
			fmt.Printf("Newest: %s\n", stats.Newest.Format("2006-01-02"))
		}
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, logger, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("running until interrupted")
		return application.Schedule(ctx, usecase.Options{
			LimitPerSource: flagLimitPerSource,
			SkipDigest:     flagSkipDigest,
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ideadigest %s (commit: %s)\n", version, commit)
	},
}
