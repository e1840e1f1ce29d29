package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ideadigest/internal/digest"
	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
	"ideadigest/internal/scoring"
)

// PipelineDeps wires all driven adapters into the orchestration
// pipeline. Notifier and Digest are optional.
type PipelineDeps struct {
	Sources  []ports.Source
	Storage  ports.Storage
	Digest   *digest.Generator
	Notifier ports.Notifier
	Themes   []scoring.Theme
	Logger   *slog.Logger

	// FetchLimit caps items per source when a run gives no override.
	FetchLimit int

	RetentionDays int
	MaxRecords    int
	AutoCleanup   bool
}

// Options carry per-run overrides on top of the wired configuration.
type Options struct {
	DryRun         bool
	LimitPerSource int
	Sources        []string
	SkipDigest     bool
}

// SourceResult records the outcome of fetching one source.
type SourceResult struct {
	SourceName   string
	ItemsFetched int
	Succeeded    bool
	Error        string
	Duration     time.Duration
}

// RunSummary is the complete result of one pipeline execution.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool

	SourceResults []SourceResult
	TotalFetched  int
	TotalScored   int

	Upsert           *ports.UpsertResult
	RetentionDeleted int
	CeilingDeleted   int

	Digest *digest.Result

	Errors []string
}

// SourcesSucceeded counts sources that fetched without error.
func (s RunSummary) SourcesSucceeded() int {
	n := 0
	for _, sr := range s.SourceResults {
		if sr.Succeeded {
			n++
		}
	}
	return n
}

// SourcesFailed counts sources whose fetch failed entirely.
func (s RunSummary) SourcesFailed() int {
	return len(s.SourceResults) - s.SourcesSucceeded()
}

// Duration reports the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Summary renders a human-readable execution report.
func (s RunSummary) Summary() string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	mode := "LIVE"
	if s.DryRun {
		mode = "DRY RUN"
	}

	fmt.Fprintf(&b, "%s\nPIPELINE EXECUTION SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Run:      %s\n", s.RunID)
	fmt.Fprintf(&b, "Started:  %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %.2fs\n", s.Duration().Seconds())
	fmt.Fprintf(&b, "Mode:     %s\n\nSources:\n", mode)

	for _, sr := range s.SourceResults {
		status := "ok"
		if !sr.Succeeded {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "  [%s] %s: %d items (%dms)\n", status, sr.SourceName, sr.ItemsFetched, sr.Duration.Milliseconds())
		if sr.Error != "" {
			fmt.Fprintf(&b, "      error: %s\n", sr.Error)
		}
	}

	fmt.Fprintf(&b, "\nTotal fetched: %d\nTotal scored:  %d\n", s.TotalFetched, s.TotalScored)

	switch {
	case s.DryRun:
		b.WriteString("\nStorage: SKIPPED (dry-run mode)\n")
	case s.Upsert != nil:
		fmt.Fprintf(&b, "\nStorage:\n  Inserted:  %d\n  Updated:   %d\n  Unchanged: %d\n  Failed:    %d\n",
			s.Upsert.Inserted, s.Upsert.Updated, s.Upsert.Unchanged, s.Upsert.Failed)
		if s.RetentionDeleted > 0 || s.CeilingDeleted > 0 {
			fmt.Fprintf(&b, "  Cleaned:   %d (retention) + %d (ceiling)\n", s.RetentionDeleted, s.CeilingDeleted)
		}
	}

	switch {
	case s.DryRun:
		b.WriteString("\nDigest: SKIPPED (dry-run mode)\n")
	case s.Digest != nil && s.Digest.Path != "":
		fmt.Fprintf(&b, "\nDigest:\n  File:   %s\n  Items:  %d\n  Themes: %s\n",
			s.Digest.Path, s.Digest.ItemsIncluded, strings.Join(s.Digest.ThemesCovered, ", "))
	}

	if len(s.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		shown := s.Errors
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, err := range shown {
			fmt.Fprintf(&b, "  - %s\n", err)
		}
	}

	b.WriteString(rule)
	return b.String()
}

// Pipeline implements the fetch, score, store, clean, digest workflow.
type Pipeline struct {
	deps PipelineDeps
	log  *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(deps.Themes) == 0 {
		deps.Themes = scoring.DefaultThemes()
	}
	return &Pipeline{deps: deps, log: log}
}

// Run executes the full pipeline. Source failures are isolated: a
// source that errors contributes zero items and a failure record, and
// the remaining sources still run. A dry run fetches and scores but
// never writes.
func (p *Pipeline) Run(ctx context.Context, opts Options) (summary RunSummary) {
	summary = RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		DryRun:    opts.DryRun,
	}
	defer func() { summary.FinishedAt = time.Now() }()

	sources := p.selectSources(opts.Sources)
	p.log.Info("pipeline run started", "run_id", summary.RunID, "sources", len(sources), "dry_run", opts.DryRun)

	limit := opts.LimitPerSource
	if limit <= 0 {
		limit = p.deps.FetchLimit
	}
	items := p.fetchAll(ctx, sources, limit, &summary)
	summary.TotalFetched = len(items)

	scoredAt := summary.StartedAt.UTC()
	scored := make([]domain.Item, 0, len(items))
	for _, item := range items {
		scored = append(scored, scoring.Apply(item, scoredAt, p.deps.Themes))
	}
	summary.TotalScored = len(scored)

	if opts.DryRun {
		p.log.Info("dry run complete", "run_id", summary.RunID, "fetched", summary.TotalFetched)
		return summary
	}

	if len(scored) > 0 && p.deps.Storage != nil {
		result := p.deps.Storage.UpsertItems(ctx, scored)
		summary.Upsert = &result
		summary.Errors = append(summary.Errors, result.Errors...)
		p.log.Info("items stored",
			"run_id", summary.RunID,
			"inserted", result.Inserted,
			"updated", result.Updated,
			"unchanged", result.Unchanged,
			"failed", result.Failed)
	}

	p.cleanup(ctx, &summary)

	if !opts.SkipDigest && p.deps.Digest != nil {
		p.generateDigest(ctx, &summary)
	}

	return summary
}

func (p *Pipeline) selectSources(names []string) []ports.Source {
	if len(names) == 0 {
		return p.deps.Sources
	}
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}
	var selected []ports.Source
	for _, src := range p.deps.Sources {
		if wanted[src.Name()] {
			selected = append(selected, src)
		}
	}
	return selected
}

func (p *Pipeline) fetchAll(ctx context.Context, sources []ports.Source, limit int, summary *RunSummary) []domain.Item {
	var all []domain.Item
	for _, src := range sources {
		start := time.Now()
		items, err := src.FetchItems(ctx, limit)
		elapsed := time.Since(start)

		result := SourceResult{
			SourceName: src.Name(),
			Duration:   elapsed,
		}
		if err != nil {
			result.Error = err.Error()
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", src.Name(), err))
			p.log.Warn("source fetch failed", "source", src.Name(), "error", err)
		} else {
			result.Succeeded = true
			result.ItemsFetched = len(items)
			all = append(all, items...)
			p.log.Info("source fetched", "source", src.Name(), "items", len(items), "duration_ms", elapsed.Milliseconds())
		}
		summary.SourceResults = append(summary.SourceResults, result)
	}
	return all
}

func (p *Pipeline) cleanup(ctx context.Context, summary *RunSummary) {
	if !p.deps.AutoCleanup || p.deps.Storage == nil {
		return
	}

	if p.deps.RetentionDays > 0 {
		deleted, err := p.deps.Storage.Cleanup(ctx, p.deps.RetentionDays)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("retention cleanup: %v", err))
			p.log.Warn("retention cleanup failed", "error", err)
		} else {
			summary.RetentionDeleted = deleted
		}
	}

	if p.deps.MaxRecords > 0 {
		deleted, err := p.deps.Storage.EnforceCeiling(ctx, p.deps.MaxRecords)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("ceiling cleanup: %v", err))
			p.log.Warn("ceiling cleanup failed", "error", err)
		} else {
			summary.CeilingDeleted = deleted
		}
	}
}

func (p *Pipeline) generateDigest(ctx context.Context, summary *RunSummary) {
	result, err := p.deps.Digest.Generate(ctx, summary.StartedAt)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("digest: %v", err))
		p.log.Warn("digest generation failed", "error", err)
		return
	}
	summary.Digest = &result

	if p.deps.Notifier == nil || result.Content == "" {
		return
	}
	if err := p.deps.Notifier.PublishDigest(ctx, result.Content); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("notify: %v", err))
		p.log.Warn("digest delivery failed", "error", err)
	}
}
