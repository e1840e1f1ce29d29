package ports

import (
	"context"
	"time"

	"ideadigest/internal/domain"
)

// Source pulls fresh items from one upstream platform. Implementations
// recover from expected failures (network, parse, rate limit) internally;
// a returned error means the whole fetch failed and yields zero items.
// The orchestrator treats both outcomes the same way and keeps going.
type Source interface {
	Name() string
	FetchItems(ctx context.Context, limit int) ([]domain.Item, error)
}

// UpsertResult aggregates the outcome of one upsert batch.
type UpsertResult struct {
	Inserted  int
	Updated   int
	Unchanged int
	Failed    int
	Errors    []string
}

// Processed is the number of records written or confirmed unchanged.
func (r UpsertResult) Processed() int {
	return r.Inserted + r.Updated + r.Unchanged
}

// StorageStats is a read-only snapshot of the store.
type StorageStats struct {
	TotalRecords int
	BySource     map[string]int
	Oldest       time.Time
	Newest       time.Time
}

// QueryOptions filters stored items for the digest and for inspection.
// Results are always sorted by score descending.
type QueryOptions struct {
	Since    time.Time
	Until    time.Time // exclusive; zero means unbounded
	Sources  []string
	MinScore float64
	Limit    int
}

// Storage persists items with idempotent dedup-upsert semantics keyed by
// domain.Item.Key(). A lookup or write failure for one item must not block
// the rest of the batch.
type Storage interface {
	Name() string
	UpsertItems(ctx context.Context, items []domain.Item) UpsertResult
	QueryItems(ctx context.Context, opts QueryOptions) ([]domain.Item, error)
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	EnforceCeiling(ctx context.Context, maxRecords int) (int, error)
	Stats(ctx context.Context) (StorageStats, error)
}

// Notifier delivers a rendered digest to an outbound channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// InsightClient asks an LLM for a short commentary on the day's top items.
type InsightClient interface {
	GenerateInsight(ctx context.Context, items []domain.Item) (string, error)
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
