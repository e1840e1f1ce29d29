package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

// Memory is an in-process store satisfying the full Storage contract.
// It backs tests and doubles as the fallback backend when nothing else
// is configured. All access is serialized, so at most one write per
// dedup key is ever in flight.
type Memory struct {
	mu          sync.Mutex
	records     map[string]domain.Item
	failKeys    map[string]bool
	upsertCalls int
}

var _ ports.Storage = (*Memory)(nil)

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:  map[string]domain.Item{},
		failKeys: map[string]bool{},
	}
}

// Name identifies the backend in logs and summaries.
func (m *Memory) Name() string {
	return "memory"
}

// UpsertItems applies the dedup-upsert contract: insert unknown keys,
// update records whose mutable content differs, count the rest as
// unchanged without writing.
func (m *Memory) UpsertItems(_ context.Context, items []domain.Item) ports.UpsertResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertCalls++
	now := time.Now()

	var result ports.UpsertResult
	for _, item := range items {
		if err := item.Validate(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		key := item.Key()
		if m.failKeys[key] {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("write failed for %s", key))
			continue
		}

		existing, ok := m.records[key]
		switch {
		case !ok:
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			item.UpdatedAt = now
			m.records[key] = item
			result.Inserted++
		case existing.ContentEquals(item):
			result.Unchanged++
		default:
			item.CreatedAt = existing.CreatedAt
			item.UpdatedAt = now
			m.records[key] = item
			result.Updated++
		}
	}
	return result
}

// QueryItems returns stored items matching the options, sorted by score
// descending with the dedup key as a deterministic tie-break.
func (m *Memory) QueryItems(_ context.Context, opts ports.QueryOptions) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sourceSet := map[string]bool{}
	for _, s := range opts.Sources {
		sourceSet[s] = true
	}

	var items []domain.Item
	for _, item := range m.records {
		if !opts.Since.IsZero() && item.SourceDate.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !item.SourceDate.Before(opts.Until) {
			continue
		}
		if len(sourceSet) > 0 && !sourceSet[item.SourceName] {
			continue
		}
		if item.Score < opts.MinScore {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Key() < items[j].Key()
	})

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// Cleanup deletes records whose source date is older than retentionDays.
func (m *Memory) Cleanup(_ context.Context, retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for key, item := range m.records {
		if !item.SourceDate.IsZero() && item.SourceDate.Before(cutoff) {
			delete(m.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// EnforceCeiling deletes oldest records first until the store is
// comfortably (10%) under the given record ceiling.
func (m *Memory) EnforceCeiling(_ context.Context, maxRecords int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxRecords < 1 || len(m.records) <= maxRecords {
		return 0, nil
	}
	target := maxRecords * 9 / 10

	keys := make([]string, 0, len(m.records))
	for key := range m.records {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.records[keys[i]], m.records[keys[j]]
		if !a.SourceDate.Equal(b.SourceDate) {
			return a.SourceDate.Before(b.SourceDate)
		}
		return keys[i] < keys[j]
	})

	deleted := 0
	for _, key := range keys {
		if len(m.records) <= target {
			break
		}
		delete(m.records, key)
		deleted++
	}
	return deleted, nil
}

// Stats reports a read-only snapshot without mutating state.
func (m *Memory) Stats(_ context.Context) (ports.StorageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ports.StorageStats{BySource: map[string]int{}}
	for _, item := range m.records {
		stats.TotalRecords++
		stats.BySource[item.SourceName]++
		if item.SourceDate.IsZero() {
			continue
		}
		if stats.Oldest.IsZero() || item.SourceDate.Before(stats.Oldest) {
			stats.Oldest = item.SourceDate
		}
		if stats.Newest.IsZero() || item.SourceDate.After(stats.Newest) {
			stats.Newest = item.SourceDate
		}
	}
	return stats, nil
}

// UpsertCalls reports how many upsert batches have been issued. Tests
// use it to prove dry-run performs zero writes.
func (m *Memory) UpsertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertCalls
}

// FailOn makes writes for the given dedup keys fail, for exercising
// per-item failure isolation in tests.
func (m *Memory) FailOn(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.failKeys[key] = true
	}
}
