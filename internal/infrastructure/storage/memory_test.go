package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

func testItem(source, id, title string, age time.Duration) domain.Item {
	return domain.Item{
		SourceName: source,
		SourceID:   id,
		Title:      title,
		URL:        "https://example.com/" + id,
		SourceDate: time.Now().Add(-age).UTC(),
		Score:      0.5,
	}
}

func TestMemoryUpsertIdempotent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	items := []domain.Item{
		testItem("hackernews", "1", "First", time.Hour),
		testItem("hackernews", "2", "Second", time.Hour),
		testItem("github_trending", "owner/repo", "Repo", time.Hour),
	}

	first := store.UpsertItems(ctx, items)
	assert.Equal(t, 3, first.Inserted)
	assert.Zero(t, first.Updated)
	assert.Zero(t, first.Unchanged)
	assert.Zero(t, first.Failed)

	second := store.UpsertItems(ctx, items)
	assert.Zero(t, second.Inserted)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 3, second.Unchanged)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
}

func TestMemoryUpsertDetectsChanges(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	item := testItem("hackernews", "42", "Original title", time.Hour)
	store.UpsertItems(ctx, []domain.Item{item})

	item.Score = 0.9
	result := store.UpsertItems(ctx, []domain.Item{item})
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Inserted)

	got, err := store.QueryItems(ctx, ports.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].Score)
}

func TestMemoryUpsertIsolatesFailures(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	bad := testItem("hackernews", "7", "Doomed", time.Hour)
	store.FailOn(bad.Key())

	result := store.UpsertItems(ctx, []domain.Item{
		testItem("hackernews", "6", "Fine", time.Hour),
		bad,
		testItem("hackernews", "8", "Also fine", time.Hour),
	})
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
}

func TestMemoryRejectsInvalidItems(t *testing.T) {
	store := NewMemory()

	result := store.UpsertItems(context.Background(), []domain.Item{
		{SourceName: "hackernews", Title: "No ID", URL: "https://example.com"},
	})
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Inserted)
}

func TestMemoryQueryItems(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	low := testItem("hackernews", "1", "Low", time.Hour)
	low.Score = 0.2
	high := testItem("github_trending", "a/b", "High", time.Hour)
	high.Score = 0.9
	mid := testItem("product_hunt", "p1", "Mid", time.Hour)
	mid.Score = 0.5
	store.UpsertItems(ctx, []domain.Item{low, high, mid})

	got, err := store.QueryItems(ctx, ports.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "High", got[0].Title)
	assert.Equal(t, "Mid", got[1].Title)
	assert.Equal(t, "Low", got[2].Title)

	got, err = store.QueryItems(ctx, ports.QueryOptions{MinScore: 0.4})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.QueryItems(ctx, ports.QueryOptions{Sources: []string{"hackernews"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Low", got[0].Title)

	got, err = store.QueryItems(ctx, ports.QueryOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "High", got[0].Title)
}

func TestMemoryQueryItemsUntil(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	recent := testItem("hackernews", "1", "Recent", time.Hour)
	old := testItem("hackernews", "2", "Old", 72*time.Hour)
	store.UpsertItems(ctx, []domain.Item{recent, old})

	got, err := store.QueryItems(ctx, ports.QueryOptions{Until: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Old", got[0].Title)
}

func TestMemoryCleanup(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	stale := testItem("hackernews", "old", "Stale", 45*24*time.Hour)
	fresh := testItem("hackernews", "new", "Fresh", 10*24*time.Hour)
	undated := testItem("hackernews", "nodate", "Undated", 0)
	undated.SourceDate = time.Time{}
	store.UpsertItems(ctx, []domain.Item{stale, fresh, undated})

	deleted, err := store.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
}

func TestMemoryEnforceCeiling(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	var items []domain.Item
	for i := 0; i < 20; i++ {
		items = append(items, testItem("hackernews", string(rune('a'+i)), "Item", time.Duration(20-i)*24*time.Hour))
	}
	store.UpsertItems(ctx, items)

	deleted, err := store.EnforceCeiling(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, deleted) // down to 90% of the ceiling

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.TotalRecords)

	// The survivors are the newest records.
	got, err := store.QueryItems(ctx, ports.QueryOptions{})
	require.NoError(t, err)
	for _, item := range got {
		assert.True(t, item.SourceDate.After(time.Now().Add(-10*24*time.Hour)))
	}

	deleted, err = store.EnforceCeiling(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestMemoryStats(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	oldest := testItem("hackernews", "1", "Oldest", 72*time.Hour)
	newest := testItem("github_trending", "a/b", "Newest", time.Hour)
	store.UpsertItems(ctx, []domain.Item{oldest, newest, testItem("hackernews", "2", "Other", 2*time.Hour)})

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 2, stats.BySource["hackernews"])
	assert.Equal(t, 1, stats.BySource["github_trending"])
	assert.WithinDuration(t, oldest.SourceDate, stats.Oldest, time.Second)
	assert.WithinDuration(t, newest.SourceDate, stats.Newest, time.Second)
}
