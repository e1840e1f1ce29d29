package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteUpsertRoundTrip(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	item := domain.Item{
		SourceName:  "product_hunt",
		SourceID:    "post-1",
		Title:       "Launchpad",
		Description: "A tool for launching tools",
		URL:         "https://example.com/launchpad",
		SourceDate:  time.Now().Add(-6 * time.Hour).UTC().Truncate(time.Second),
		Score:       0.73,
		Tags:        []string{"developer-tools", "saas-business"},
		Votes:       120,
		Maker:       &domain.Maker{Name: "Sam", Username: "sam"},
	}

	first := store.UpsertItems(ctx, []domain.Item{item})
	require.Zero(t, first.Failed, "errors: %v", first.Errors)
	assert.Equal(t, 1, first.Inserted)

	second := store.UpsertItems(ctx, []domain.Item{item})
	assert.Equal(t, 1, second.Unchanged)

	got, err := store.QueryItems(ctx, ports.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, item.Title, got[0].Title)
	assert.Equal(t, item.Tags, got[0].Tags)
	assert.Equal(t, item.Votes, got[0].Votes)
	require.NotNil(t, got[0].Maker)
	assert.Equal(t, "sam", got[0].Maker.Username)
	assert.True(t, item.SourceDate.Equal(got[0].SourceDate.UTC()))
}

func TestSQLiteUpdatePreservesCreatedAt(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	item := testItem("hackernews", "99", "Before", time.Hour)
	store.UpsertItems(ctx, []domain.Item{item})

	created, err := store.QueryItems(ctx, ports.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, created, 1)

	item.Title = "After"
	result := store.UpsertItems(ctx, []domain.Item{item})
	assert.Equal(t, 1, result.Updated)

	updated, err := store.QueryItems(ctx, ports.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "After", updated[0].Title)
	assert.True(t, created[0].CreatedAt.Equal(updated[0].CreatedAt))
}

func TestSQLiteQueryFilters(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	hn := testItem("hackernews", "1", "HN story", 2*time.Hour)
	hn.Score = 0.8
	gh := testItem("github_trending", "x/y", "Repo", 48*time.Hour)
	gh.Score = 0.4
	store.UpsertItems(ctx, []domain.Item{hn, gh})

	got, err := store.QueryItems(ctx, ports.QueryOptions{MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hackernews", got[0].SourceName)

	got, err = store.QueryItems(ctx, ports.QueryOptions{Since: time.Now().Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "HN story", got[0].Title)

	got, err = store.QueryItems(ctx, ports.QueryOptions{Sources: []string{"github_trending"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Repo", got[0].Title)

	got, err = store.QueryItems(ctx, ports.QueryOptions{Until: time.Now().Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Repo", got[0].Title)
}

func TestSQLiteCleanupAndCeiling(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	stale := testItem("hackernews", "old", "Stale", 45*24*time.Hour)
	fresh := testItem("hackernews", "new", "Fresh", 10*24*time.Hour)
	store.UpsertItems(ctx, []domain.Item{stale, fresh})

	deleted, err := store.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	var items []domain.Item
	for i := 0; i < 19; i++ {
		items = append(items, testItem("github_trending", string(rune('a'+i)), "Item", time.Duration(i)*time.Hour))
	}
	store.UpsertItems(ctx, items)

	deleted, err = store.EnforceCeiling(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.TotalRecords)
}

func TestSQLiteStats(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	store.UpsertItems(ctx, []domain.Item{
		testItem("hackernews", "1", "A", 48*time.Hour),
		testItem("hackernews", "2", "B", time.Hour),
		testItem("product_hunt", "p", "C", 24*time.Hour),
	})

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 2, stats.BySource["hackernews"])
	assert.Equal(t, 1, stats.BySource["product_hunt"])
	assert.True(t, stats.Oldest.Before(stats.Newest))
}
