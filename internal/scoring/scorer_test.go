package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideadigest/internal/domain"
)

var testThemes = []Theme{
	{Name: "ai-ml", Keywords: []string{"llm", "machine learning"}, Weight: 1.5},
	{Name: "developer-tools", Keywords: []string{"cli", "terminal"}, Weight: 1.3},
	{Name: "data", Keywords: []string{"database"}, Weight: 1.0},
}

func TestScoreWorkedExample(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	item := domain.Item{
		SourceName: "hackernews",
		SourceID:   "12345",
		Title:      "New LLM framework",
		URL:        "https://example.com",
		SourceDate: now.Add(-2 * 24 * time.Hour),
		Points:     300,
	}

	result := Score(item, now, testThemes)

	assert.InDelta(t, 1.0, result.ThemeScore, 1e-9)
	assert.InDelta(t, 1.0-2.0/7.0, result.RecencyScore, 1e-9)
	assert.InDelta(t, 0.6, result.PopularityScore, 1e-9)
	assert.InDelta(t, 0.794, result.Score, 0.001)
	assert.Equal(t, []string{"ai-ml"}, result.Tags)
}

func TestScoreBounds(t *testing.T) {
	now := time.Now()

	items := []domain.Item{
		{},
		{Title: "llm machine learning cli terminal database", Points: 100000, SourceDate: now},
		{Title: "anything", SourceDate: now.Add(-365 * 24 * time.Hour)},
		{Points: -50, SourceDate: now.Add(48 * time.Hour)},
	}

	for _, item := range items {
		result := Score(item, now, testThemes)
		assert.GreaterOrEqual(t, result.Score, 0.0)
		assert.LessOrEqual(t, result.Score, 1.0)
	}
}

func TestScoreIsPure(t *testing.T) {
	now := time.Now()
	item := domain.Item{Title: "llm database cli", SourceDate: now.Add(-24 * time.Hour), Points: 42}

	first := Score(item, now, testThemes)
	second := Score(item, now, testThemes)

	assert.Equal(t, first, second)
	assert.Zero(t, item.Score, "input item must not be mutated")
	assert.Nil(t, item.Tags)
}

func TestRecencyMonotonicity(t *testing.T) {
	now := time.Now()
	base := domain.Item{Title: "llm tool", Points: 100}

	fresh := base
	fresh.SourceDate = now

	stale := base
	stale.SourceDate = now.Add(-7 * 24 * time.Hour)

	freshScore := Score(fresh, now, testThemes).Score
	staleScore := Score(stale, now, testThemes).Score
	assert.GreaterOrEqual(t, freshScore, staleScore)
}

func TestRecencyClamps(t *testing.T) {
	now := time.Now()

	future := Score(domain.Item{Title: "x", SourceDate: now.Add(72 * time.Hour)}, now, testThemes)
	assert.InDelta(t, 1.0, future.RecencyScore, 1e-9)

	ancient := Score(domain.Item{Title: "x", SourceDate: now.Add(-30 * 24 * time.Hour)}, now, testThemes)
	assert.Zero(t, ancient.RecencyScore)

	undated := Score(domain.Item{Title: "x"}, now, testThemes)
	assert.InDelta(t, 0.3, undated.RecencyScore, 1e-9)
}

func TestThemeMatchingEdgeCases(t *testing.T) {
	now := time.Now()

	t.Run("empty text", func(t *testing.T) {
		result := Score(domain.Item{}, now, testThemes)
		assert.Zero(t, result.ThemeScore)
		assert.Empty(t, result.Tags)
	})

	t.Run("no themes configured", func(t *testing.T) {
		result := Score(domain.Item{Title: "llm everywhere"}, now, nil)
		assert.Zero(t, result.ThemeScore)
		assert.Empty(t, result.Tags)
	})

	t.Run("case insensitive", func(t *testing.T) {
		result := Score(domain.Item{Title: "MACHINE LEARNING at scale"}, now, testThemes)
		assert.Equal(t, []string{"ai-ml"}, result.Tags)
	})

	t.Run("tags follow theme definition order", func(t *testing.T) {
		item := domain.Item{Title: "a database-backed terminal for llm workflows"}
		result := Score(item, now, testThemes)
		assert.Equal(t, []string{"ai-ml", "developer-tools", "data"}, result.Tags)
	})
}

func TestPopularityEdgeCases(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		item domain.Item
		want float64
	}{
		{"no metrics", domain.Item{Title: "x"}, 0.0},
		{"negative points", domain.Item{Title: "x", Points: -10}, 0.0},
		{"points saturate", domain.Item{Title: "x", Points: 2000}, 1.0},
		{"votes", domain.Item{Title: "x", Votes: 250}, 0.5},
		{"star velocity", domain.Item{Title: "x", StarsToday: 100}, 0.2},
		{"lifetime stars", domain.Item{Title: "x", Stars: 2500}, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Score(tc.item, now, testThemes)
			assert.InDelta(t, tc.want, result.PopularityScore, 1e-9)
		})
	}
}

func TestApplyReturnsScoredCopy(t *testing.T) {
	now := time.Now()
	item := domain.Item{
		SourceName: "hackernews",
		SourceID:   "99",
		Title:      "llm toolkit",
		URL:        "https://example.com",
		SourceDate: now,
		Points:     50,
	}

	scored := Apply(item, now, testThemes)

	require.NotZero(t, scored.Score)
	assert.Equal(t, []string{"ai-ml"}, scored.Tags)
	assert.Equal(t, item.Key(), scored.Key(), "scoring must not disturb the dedup key")
	assert.Zero(t, item.Score)
}

func TestDefaultThemesAreWellFormed(t *testing.T) {
	themes := DefaultThemes()
	require.NotEmpty(t, themes)

	seen := map[string]bool{}
	for _, theme := range themes {
		assert.NotEmpty(t, theme.Name)
		assert.NotEmpty(t, theme.Keywords)
		assert.Greater(t, theme.Weight, 0.0)
		assert.False(t, seen[theme.Name], "duplicate theme %s", theme.Name)
		seen[theme.Name] = true
	}
}
