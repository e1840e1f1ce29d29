package digest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideadigest/internal/domain"
	"ideadigest/internal/infrastructure/storage"
)

func seedStorage(t *testing.T) *storage.Memory {
	t.Helper()
	store := storage.NewMemory()

	items := []domain.Item{
		{
			SourceName:  "hackernews",
			SourceID:    "1",
			Title:       "New LLM framework ships",
			Description: "by pg | 300 points",
			URL:         "https://example.com/llm",
			SourceDate:  time.Now().Add(-6 * time.Hour),
			Score:       0.79,
			Tags:        []string{"ai-ml"},
		},
		{
			SourceName:  "github_trending",
			SourceID:    "acme/cli",
			Title:       "acme/cli (Go)",
			Description: "A terminal tool",
			URL:         "https://github.com/acme/cli",
			SourceDate:  time.Now().Add(-3 * time.Hour),
			Score:       0.55,
			Tags:        []string{"developer-tools", "ai-ml"},
		},
		{
			SourceName: "product_hunt",
			SourceID:   "mystery",
			Title:      "Mystery Product",
			URL:        "https://example.com/mystery",
			SourceDate: time.Now().Add(-1 * time.Hour),
			Score:      0.31,
		},
	}
	result := store.UpsertItems(context.Background(), items)
	require.Zero(t, result.Failed)
	return store
}

func TestGenerateWritesDigestFile(t *testing.T) {
	store := seedStorage(t)
	dir := t.TempDir()

	gen := NewGenerator(store, nil, Config{
		Limit:            50,
		Days:             1,
		OutputDir:        dir,
		IncludeUngrouped: true,
	}, nil)

	date := time.Now()
	day := date.Format("2006-01-02")
	result, err := gen.Generate(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ItemsIncluded)
	assert.Equal(t, []string{"ai-ml", "developer-tools"}, result.ThemesCovered)
	assert.Equal(t, filepath.Join(dir, day+".md"), result.Path)

	raw, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	content := string(raw)
	assert.Equal(t, result.Content, content)

	assert.Contains(t, content, "# Idea Digest - "+day)
	assert.Contains(t, content, "- **Total items:** 3")
	assert.Contains(t, content, "ai-ml (2)")
	assert.Contains(t, content, "## 🤖 Ai Ml")
	assert.Contains(t, content, "## 🛠️ Developer Tools")
	assert.Contains(t, content, "## 📝 Other Items")
	assert.Contains(t, content, "[New LLM framework ships](https://example.com/llm)")
	assert.Contains(t, content, "`hackernews`")
	assert.Contains(t, content, "#developer-tools")

	// The two-tag item appears under both of its themes.
	assert.Equal(t, 2, strings.Count(content, "[acme/cli (Go)](https://github.com/acme/cli)"))
}

func TestGenerateOrdersItemsByScore(t *testing.T) {
	store := seedStorage(t)
	gen := NewGenerator(store, nil, Config{Limit: 10, OutputDir: t.TempDir()}, nil)

	result, err := gen.Generate(context.Background(), time.Now())
	require.NoError(t, err)

	// Within the shared ai-ml section the higher score renders first.
	aiSection := result.Content[strings.Index(result.Content, "## 🤖"):]
	llm := strings.Index(aiSection, "New LLM framework ships")
	cli := strings.Index(aiSection, "acme/cli (Go)")
	require.GreaterOrEqual(t, llm, 0)
	require.GreaterOrEqual(t, cli, 0)
	assert.Less(t, llm, cli)
}

func TestGeneratePastDateExcludesNewerItems(t *testing.T) {
	store := seedStorage(t) // all items dated within the last few hours
	gen := NewGenerator(store, nil, Config{Limit: 10, OutputDir: t.TempDir()}, nil)

	result, err := gen.Generate(context.Background(), time.Now().AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Empty(t, result.Path)
	assert.Zero(t, result.ItemsIncluded)
}

func TestGenerateEmptyStorage(t *testing.T) {
	gen := NewGenerator(storage.NewMemory(), nil, Config{OutputDir: t.TempDir()}, nil)

	result, err := gen.Generate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Path)
	assert.Zero(t, result.ItemsIncluded)
}

func TestGenerateMinScoreFilter(t *testing.T) {
	store := seedStorage(t)
	gen := NewGenerator(store, nil, Config{Limit: 10, MinScore: 0.5, OutputDir: t.TempDir()}, nil)

	result, err := gen.Generate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsIncluded)
	assert.NotContains(t, result.Content, "Mystery Product")
}

type stubInsight struct {
	text string
	err  error
}

func (s stubInsight) GenerateInsight(context.Context, []domain.Item) (string, error) {
	return s.text, s.err
}

func TestGenerateWithInsight(t *testing.T) {
	store := seedStorage(t)
	gen := NewGenerator(store, stubInsight{text: "Agents are eating the terminal."}, Config{Limit: 10, OutputDir: t.TempDir()}, nil)

	result, err := gen.Generate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Contains(t, result.Content, "## 💡 Insight")
	assert.Contains(t, result.Content, "Agents are eating the terminal.")
}

func TestGenerateInsightFailureIsNotFatal(t *testing.T) {
	store := seedStorage(t)
	gen := NewGenerator(store, stubInsight{err: errors.New("quota exceeded")}, Config{Limit: 10, OutputDir: t.TempDir()}, nil)

	result, err := gen.Generate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotContains(t, result.Content, "## 💡 Insight")
	assert.Equal(t, 3, result.ItemsIncluded)
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("é", 300) // 2 bytes per rune

	got := truncate(long, descriptionLimit)
	assert.True(t, utf8.ValidString(got), "truncation split a multi-byte rune")
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), descriptionLimit+len("..."))

	assert.Equal(t, "short", truncate("short", descriptionLimit))
}
