// Package digest renders scored items into daily Markdown digests.
// Markdown keeps the output readable as plain text and renders well in
// GitHub, email clients and note tools.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const (
	ungroupedTheme     = "_ungrouped"
	summaryTitleLimit  = 50
	descriptionLimit   = 200
	topThemesInSummary = 5
	tagsPerItem        = 3
)

var themeEmoji = map[string]string{
	"ai-ml":           "🤖",
	"developer-tools": "🛠️",
	"programming":     "💻",
	"startup":         "🚀",
	"open-source":     "📂",
	"security":        "🔒",
	"data":            "📊",
	"web-mobile":      "🌐",
	"productivity":    "⚡",
}

// Config controls what the digest includes and where it is written.
type Config struct {
	Limit            int
	Days             int
	MinScore         float64
	OutputDir        string
	IncludeUngrouped bool
}

// Result reports what a generation run produced.
type Result struct {
	Path          string
	Content       string
	ItemsIncluded int
	ThemesCovered []string
}

// Generator builds digests from scored items in storage. The insight
// client is optional; when present its output is appended as an extra
// section and failures only log a warning.
type Generator struct {
	storage ports.Storage
	insight ports.InsightClient
	cfg     Config
	log     *slog.Logger
}

// NewGenerator wires a generator; insight may be nil.
func NewGenerator(storage ports.Storage, insight ports.InsightClient, cfg Config, log *slog.Logger) *Generator {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "digests"
	}
	if cfg.Days <= 0 {
		cfg.Days = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{storage: storage, insight: insight, cfg: cfg, log: log}
}

// Generate queries storage, renders the digest and writes it to
// OutputDir/YYYY-MM-DD.md. A day with no matching items still succeeds
// and produces no file.
func (g *Generator) Generate(ctx context.Context, date time.Time) (Result, error) {
	items, err := g.fetchItems(ctx, date)
	if err != nil {
		return Result{}, fmt.Errorf("fetch digest items: %w", err)
	}
	if len(items) == 0 {
		g.log.Info("no items for digest", "date", date.Format("2006-01-02"))
		return Result{}, nil
	}

	grouped := g.groupByTheme(items)
	content := g.render(ctx, items, grouped, date)

	path, err := g.writeFile(content, date)
	if err != nil {
		return Result{}, fmt.Errorf("write digest: %w", err)
	}

	return Result{
		Path:          path,
		Content:       content,
		ItemsIncluded: len(items),
		ThemesCovered: namedThemes(grouped),
	}, nil
}

func (g *Generator) fetchItems(ctx context.Context, date time.Time) ([]domain.Item, error) {
	// Bounding the window above keeps historical digests reproducible:
	// items collected after the requested date never appear in it.
	endOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).AddDate(0, 0, 1)
	opts := ports.QueryOptions{
		Since:    date.AddDate(0, 0, -g.cfg.Days),
		Until:    endOfDay,
		MinScore: g.cfg.MinScore,
		Limit:    g.cfg.Limit,
	}
	return g.storage.QueryItems(ctx, opts)
}

// groupByTheme maps theme tags to their items; an item with several
// tags appears under each of them. Untagged items collect under a
// synthetic group when IncludeUngrouped is set.
func (g *Generator) groupByTheme(items []domain.Item) map[string][]domain.Item {
	grouped := map[string][]domain.Item{}
	for _, item := range items {
		if len(item.Tags) == 0 {
			if g.cfg.IncludeUngrouped {
				grouped[ungroupedTheme] = append(grouped[ungroupedTheme], item)
			}
			continue
		}
		for _, tag := range item.Tags {
			grouped[tag] = append(grouped[tag], item)
		}
	}

	for theme := range grouped {
		group := grouped[theme]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Score != group[j].Score {
				return group[i].Score > group[j].Score
			}
			return group[i].Title < group[j].Title
		})
	}
	return grouped
}

func (g *Generator) render(ctx context.Context, items []domain.Item, grouped map[string][]domain.Item, date time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Idea Digest - %s\n\n", date.Format("2006-01-02"))
	fmt.Fprintf(&b, "*Generated on %s*\n\n", date.Format("January 02, 2006 at 15:04"))

	g.renderSummary(&b, items, grouped)
	g.renderInsight(ctx, &b, items)
	g.renderThemes(&b, grouped)

	b.WriteString("---\n\n*Generated by Idea Digest*\n")
	return b.String()
}

func (g *Generator) renderSummary(b *strings.Builder, items []domain.Item, grouped map[string][]domain.Item) {
	b.WriteString("## 📊 Summary\n\n")
	fmt.Fprintf(b, "- **Total items:** %d\n", len(items))

	type themeCount struct {
		name  string
		count int
	}
	var themes []themeCount
	for theme, group := range grouped {
		if theme == ungroupedTheme {
			continue
		}
		themes = append(themes, themeCount{theme, len(group)})
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].count != themes[j].count {
			return themes[i].count > themes[j].count
		}
		return themes[i].name < themes[j].name
	})
	if len(themes) > 0 {
		if len(themes) > topThemesInSummary {
			themes = themes[:topThemesInSummary]
		}
		parts := make([]string, 0, len(themes))
		for _, tc := range themes {
			parts = append(parts, fmt.Sprintf("%s (%d)", tc.name, tc.count))
		}
		fmt.Fprintf(b, "- **Top themes:** %s\n", strings.Join(parts, ", "))
	}

	top := items[0]
	fmt.Fprintf(b, "- **Top item:** [%s](%s) (score: %.2f)\n", truncate(top.Title, summaryTitleLimit), top.URL, top.Score)

	lowest, highest, sum := items[0].Score, items[0].Score, 0.0
	sources := map[string]struct{}{}
	for _, item := range items {
		if item.Score < lowest {
			lowest = item.Score
		}
		if item.Score > highest {
			highest = item.Score
		}
		sum += item.Score
		sources[item.SourceName] = struct{}{}
	}
	fmt.Fprintf(b, "- **Score range:** %.2f - %.2f (avg: %.2f)\n", lowest, highest, sum/float64(len(items)))

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(b, "- **Sources:** %s\n\n", strings.Join(names, ", "))
}

func (g *Generator) renderInsight(ctx context.Context, b *strings.Builder, items []domain.Item) {
	if g.insight == nil {
		return
	}
	insight, err := g.insight.GenerateInsight(ctx, items)
	if err != nil {
		g.log.Warn("insight generation failed", "error", err)
		return
	}
	if insight == "" {
		return
	}
	b.WriteString("## 💡 Insight\n\n")
	b.WriteString(strings.TrimSpace(insight))
	b.WriteString("\n\n")
}

func (g *Generator) renderThemes(b *strings.Builder, grouped map[string][]domain.Item) {
	themes := make([]string, 0, len(grouped))
	for theme := range grouped {
		themes = append(themes, theme)
	}
	// Named themes alphabetically, the ungrouped bucket last.
	sort.Slice(themes, func(i, j int) bool {
		if (themes[i] == ungroupedTheme) != (themes[j] == ungroupedTheme) {
			return themes[j] == ungroupedTheme
		}
		return themes[i] < themes[j]
	})

	for _, theme := range themes {
		if theme == ungroupedTheme {
			b.WriteString("## 📝 Other Items\n\n")
		} else {
			fmt.Fprintf(b, "## %s %s\n\n", emojiFor(theme), themeTitle(theme))
		}
		for _, item := range grouped[theme] {
			g.renderItem(b, item)
		}
		b.WriteString("\n")
	}
}

func (g *Generator) renderItem(b *strings.Builder, item domain.Item) {
	fmt.Fprintf(b, "### **[%.2f]** [%s](%s)\n\n", item.Score, item.Title, item.URL)

	meta := []string{fmt.Sprintf("`%s`", item.SourceName)}
	if len(item.Tags) > 0 {
		tags := item.Tags
		if len(tags) > tagsPerItem {
			tags = tags[:tagsPerItem]
		}
		hashed := make([]string, 0, len(tags))
		for _, tag := range tags {
			hashed = append(hashed, "#"+tag)
		}
		meta = append(meta, strings.Join(hashed, " | "))
	}
	b.WriteString(strings.Join(meta, " "))
	b.WriteString("\n\n")

	if item.Description != "" {
		fmt.Fprintf(b, "> %s\n\n", truncate(item.Description, descriptionLimit))
	}
}

func (g *Generator) writeFile(content string, date time.Time) (string, error) {
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(g.cfg.OutputDir, date.Format("2006-01-02")+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func namedThemes(grouped map[string][]domain.Item) []string {
	themes := make([]string, 0, len(grouped))
	for theme := range grouped {
		if theme != ungroupedTheme {
			themes = append(themes, theme)
		}
	}
	sort.Strings(themes)
	return themes
}

func emojiFor(theme string) string {
	if emoji, ok := themeEmoji[theme]; ok {
		return emoji
	}
	return "📌"
}

// themeTitle turns "developer-tools" into "Developer Tools".
func themeTitle(theme string) string {
	words := strings.Split(strings.ReplaceAll(theme, "-", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// truncate cuts s at a rune boundary so multi-byte characters are never
// split mid-sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
