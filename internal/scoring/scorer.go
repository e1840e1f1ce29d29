package scoring

import (
	"strings"
	"time"

	"ideadigest/internal/domain"
)

const (
	weightThemes     = 0.4
	weightRecency    = 0.3
	weightPopularity = 0.3

	// Items older than this many days contribute no recency score.
	maxRecencyDays = 7.0

	// Neutral recency for items with no known publication date.
	unknownDateRecency = 0.3

	// Points-style metrics saturate at this value.
	pointsCeiling = 500.0

	// Total star counts saturate an order of magnitude higher, since
	// they accumulate over a repository's lifetime.
	starsCeiling = 5000.0
)

// Result carries the final score with its component breakdown, kept for
// transparency and tuning.
type Result struct {
	Score           float64
	Tags            []string
	ThemeScore      float64
	RecencyScore    float64
	PopularityScore float64
}

// Score computes the interest score for an item against the given theme
// table. Pure function: no I/O, no mutation of the input, deterministic
// for a fixed (item, now, themes) triple. Every malformed input degrades
// to a zero or neutral component, never an error.
func Score(item domain.Item, now time.Time, themes []Theme) Result {
	tags := matchThemes(item, themes)

	r := Result{
		Tags:            tags,
		ThemeScore:      themeScore(tags, themes),
		RecencyScore:    recencyScore(item.SourceDate, now),
		PopularityScore: popularityScore(item),
	}

	raw := weightThemes*r.ThemeScore +
		weightRecency*r.RecencyScore +
		weightPopularity*r.PopularityScore
	r.Score = clamp01(raw)
	return r
}

// Apply returns a copy of the item with score and tags filled in. The
// input item is left untouched.
func Apply(item domain.Item, now time.Time, themes []Theme) domain.Item {
	result := Score(item, now, themes)
	scored := item
	scored.Score = result.Score
	scored.Tags = result.Tags
	scored.UpdatedAt = now
	return scored
}

// matchThemes returns the names of all themes with at least one keyword
// appearing in the item's title or description. Order follows the theme
// table, so tags are stable regardless of which keyword matched.
func matchThemes(item domain.Item, themes []Theme) []string {
	text := strings.ToLower(item.Title + " " + item.Description)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var matched []string
	for _, theme := range themes {
		for _, keyword := range theme.Keywords {
			if keyword != "" && strings.Contains(text, strings.ToLower(keyword)) {
				matched = append(matched, theme.Name)
				break
			}
		}
	}
	return matched
}

// themeScore sums the weights of matched themes, capped at 1.0. A theme
// without an explicit weight counts as 1.0, so any single match already
// saturates the component.
func themeScore(matched []string, themes []Theme) float64 {
	if len(matched) == 0 {
		return 0.0
	}

	weights := make(map[string]float64, len(themes))
	for _, t := range themes {
		weights[t.Name] = t.Weight
	}

	total := 0.0
	for _, name := range matched {
		w := weights[name]
		if w <= 0 {
			w = 1.0
		}
		total += w
	}
	return clamp01(total)
}

// recencyScore decays linearly from 1.0 to 0.0 over maxRecencyDays.
// Future dates (clock skew) clamp to 1.0; a zero date gets a neutral
// contribution rather than a penalty.
func recencyScore(sourceDate time.Time, now time.Time) float64 {
	if sourceDate.IsZero() {
		return unknownDateRecency
	}

	ageDays := now.Sub(sourceDate).Hours() / 24
	if ageDays < 0 {
		return 1.0
	}
	if ageDays >= maxRecencyDays {
		return 0.0
	}
	return 1.0 - ageDays/maxRecencyDays
}

// popularityScore normalizes the dominant engagement metric for the
// item's platform. Points, votes and star velocity saturate at 500;
// lifetime stars at 5000. No metric present means 0.0, not an error.
func popularityScore(item domain.Item) float64 {
	switch {
	case item.Points > 0:
		return min1(float64(item.Points) / pointsCeiling)
	case item.Votes > 0:
		return min1(float64(item.Votes) / pointsCeiling)
	case item.StarsToday > 0:
		return min1(float64(item.StarsToday) / pointsCeiling)
	case item.Stars > 0:
		return min1(float64(item.Stars) / starsCeiling)
	default:
		return 0.0
	}
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
