package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const hnAPIBase = "https://hacker-news.firebaseio.com/v0"

// HackerNews fetches top stories from the official Firebase API. The
// top-stories endpoint returns story IDs; each story is fetched
// individually. Stories missing an external URL ("Ask HN" and similar
// self posts) link to the HN discussion page instead.
type HackerNews struct {
	client  *http.Client
	baseURL string
}

var _ ports.Source = (*HackerNews)(nil)

// NewHackerNews wires an HTTP client; baseURL is overridable for tests,
// pass "" for the real API.
func NewHackerNews(client *http.Client, baseURL string) *HackerNews {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = hnAPIBase
	}
	return &HackerNews{client: client, baseURL: baseURL}
}

// Name identifies the source inside the registry and in dedup keys.
func (h *HackerNews) Name() string {
	return "hackernews"
}

// hnStory mirrors the Firebase item payload.
type hnStory struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
}

// FetchItems returns up to limit normalized top stories. A failure to
// fetch the ID list is a total failure; failures on individual stories
// only skip those stories.
func (h *HackerNews) FetchItems(ctx context.Context, limit int) ([]domain.Item, error) {
	ids, err := h.fetchTopStoryIDs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch top stories: %w", err)
	}

	items := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		story, err := h.fetchStory(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if item, ok := h.normalize(story); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (h *HackerNews) fetchTopStoryIDs(ctx context.Context, limit int) ([]int, error) {
	var ids []int
	if err := h.getJSON(ctx, h.baseURL+"/topstories.json", &ids); err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (h *HackerNews) fetchStory(ctx context.Context, id int) (hnStory, error) {
	var story hnStory
	url := fmt.Sprintf("%s/item/%d.json", h.baseURL, id)
	if err := h.getJSON(ctx, url, &story); err != nil {
		return hnStory{}, err
	}
	return story, nil
}

func (h *HackerNews) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "IdeaDigest/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hackernews returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (h *HackerNews) normalize(story hnStory) (domain.Item, bool) {
	if story.ID == 0 || story.Title == "" {
		return domain.Item{}, false
	}

	url := story.URL
	if url == "" {
		url = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", story.ID)
	}

	var sourceDate time.Time
	if story.Time > 0 {
		sourceDate = time.Unix(story.Time, 0).UTC()
	}

	return domain.Item{
		SourceName:    h.Name(),
		SourceID:      strconv.Itoa(story.ID),
		Title:         strings.TrimSpace(story.Title),
		Description:   h.buildDescription(story),
		URL:           url,
		SourceDate:    sourceDate,
		Points:        story.Score,
		CommentsCount: story.Descendants,
	}, true
}

func (h *HackerNews) buildDescription(story hnStory) string {
	var parts []string
	if story.By != "" {
		parts = append(parts, "by "+story.By)
	}
	if story.Score > 0 {
		parts = append(parts, fmt.Sprintf("%d points", story.Score))
	}
	if story.Descendants > 0 {
		parts = append(parts, fmt.Sprintf("%d comments", story.Descendants))
	}
	return strings.Join(parts, " | ")
}
