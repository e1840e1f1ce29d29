package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const ghTrendingBase = "https://github.com/trending"

var compactNumberExpr = regexp.MustCompile(`([\d.]+)\s*([km])?`)

// GitHubTrending scrapes the public trending page. GitHub has no
// official trending API, so the page HTML is the contract; selectors
// target the Box-row article layout.
type GitHubTrending struct {
	client   *http.Client
	baseURL  string
	language string
	since    string

	requestDelay time.Duration
	lastRequest  time.Time
}

var _ ports.Source = (*GitHubTrending)(nil)

// NewGitHubTrending wires the scraper. language narrows the page to one
// language ("" for all); since is "daily", "weekly" or "monthly".
func NewGitHubTrending(client *http.Client, baseURL, language, since string, requestDelay time.Duration) *GitHubTrending {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = ghTrendingBase
	}
	if since == "" {
		since = "daily"
	}
	return &GitHubTrending{
		client:       client,
		baseURL:      baseURL,
		language:     language,
		since:        since,
		requestDelay: requestDelay,
	}
}

// Name identifies the source inside the registry and in dedup keys.
func (g *GitHubTrending) Name() string {
	return "github_trending"
}

func (g *GitHubTrending) pageURL() string {
	url := g.baseURL
	if g.language != "" {
		url += "/" + g.language
	}
	return url + "?since=" + g.since
}

// rateLimit spaces scrapes so repeated runs stay polite.
func (g *GitHubTrending) rateLimit() {
	if g.requestDelay <= 0 {
		return
	}
	if elapsed := time.Since(g.lastRequest); elapsed < g.requestDelay {
		time.Sleep(g.requestDelay - elapsed)
	}
	g.lastRequest = time.Now()
}

// FetchItems scrapes the trending page and returns up to limit
// normalized repositories. Entries that fail to parse are skipped.
func (g *GitHubTrending) FetchItems(ctx context.Context, limit int) ([]domain.Item, error) {
	g.rateLimit()

	doc, err := g.fetchDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch trending page: %w", err)
	}

	now := time.Now().UTC()
	items := make([]domain.Item, 0, limit)
	seen := map[string]struct{}{}

	doc.Find("article.Box-row").EachWithBreak(func(_ int, article *goquery.Selection) bool {
		item, ok := g.parseArticle(article, now)
		if !ok {
			return true
		}
		if _, dup := seen[item.SourceID]; dup {
			return true
		}
		seen[item.SourceID] = struct{}{}
		items = append(items, item)
		return limit <= 0 || len(items) < limit
	})

	return items, nil
}

func (g *GitHubTrending) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.pageURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "IdeaDigest/1.0 (GitHub Trending Reader)")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (g *GitHubTrending) parseArticle(article *goquery.Selection, now time.Time) (domain.Item, bool) {
	href, exists := article.Find("h2 a").First().Attr("href")
	if !exists {
		return domain.Item{}, false
	}

	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 2 {
		return domain.Item{}, false
	}
	owner, repo := parts[0], parts[1]
	fullName := owner + "/" + repo

	description := strings.TrimSpace(article.Find("p").First().Text())
	language := strings.TrimSpace(article.Find(`span[itemprop="programmingLanguage"]`).First().Text())

	stars := 0
	article.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if h, ok := link.Attr("href"); ok && strings.Contains(h, "/stargazers") {
			stars = parseCompactNumber(link.Text())
			return false
		}
		return true
	})

	starsToday := 0
	article.Find("span.d-inline-block").Each(func(_ int, span *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(span.Text()))
		if strings.Contains(text, "stars") && (strings.Contains(text, "today") || strings.Contains(text, "this")) {
			starsToday = parseCompactNumber(text)
		}
	})

	title := fullName
	if language != "" {
		title = fmt.Sprintf("%s (%s)", fullName, language)
	}

	item := domain.Item{
		SourceName:  g.Name(),
		SourceID:    fullName,
		Title:       title,
		Description: description,
		URL:         "https://github.com/" + fullName,
		SourceDate:  now,
		Stars:       stars,
		StarsToday:  starsToday,
		Language:    language,
		Maker:       &domain.Maker{Username: owner, URL: "https://github.com/" + owner},
	}
	return item, true
}

// parseCompactNumber reads values like "1,234", "12.3k" or "1.2m".
func parseCompactNumber(text string) int {
	text = strings.ToLower(strings.ReplaceAll(text, ",", ""))
	match := compactNumberExpr.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	num, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	switch match[2] {
	case "k":
		num *= 1_000
	case "m":
		num *= 1_000_000
	}
	return int(num)
}
