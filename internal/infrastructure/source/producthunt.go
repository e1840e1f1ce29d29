package source

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const (
	phGraphQLURL = "https://api.producthunt.com/v2/api/graphql"
	phFeedURL    = "https://www.producthunt.com/feed"

	phMaxTags            = 5
	phDescriptionMaxLen  = 500
	phAPIDescriptionTrim = 200
)

var htmlTagExpr = regexp.MustCompile(`<[^>]+>`)
var whitespaceExpr = regexp.MustCompile(`\s+`)

const phPostsQuery = `
query GetPosts($first: Int!) {
    posts(first: $first) {
        edges {
            node {
                id
                name
                tagline
                description
                url
                votesCount
                commentsCount
                createdAt
                website
                topics { edges { node { name } } }
                makers { id name username headline profileImage twitterUsername }
            }
        }
    }
}`

// ProductHunt fetches recent launches. With an API token it uses the
// GraphQL API, which carries vote counts, topics and maker profiles.
// Without one it falls back to the public RSS feed, which has none of
// those.
type ProductHunt struct {
	client     *http.Client
	token      string
	graphqlURL string
	feedURL    string

	requestDelay time.Duration
	lastRequest  time.Time
}

var _ ports.Source = (*ProductHunt)(nil)

// NewProductHunt wires the adapter. graphqlURL and feedURL are
// overridable for tests; pass "" for the real endpoints.
func NewProductHunt(client *http.Client, token, graphqlURL, feedURL string, requestDelay time.Duration) *ProductHunt {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if graphqlURL == "" {
		graphqlURL = phGraphQLURL
	}
	if feedURL == "" {
		feedURL = phFeedURL
	}
	return &ProductHunt{
		client:       client,
		token:        token,
		graphqlURL:   graphqlURL,
		feedURL:      feedURL,
		requestDelay: requestDelay,
	}
}

// Name identifies the source inside the registry and in dedup keys.
func (p *ProductHunt) Name() string {
	return "product_hunt"
}

func (p *ProductHunt) rateLimit() {
	if p.requestDelay <= 0 {
		return
	}
	if elapsed := time.Since(p.lastRequest); elapsed < p.requestDelay {
		time.Sleep(p.requestDelay - elapsed)
	}
	p.lastRequest = time.Now()
}

// FetchItems returns up to limit normalized launches.
func (p *ProductHunt) FetchItems(ctx context.Context, limit int) ([]domain.Item, error) {
	p.rateLimit()

	if p.token != "" {
		return p.fetchViaAPI(ctx, limit)
	}
	return p.fetchViaRSS(ctx, limit)
}

type phPost struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Tagline       string `json:"tagline"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	VotesCount    int    `json:"votesCount"`
	CommentsCount int    `json:"commentsCount"`
	CreatedAt     string `json:"createdAt"`
	Website       string `json:"website"`
	Topics        struct {
		Edges []struct {
			Node struct {
				Name string `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"topics"`
	Makers []struct {
		Name            string `json:"name"`
		Username        string `json:"username"`
		Headline        string `json:"headline"`
		ProfileImage    string `json:"profileImage"`
		TwitterUsername string `json:"twitterUsername"`
	} `json:"makers"`
}

type phGraphQLResponse struct {
	Data struct {
		Posts struct {
			Edges []struct {
				Node phPost `json:"node"`
			} `json:"edges"`
		} `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *ProductHunt) fetchViaAPI(ctx context.Context, limit int) ([]domain.Item, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     phPostsQuery,
		"variables": map[string]int{"first": limit},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request posts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product hunt returned %s", resp.Status)
	}

	var body phGraphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(body.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", body.Errors[0].Message)
	}

	items := make([]domain.Item, 0, len(body.Data.Posts.Edges))
	for _, edge := range body.Data.Posts.Edges {
		if item, ok := p.normalizePost(edge.Node); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (p *ProductHunt) normalizePost(post phPost) (domain.Item, bool) {
	name := strings.TrimSpace(post.Name)
	if name == "" {
		return domain.Item{}, false
	}

	// Prefer the product website over the PH post page.
	url := post.Website
	if url == "" {
		url = post.URL
	}
	if url == "" {
		return domain.Item{}, false
	}

	var sourceDate time.Time
	if post.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
			sourceDate = t.UTC()
		}
	}

	description := post.Tagline
	if description == "" && post.Description != "" {
		description = trimToRune(post.Description, phAPIDescriptionTrim)
	}

	var tags []string
	for _, edge := range post.Topics.Edges {
		if edge.Node.Name == "" {
			continue
		}
		tags = append(tags, strings.ToLower(edge.Node.Name))
		if len(tags) == phMaxTags {
			break
		}
	}

	var maker *domain.Maker
	if len(post.Makers) > 0 {
		first := post.Makers[0]
		maker = &domain.Maker{
			Name:     first.Name,
			Username: first.Username,
			Avatar:   first.ProfileImage,
			Bio:      first.Headline,
			Twitter:  first.TwitterUsername,
		}
		if first.Username != "" {
			maker.URL = "https://www.producthunt.com/@" + first.Username
		}
	}

	return domain.Item{
		SourceName:    p.Name(),
		SourceID:      post.ID,
		Title:         name,
		Description:   description,
		URL:           url,
		SourceDate:    sourceDate,
		Votes:         post.VotesCount,
		CommentsCount: post.CommentsCount,
		Tags:          tags,
		Maker:         maker,
	}, true
}

func (p *ProductHunt) fetchViaRSS(ctx context.Context, limit int) ([]domain.Item, error) {
	parser := gofeed.NewParser()
	parser.Client = p.client
	parser.UserAgent = "IdeaDigest/1.0 (RSS Reader)"

	feed, err := parser.ParseURLWithContext(p.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := feed.Items
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	items := make([]domain.Item, 0, len(entries))
	for _, entry := range entries {
		if item, ok := p.normalizeFeedEntry(entry); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (p *ProductHunt) normalizeFeedEntry(entry *gofeed.Item) (domain.Item, bool) {
	title := strings.TrimSpace(entry.Title)
	url := strings.TrimSpace(entry.Link)
	if title == "" || url == "" {
		return domain.Item{}, false
	}

	var sourceDate time.Time
	if entry.PublishedParsed != nil {
		sourceDate = entry.PublishedParsed.UTC()
	}

	return domain.Item{
		SourceName:  p.Name(),
		SourceID:    extractPostID(url),
		Title:       title,
		Description: cleanFeedSummary(entry.Description),
		URL:         url,
		SourceDate:  sourceDate,
	}, true
}

// extractPostID derives a stable ID from the post URL; feeds without a
// /posts/ slug fall back to a URL hash.
func extractPostID(url string) string {
	if idx := strings.Index(url, "/posts/"); idx >= 0 {
		slug := url[idx+len("/posts/"):]
		if cut := strings.IndexByte(slug, '?'); cut >= 0 {
			slug = slug[:cut]
		}
		if slug != "" {
			return slug
		}
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(url)))[:12]
}

func cleanFeedSummary(summary string) string {
	clean := htmlTagExpr.ReplaceAllString(summary, " ")
	clean = whitespaceExpr.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)
	return trimToRune(clean, phDescriptionMaxLen)
}

// trimToRune caps s at limit bytes without splitting a multi-byte rune.
func trimToRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
