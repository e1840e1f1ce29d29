package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const trendingPageHTML = `
<html><body>
<article class="Box-row">
  <h2 class="h3 lh-condensed"><a href="/acme/rocket">acme / rocket</a></h2>
  <p class="col-9 color-fg-muted my-1 pr-4">A terminal tool for launching things</p>
  <span class="d-inline-block ml-0 mr-3">
    <span class="repo-language-color"></span>
    <span itemprop="programmingLanguage">Rust</span>
  </span>
  <a href="/acme/rocket/stargazers">12.3k</a>
  <span class="d-inline-block float-sm-right">234 stars today</span>
</article>
<article class="Box-row">
  <h2 class="h3 lh-condensed"><a href="/beep/boop">beep / boop</a></h2>
  <p class="col-9 color-fg-muted my-1 pr-4">No language repo</p>
  <a href="/beep/boop/stargazers">1,234</a>
</article>
<article class="Box-row">
  <h2 class="h3 lh-condensed"><a href="/broken">broken</a></h2>
</article>
</body></html>`

func TestGitHubTrendingFetchItems(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("since"); got != "daily" {
			t.Errorf("expected since=daily, got %s", got)
		}
		_, _ = w.Write([]byte(trendingPageHTML))
	}))
	defer server.Close()

	src := NewGitHubTrending(server.Client(), server.URL, "", "", 0)
	items, err := src.FetchItems(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	rocket := items[0]
	if rocket.SourceID != "acme/rocket" {
		t.Fatalf("unexpected id: %s", rocket.SourceID)
	}
	if rocket.Key() != "github_trending_acme/rocket" {
		t.Fatalf("unexpected key: %s", rocket.Key())
	}
	if rocket.Title != "acme/rocket (Rust)" {
		t.Fatalf("unexpected title: %s", rocket.Title)
	}
	if rocket.URL != "https://github.com/acme/rocket" {
		t.Fatalf("unexpected url: %s", rocket.URL)
	}
	if rocket.Stars != 12300 {
		t.Fatalf("unexpected stars: %d", rocket.Stars)
	}
	if rocket.StarsToday != 234 {
		t.Fatalf("unexpected stars today: %d", rocket.StarsToday)
	}
	if rocket.Language != "Rust" {
		t.Fatalf("unexpected language: %s", rocket.Language)
	}
	if rocket.Maker == nil || rocket.Maker.Username != "acme" {
		t.Fatalf("unexpected maker: %+v", rocket.Maker)
	}
	if rocket.SourceDate.IsZero() {
		t.Fatal("trending items should carry the scrape time")
	}

	boop := items[1]
	if boop.Title != "beep/boop" {
		t.Fatalf("language-less repo should use plain title, got %s", boop.Title)
	}
	if boop.Stars != 1234 {
		t.Fatalf("unexpected stars: %d", boop.Stars)
	}
}

func TestGitHubTrendingRespectsLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trendingPageHTML))
	}))
	defer server.Close()

	src := NewGitHubTrending(server.Client(), server.URL, "", "weekly", 0)
	items, err := src.FetchItems(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestGitHubTrendingServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := NewGitHubTrending(server.Client(), server.URL, "", "", 0)
	if _, err := src.FetchItems(context.Background(), 5); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestParseCompactNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"1,234", 1234},
		{"12.3k", 12300},
		{"1.2m", 1200000},
		{"234 stars today", 234},
		{"no digits", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := parseCompactNumber(tc.in); got != tc.want {
			t.Errorf("parseCompactNumber(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
