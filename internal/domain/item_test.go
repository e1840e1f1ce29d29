package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyDependsOnIdentityOnly(t *testing.T) {
	item := Item{
		SourceName: "hackernews",
		SourceID:   "12345",
		Title:      "Original title",
		URL:        "https://example.com",
	}
	key := item.Key()
	assert.Equal(t, "hackernews_12345", key)

	item.Title = "Edited title"
	item.Score = 0.97
	item.Tags = []string{"ai-ml"}
	item.Points = 999
	assert.Equal(t, key, item.Key(), "mutable fields must not affect the dedup key")
}

func TestValidate(t *testing.T) {
	valid := Item{SourceName: "github", SourceID: "owner/repo", Title: "repo", URL: "https://github.com/owner/repo"}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name string
		item Item
	}{
		{"missing source name", Item{SourceID: "1", Title: "t", URL: "u"}},
		{"missing source id", Item{SourceName: "s", Title: "t", URL: "u"}},
		{"missing title", Item{SourceName: "s", SourceID: "1", URL: "u"}},
		{"missing url", Item{SourceName: "s", SourceID: "1", Title: "t"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.item.Validate())
		})
	}
}

func TestContentEquals(t *testing.T) {
	now := time.Now()
	base := Item{
		SourceName: "producthunt", SourceID: "42",
		Title: "Tool", Description: "desc", URL: "https://example.com",
		Score: 0.5, Tags: []string{"startup"}, Votes: 10, SourceDate: now,
	}

	same := base
	same.CreatedAt = now.Add(-time.Hour) // bookkeeping fields are ignored
	assert.True(t, base.ContentEquals(same))

	changedScore := base
	changedScore.Score = 0.6
	assert.False(t, base.ContentEquals(changedScore))

	changedTags := base
	changedTags.Tags = []string{"startup", "ai-ml"}
	assert.False(t, base.ContentEquals(changedTags))

	changedMetric := base
	changedMetric.Votes = 11
	assert.False(t, base.ContentEquals(changedMetric))
}
