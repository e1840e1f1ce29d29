package domain

import (
	"fmt"
	"time"
)

// Item is the canonical normalized record flowing through every pipeline
// stage: sources -> scoring -> storage -> digest.
type Item struct {
	SourceName string
	SourceID   string

	Title       string
	Description string
	URL         string
	SourceDate  time.Time

	// Populated by the scoring engine only, never by a source adapter.
	Score float64
	Tags  []string

	// Sparse platform metrics. Only the fields relevant to the item's
	// platform are set; zero means absent, never fabricated.
	Points        int
	CommentsCount int
	Votes         int
	Stars         int
	StarsToday    int
	Forks         int
	Watchers      int
	Language      string

	Maker *Maker

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Maker describes the creator behind an item when the platform exposes one.
type Maker struct {
	Name     string
	Username string
	URL      string
	Avatar   string
	Bio      string
	Twitter  string
}

// Key returns the dedup key for this item. It depends only on the
// (SourceName, SourceID) pair and is stable across runs; mutable fields
// such as title or score never affect it.
func (i Item) Key() string {
	return i.SourceName + "_" + i.SourceID
}

// Validate reports whether the item carries the minimum fields required
// before it may enter the pipeline.
func (i Item) Validate() error {
	if i.SourceName == "" {
		return fmt.Errorf("item missing source name")
	}
	if i.SourceID == "" {
		return fmt.Errorf("item missing source id")
	}
	if i.Title == "" {
		return fmt.Errorf("item %s missing title", i.Key())
	}
	if i.URL == "" {
		return fmt.Errorf("item %s missing url", i.Key())
	}
	return nil
}

// ContentEquals compares the mutable fields of two items. The storage
// layer uses it to decide update vs unchanged; identity fields are
// deliberately excluded.
func (i Item) ContentEquals(other Item) bool {
	if i.Title != other.Title ||
		i.Description != other.Description ||
		i.URL != other.URL ||
		i.Score != other.Score {
		return false
	}
	if i.Points != other.Points ||
		i.CommentsCount != other.CommentsCount ||
		i.Votes != other.Votes ||
		i.Stars != other.Stars ||
		i.StarsToday != other.StarsToday ||
		i.Forks != other.Forks ||
		i.Watchers != other.Watchers ||
		i.Language != other.Language {
		return false
	}
	if len(i.Tags) != len(other.Tags) {
		return false
	}
	for idx := range i.Tags {
		if i.Tags[idx] != other.Tags[idx] {
			return false
		}
	}
	return true
}

func (i Item) String() string {
	return fmt.Sprintf("[%s] %s (score: %.2f)", i.SourceName, i.Title, i.Score)
}
