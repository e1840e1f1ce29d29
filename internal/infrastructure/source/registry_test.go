package source

import (
	"context"
	"testing"

	"ideadigest/internal/domain"
)

type stubSource struct {
	name string
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) FetchItems(context.Context, int) ([]domain.Item, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubSource{name: "hackernews"})
	reg.Register(stubSource{name: "github_trending"})

	src, err := reg.Resolve("hackernews")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if src.Name() != "hackernews" {
		t.Fatalf("unexpected source: %s", src.Name())
	}

	if _, err := reg.Resolve("missing"); err == nil {
		t.Fatal("expected error for unregistered source")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "github_trending" || names[1] != "hackernews" {
		t.Fatalf("unexpected names: %v", names)
	}
}
