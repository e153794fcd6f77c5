package ai

import (
	"context"
	"errors"
	"testing"
)

// listingProvider counts ListModels calls so tests can observe the cache.
type listingProvider struct {
	id     string
	models []ModelInfo
	err    error
	calls  int
}

func (p *listingProvider) ID() string { return p.id }

func (p *listingProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	close(ch)
	return ch, nil
}

func (p *listingProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	p.calls++
	return p.models, p.err
}

// plainProvider has no model listing at all.
type plainProvider struct{ id string }

func (p *plainProvider) ID() string { return p.id }

func (p *plainProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	close(ch)
	return ch, nil
}

func TestModelCatalogCachesListings(t *testing.T) {
	provider := &listingProvider{
		id:     "anthropic",
		models: []ModelInfo{{ID: "claude-test-1", Name: "Claude Test"}},
	}
	catalog := NewModelCatalog(provider)

	first := catalog.Models(context.Background())
	if len(first) != 1 || first[0].ID != "claude-test-1" {
		t.Fatalf("unexpected models: %+v", first)
	}

	second := catalog.Models(context.Background())
	if len(second) != 1 || second[0].ID != "claude-test-1" {
		t.Fatalf("unexpected models on second call: %+v", second)
	}
	if provider.calls != 1 {
		t.Errorf("provider queried %d times, want 1 (cached)", provider.calls)
	}
}

func TestModelCatalogFallsBackOnError(t *testing.T) {
	provider := &listingProvider{id: "openai", err: errors.New("boom")}
	catalog := NewModelCatalog(provider)

	models := catalog.Models(context.Background())
	want := FallbackModels("openai")
	if len(models) != len(want) || models[0].ID != want[0].ID {
		t.Fatalf("expected openai fallbacks, got %+v", models)
	}

	// Failures must not be cached; the next call retries the provider.
	provider.err = nil
	provider.models = []ModelInfo{{ID: "gpt-test", Name: "gpt-test"}}
	models = catalog.Models(context.Background())
	if len(models) != 1 || models[0].ID != "gpt-test" {
		t.Fatalf("expected live models after recovery, got %+v", models)
	}
	if provider.calls != 2 {
		t.Errorf("provider queried %d times, want 2", provider.calls)
	}
}

func TestModelCatalogFallsBackOnEmptyListing(t *testing.T) {
	provider := &listingProvider{id: "anthropic"}
	catalog := NewModelCatalog(provider)

	models := catalog.Models(context.Background())
	want := FallbackModels("anthropic")
	if len(models) != len(want) {
		t.Fatalf("expected anthropic fallbacks, got %+v", models)
	}
}

func TestModelCatalogWithoutLister(t *testing.T) {
	catalog := NewModelCatalog(&plainProvider{id: "anthropic"})

	models := catalog.Models(context.Background())
	if len(models) == 0 {
		t.Fatal("expected fallback models for a provider without listing support")
	}
	for _, m := range models {
		if m.ID == "" || m.Name == "" {
			t.Errorf("fallback entry missing id or name: %+v", m)
		}
	}
}

func TestFallbackModelsUnknownProvider(t *testing.T) {
	if models := FallbackModels("no-such-provider"); models != nil {
		t.Fatalf("expected nil for unknown provider, got %+v", models)
	}
}

func TestIsChatModel(t *testing.T) {
	for _, id := range []string{"gpt-4o", "gpt-3.5-turbo", "o3-mini", "o1", "chatgpt-4o-latest"} {
		if !isChatModel(id) {
			t.Errorf("isChatModel(%q) = false, want true", id)
		}
	}
	for _, id := range []string{"whisper-1", "dall-e-3", "text-embedding-3-small"} {
		if isChatModel(id) {
			t.Errorf("isChatModel(%q) = true, want false", id)
		}
	}
}
