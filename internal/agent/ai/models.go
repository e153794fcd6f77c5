package ai

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/wayfarerhq/wayfarer/internal/logging"
)

// modelCacheTTL bounds how often the provider list endpoints are hit.
const modelCacheTTL = 10 * time.Minute

// ModelInfo describes one selectable model
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelLister is implemented by providers that can enumerate their models
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// modelFallbacks are served when a provider cannot be queried (no key yet,
// network down, no list endpoint).
var modelFallbacks = map[string][]ModelInfo{
	"anthropic": {
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4"},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4"},
		{ID: "claude-haiku-4-5-20251212", Name: "Claude Haiku 4.5"},
	},
	"openai": {
		{ID: "gpt-4o", Name: "GPT-4o"},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini"},
		{ID: "o3-mini", Name: "o3-mini"},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
	},
	"ollama": {
		{ID: "qwen3:4b", Name: "qwen3:4b"},
	},
}

// FallbackModels returns the hardcoded model list for a provider
func FallbackModels(provider string) []ModelInfo {
	return modelFallbacks[provider]
}

// ModelCatalog serves the live model list for one provider, cached so the
// config UI can poll without hammering the provider API.
type ModelCatalog struct {
	provider Provider

	mu        sync.Mutex
	cached    []ModelInfo
	fetchedAt time.Time
}

// NewModelCatalog creates a catalog for the configured provider
func NewModelCatalog(provider Provider) *ModelCatalog {
	return &ModelCatalog{provider: provider}
}

// Models returns the available models, fetching at most once per cache
// window. Failures are not cached; they fall back to the hardcoded list and
// the next call retries the provider.
func (c *ModelCatalog) Models(ctx context.Context) []ModelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < modelCacheTTL {
		return c.cached
	}

	lister, ok := c.provider.(ModelLister)
	if !ok {
		return FallbackModels(c.provider.ID())
	}

	models, err := lister.ListModels(ctx)
	if err != nil || len(models) == 0 {
		logging.Debugf("ai: model listing for %s failed, using fallbacks: %v",
			c.provider.ID(), err)
		return FallbackModels(c.provider.ID())
	}

	c.cached = models
	c.fetchedAt = time.Now()
	return models
}

// ListModels fetches the Anthropic model list, newest first.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{
		Limit: anthropic.Int(50),
	})
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{ID: string(m.ID), Name: m.DisplayName})
	}

	// Dated IDs sort newest first in reverse order
	sort.Slice(models, func(i, j int) bool { return models[i].ID > models[j].ID })
	return models, nil
}

// ListModels fetches the OpenAI model list, filtered to chat models.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}

	var models []ModelInfo
	for _, m := range page.Data {
		if !isChatModel(m.ID) {
			continue
		}
		models = append(models, ModelInfo{ID: m.ID, Name: m.ID})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func isChatModel(id string) bool {
	for _, prefix := range []string{"gpt-4", "gpt-3.5", "o1", "o3", "chatgpt"} {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// ListModels fetches the locally installed Ollama models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{ID: m.Name, Name: m.Name})
	}
	return models, nil
}
