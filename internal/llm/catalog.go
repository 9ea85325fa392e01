package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Provider identifies who serves a model. It is also the key under which
// credentials and endpoint overrides are configured.
type Provider string

const (
	ProviderDeepSeek  Provider = "deepseek"
	ProviderQwen      Provider = "qwen"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Endpoint is the request/response envelope a model speaks. Backends are
// registered per Endpoint, so a new provider on an existing envelope only
// needs a catalog entry.
type Endpoint string

const (
	EndpointChatCompletions   Endpoint = "chat_completions"
	EndpointDashScope         Endpoint = "dashscope_generation"
	EndpointAnthropicMessages Endpoint = "anthropic_messages"
	EndpointGeminiGenerate    Endpoint = "gemini_generate"
)

// ModelSpec describes one selectable model.
type ModelSpec struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Provider    Provider `json:"provider"`
	MaxTokens   int      `json:"max_tokens"`
	Encoding    string   `json:"encoding"`
	Endpoint    Endpoint `json:"endpoint"`
	BaseURL     string   `json:"base_url,omitempty"`
	RequiresKey bool     `json:"requires_key"`
}

const (
	deepSeekBaseURL  = "https://api.deepseek.com/v1"
	dashScopeBaseURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	openAIBaseURL    = "https://api.openai.com/v1"
)

var defaultModels = []ModelSpec{
	{ID: "deepseek-chat", Label: "DeepSeek Chat", Provider: ProviderDeepSeek, MaxTokens: 4000, Encoding: "cl100k_base", Endpoint: EndpointChatCompletions, BaseURL: deepSeekBaseURL, RequiresKey: true},
	{ID: "deepseek-coder", Label: "DeepSeek Coder", Provider: ProviderDeepSeek, MaxTokens: 4000, Encoding: "cl100k_base", Endpoint: EndpointChatCompletions, BaseURL: deepSeekBaseURL, RequiresKey: true},
	{ID: "qwen-turbo", Label: "Qwen Turbo", Provider: ProviderQwen, MaxTokens: 2000, Encoding: "cl100k_base", Endpoint: EndpointDashScope, BaseURL: dashScopeBaseURL, RequiresKey: true},
	{ID: "qwen-plus", Label: "Qwen Plus", Provider: ProviderQwen, MaxTokens: 4000, Encoding: "cl100k_base", Endpoint: EndpointDashScope, BaseURL: dashScopeBaseURL, RequiresKey: true},
	{ID: "qwen-max", Label: "Qwen Max", Provider: ProviderQwen, MaxTokens: 6000, Encoding: "cl100k_base", Endpoint: EndpointDashScope, BaseURL: dashScopeBaseURL, RequiresKey: true},
	{ID: "gpt-4o-mini", Label: "GPT-4o mini", Provider: ProviderOpenAI, MaxTokens: 16000, Encoding: "cl100k_base", Endpoint: EndpointChatCompletions, BaseURL: openAIBaseURL, RequiresKey: true},
	{ID: "claude-3-5-haiku-latest", Label: "Claude 3.5 Haiku", Provider: ProviderAnthropic, MaxTokens: 8000, Encoding: "cl100k_base", Endpoint: EndpointAnthropicMessages, RequiresKey: true},
	{ID: "gemini-1.5-flash", Label: "Gemini 1.5 Flash", Provider: ProviderGemini, MaxTokens: 8000, Encoding: "cl100k_base", Endpoint: EndpointGeminiGenerate, RequiresKey: true},
}

// Catalog is the set of models a router can serve.
type Catalog struct {
	mu   sync.RWMutex
	byID map[string]ModelSpec
}

// NewCatalog returns a catalog holding specs.
func NewCatalog(specs ...ModelSpec) *Catalog {
	c := &Catalog{byID: make(map[string]ModelSpec, len(specs))}
	for _, s := range specs {
		c.byID[s.ID] = s
	}
	return c
}

// DefaultCatalog returns the built-in models.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultModels...)
}

// Register adds or replaces a model.
func (c *Catalog) Register(spec ModelSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[spec.ID] = spec
}

// OverrideBaseURL points every model of provider at url.
func (c *Catalog) OverrideBaseURL(provider Provider, url string) {
	if url == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.byID {
		if s.Provider == provider {
			s.BaseURL = url
			c.byID[id] = s
		}
	}
}

// Lookup resolves a model id, case-insensitively.
func (c *Catalog) Lookup(id string) (ModelSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.byID[id]; ok {
		return s, nil
	}
	if s, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]; ok {
		return s, nil
	}
	return ModelSpec{}, fmt.Errorf("%w: %q", ErrUnsupportedModel, id)
}

// List returns all models ordered by provider then id.
func (c *Catalog) List() []ModelSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelSpec, 0, len(c.byID))
	for _, s := range c.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}
