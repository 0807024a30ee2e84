package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const (
	defaultModel = "gemini-2.5-flash"
	cacheTTL     = 12 * time.Hour
	// A cache this close to expiry is recreated instead of reused.
	cacheRefreshMargin = 10 * time.Minute
)

// Generator sends prompts to Gemini. Job descriptions can be kept in cached
// contexts so candidates of one job share them.
type Generator struct {
	client *genai.Client
	model  string
	// Temperature is applied to every request when set.
	Temperature *float32

	mu     sync.Mutex
	caches map[string]jobCache
	now    func() time.Time
}

type jobCache struct {
	name      string
	hash      string
	expiresAt time.Time
}

func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Generator{
		client: client,
		model:  model,
		caches: make(map[string]jobCache),
		now:    time.Now,
	}, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent returns the text of the first answer to prompt.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, prompt, "")
}

// GenerateContentWithCache answers prompt within the cached context. An empty
// cache name sends the prompt alone.
func (g *Generator) GenerateContentWithCache(ctx context.Context, prompt, cacheName string) (string, error) {
	return g.generate(ctx, prompt, strings.TrimSpace(cacheName))
}

// EnsureJobCache returns the cached context holding payload for jobKey,
// creating it when missing, expiring or built from another payload. The
// replaced context is deleted.
func (g *Generator) EnsureJobCache(ctx context.Context, jobKey, displayName, payload string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}
	jobKey = strings.TrimSpace(jobKey)
	if jobKey == "" {
		return "", errors.New("job key is required")
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", errors.New("job payload must not be empty")
	}

	sum := sha256.Sum256([]byte(payload))
	hash := hex.EncodeToString(sum[:])

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	old, ok := g.caches[jobKey]
	if ok && old.hash == hash && now.Add(cacheRefreshMargin).Before(old.expiresAt) {
		return old.name, nil
	}

	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = "job-" + jobKey
	}
	cached, err := g.client.Caches.Create(ctx, g.model, &genai.CreateCachedContentConfig{
		DisplayName: displayName,
		TTL:         cacheTTL,
		Contents: []*genai.Content{
			genai.NewContentFromText(payload, genai.RoleUser),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create job cache: %w", err)
	}
	name := strings.TrimSpace(cached.Name)
	if name == "" {
		return "", errors.New("gemini api returned empty cache name")
	}

	if ok && old.name != name {
		// Best effort; an orphaned context expires on its own.
		_, _ = g.client.Caches.Delete(ctx, old.name, nil)
	}
	g.caches[jobKey] = jobCache{name: name, hash: hash, expiresAt: now.Add(cacheTTL)}
	return name, nil
}

func (g *Generator) generate(ctx context.Context, prompt, cacheName string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	var cfg *genai.GenerateContentConfig
	if cacheName != "" || g.Temperature != nil {
		cfg = &genai.GenerateContentConfig{CachedContent: cacheName, Temperature: g.Temperature}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	output := strings.TrimSpace(resp.Text())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}
