// Package solar provides HTTP clients for the Upstage Solar embedding and
// OpenAI-compatible chat completion APIs.
package solar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/WessleyAI/festa/pkg/fn"
	"github.com/WessleyAI/festa/pkg/resilience"
)

// Role selects the encoder side of an asymmetric embedding model.
type Role string

const (
	RoleQuery    Role = "query"
	RoleDocument Role = "document"
)

// EmbedConfig configures an EmbedClient.
type EmbedConfig struct {
	URL          string
	APIKey       string
	QueryModel   string
	PassageModel string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// Retry governs 429 handling. Only ErrRateLimited is ever retried.
	Retry   fn.RetryOpts
	Limiter *resilience.Limiter
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultEmbedRetry retries a 429 up to three attempts in total, waiting 3s then 6s.
var DefaultEmbedRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 3 * time.Second,
	Linear:      true,
}

// EmbedClient turns text into embedding vectors.
type EmbedClient struct {
	url          string
	apiKey       string
	queryModel   string
	passageModel string
	retry        fn.RetryOpts
	limiter      *resilience.Limiter
	client       *http.Client
}

// NewEmbedClient creates a Solar embedding client.
func NewEmbedClient(cfg EmbedConfig) (*EmbedClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("solar: api key is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("solar: embedding url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultEmbedRetry
	}
	retry := cfg.Retry
	retry.RetryIf = func(err error) bool { return errors.Is(err, ErrRateLimited) }
	if cfg.OnRetry != nil {
		onRetry := cfg.OnRetry
		retry.OnRetry = func(attempt int, err error, _ time.Duration) { onRetry(attempt, err) }
	}
	return &EmbedClient{
		url:          cfg.URL,
		apiKey:       cfg.APIKey,
		queryModel:   cfg.QueryModel,
		passageModel: cfg.PassageModel,
		retry:        retry,
		limiter:      cfg.Limiter,
		client:       &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type embedReq struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType Role     `json:"input_type"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Model returns the model name used for role.
func (c *EmbedClient) Model(role Role) string {
	if role == RoleDocument {
		return c.passageModel
	}
	return c.queryModel
}

// Embed returns the embedding of text for the given role, retrying on 429.
func (c *EmbedClient) Embed(ctx context.Context, text string, role Role) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if role != RoleQuery && role != RoleDocument {
		return nil, fmt.Errorf("solar embed: unknown role %q", role)
	}
	body, err := json.Marshal(embedReq{Model: c.Model(role), Input: []string{text}, InputType: role})
	if err != nil {
		return nil, fmt.Errorf("solar embed: encode: %w", err)
	}

	return fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[]float32] {
		return fn.FromPair(c.embedOnce(ctx, body))
	}).Unwrap()
}

// EmbedQuery embeds a user question.
func (c *EmbedClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, text, RoleQuery)
}

// EmbedDocument embeds a catalog passage.
func (c *EmbedClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, text, RoleDocument)
}

// EmbedBatch embeds texts one at a time and stops at the first failure.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text, role)
		if err != nil {
			return nil, fmt.Errorf("solar embed: batch item %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (c *EmbedClient) embedOnce(ctx context.Context, body []byte) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solar embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: "embed", Code: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedResponse, err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding in response", ErrMalformedResponse)
	}
	return result.Data[0].Embedding, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
