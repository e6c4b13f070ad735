// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Constants
// =============================================================================

// defaultOpenAIURL is the embeddings endpoint. OPENAI_BASE_URL overrides the
// host for proxies and compatible local servers.
const defaultOpenAIURL = "https://api.openai.com/v1/embeddings"

// defaultEmbedModel balances quality and cost for short intent phrases.
const defaultEmbedModel = "text-embedding-3-small"

// defaultEmbedDimensions is text-embedding-3-small's native width.
const defaultEmbedDimensions = 1536

// embedRequestTimeout bounds one embeddings call end to end.
const embedRequestTimeout = 30 * time.Second

// embedRateLimit caps outbound calls at 20 rps with a burst of 40. Index
// builds batch their texts, so this only throttles pathological callers.
const (
	embedRateLimit = rate.Limit(20)
	embedRateBurst = 40
)

// =============================================================================
// Wire Types
// =============================================================================

// openaiEmbedReq is the /v1/embeddings request body.
type openaiEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// openaiEmbedResp is the /v1/embeddings response body.
type openaiEmbedResp struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// =============================================================================
// OpenAIEmbedder
// =============================================================================

// OpenAIEmbedder embeds text via the OpenAI /v1/embeddings API.
//
// # Description
//
// Requests are rate limited client-side and carry a per-call timeout.
// Connection-level failures (DNS, refused, timeout before headers) are
// wrapped in ErrUnavailable; HTTP-level errors keep the API's message.
// Vectors come back unit-normalized from the API, but Normalize is applied
// anyway so downstream cosine math never depends on provider behavior.
//
// # Thread Safety
//
// Safe for concurrent use.
type OpenAIEmbedder struct {
	url     string
	model   string
	dims    int
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// OpenAIOption adjusts an OpenAIEmbedder at construction.
type OpenAIOption func(*OpenAIEmbedder)

// WithModel overrides the embedding model and its vector width.
func WithModel(model string, dims int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.model = model
		e.dims = dims
	}
}

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.client = c }
}

// WithEndpoint overrides the full embeddings URL.
func WithEndpoint(url string) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.url = url }
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
//
// # Inputs
//
//   - logger: Destination for retry and failure diagnostics. Nil means
//     slog.Default().
//   - opts: Optional overrides.
//
// # Outputs
//
//   - *OpenAIEmbedder: Ready for use. Never nil.
//   - error: Non-nil when OPENAI_API_KEY is unset.
func NewOpenAIEmbedder(logger *slog.Logger, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embed: OPENAI_API_KEY is not set")
	}

	url := defaultOpenAIURL
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		url = base + "/embeddings"
	}

	e := &OpenAIEmbedder{
		url:    url,
		model:  defaultEmbedModel,
		dims:   defaultEmbedDimensions,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: embedRequestTimeout,
		},
		limiter: rate.NewLimiter(embedRateLimit, embedRateBurst),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the unit-normalized vector for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds up to one API call's worth of texts in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed: rate limiter: %w", err)
	}

	reqBody, err := json.Marshal(openaiEmbedReq{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("embed: HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		var apiErr openaiEmbedResp
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != nil {
			msg = apiErr.Error.Message
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: API returned %d: %s", ErrUnavailable, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("embed: API returned %d: %s", resp.StatusCode, msg)
	}

	var parsed openaiEmbedResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("embed: parse response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embed: API returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	// The API may reorder data entries; index is authoritative.
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embed: API returned out-of-range index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embed: API returned empty vector at index %d", d.Index)
		}
		out[d.Index] = Normalize(d.Embedding)
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embed: API response missing vector for index %d", i)
		}
	}

	return out, nil
}

// Dimensions reports the model's vector width.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// Model reports the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }
