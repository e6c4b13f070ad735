// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
)

// =============================================================================
// OpenAI Wire Types
// =============================================================================

const defaultChatURL = "https://api.openai.com/v1/chat/completions"

// extractModel is deliberately small: the task is "read a sentence, emit a
// JSON object", which the mini tier handles at a fraction of the cost.
const defaultExtractModel = "gpt-4o-mini"

const extractRequestTimeout = 20 * time.Second

// extractMaxTokens caps the completion; a variable map is tiny.
const extractMaxTokens = 150

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// varHints show the model the expected surface form of each well-known
// variable. Unknown variables get a generic "value" hint.
var varHints = map[string]string{
	"issue_key": "PROJ-123",
	"project":   "PROJ",
	"status":    "In Progress",
	"assignee":  "user@email.com",
	"priority":  "High/Medium/Low",
	"email":     "user@domain.com",
	"amount":    "$50000",
	"dealname":  "Deal Name",
	"firstname": "FirstName",
	"lastname":  "LastName",
	"company":   "Company Name",
	"jobtitle":  "Job Title",
	"summary":   "quoted title text",
	"comment":   "quoted comment text",
}

// =============================================================================
// OpenAIExtractor
// =============================================================================

// OpenAIExtractor extracts variables with a chat model, falling back to
// regex patterns when the API call fails.
//
// # Description
//
// The prompt lists each needed variable with a surface-form hint plus one
// de-templated catalog example, and asks for JSON only. Temperature is
// near zero for consistency. The response is brace-scanned so a model
// that wraps its JSON in prose still parses. Extracted values run through
// the same cleaning as the pattern extractor.
//
// # Thread Safety
//
// Safe for concurrent use.
type OpenAIExtractor struct {
	url      string
	model    string
	apiKey   string
	client   *http.Client
	fallback *PatternExtractor
	logger   *slog.Logger
}

// NewOpenAIExtractor builds an extractor from the environment.
//
// # Inputs
//
//   - logger: Fallback diagnostics. Nil means slog.Default().
//
// # Outputs
//
//   - *OpenAIExtractor: Ready for use. Nil on error.
//   - error: Non-nil when OPENAI_API_KEY is unset.
func NewOpenAIExtractor(logger *slog.Logger) (*OpenAIExtractor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("extract: OPENAI_API_KEY is not set")
	}

	url := defaultChatURL
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		url = base + "/chat/completions"
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultExtractModel
	}

	return &OpenAIExtractor{
		url:      url,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: extractRequestTimeout},
		fallback: NewPatternExtractor(),
		logger:   logger,
	}, nil
}

// NewOpenAIExtractorWithConfig builds an extractor without touching the
// environment. Used by tests with mock servers.
func NewOpenAIExtractorWithConfig(apiKey, model, url string, logger *slog.Logger) *OpenAIExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIExtractor{
		url:      url,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: extractRequestTimeout},
		fallback: NewPatternExtractor(),
		logger:   logger,
	}
}

// Extract asks the chat model for the needed variables as JSON.
//
// A failed API call degrades to regex extraction rather than erroring:
// partial extraction plus a follow-up question beats a hard failure here,
// and the regex table covers the structured values best.
func (e *OpenAIExtractor) Extract(ctx context.Context, text string, needed []string, def *catalog.IntentDefinition) (Extracted, error) {
	if len(needed) == 0 {
		return Extracted{}, nil
	}

	content, err := e.complete(ctx, buildExtractionPrompt(text, needed, def))
	if err != nil {
		e.logger.Warn("extract: chat call failed, using pattern fallback",
			slog.String("error", err.Error()),
		)
		return e.fallback.Extract(ctx, text, needed, def)
	}

	raw := parseJSONObject(content)
	if raw == nil {
		e.logger.Warn("extract: response held no JSON object, using pattern fallback",
			slog.Int("response_length", len(content)),
		)
		return e.fallback.Extract(ctx, text, needed, def)
	}

	out := make(Extracted, len(needed))
	for _, name := range needed {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if value, ok := cleanValue(name, fmt.Sprintf("%v", v)); ok {
			out[name] = value
		}
	}
	return out, nil
}

// buildExtractionPrompt assembles the compact extraction prompt.
func buildExtractionPrompt(text string, needed []string, def *catalog.IntentDefinition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %q\n\nExtract: ", text)

	for i, name := range needed {
		if i > 0 {
			sb.WriteString(", ")
		}
		hint := varHints[name]
		if hint == "" {
			hint = "value"
		}
		fmt.Fprintf(&sb, "%s: %s", name, hint)
	}

	if def != nil && len(def.Examples) > 0 {
		ex := strings.NewReplacer("{", "", "}", "").Replace(def.Examples[0])
		fmt.Fprintf(&sb, "\nExample: %s", ex)
	}

	sb.WriteString("\n\nReturn JSON only:")
	return sb.String()
}

// complete runs one chat completion and returns the assistant content.
func (e *OpenAIExtractor) complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: "Extract variables as JSON."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   extractMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("API returned %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseJSONObject salvages the first {...} block from model output. Chat
// models occasionally wrap JSON in prose or code fences despite the
// instructions; scanning for braces recovers those cases.
func parseJSONObject(content string) map[string]any {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil
	}
	return out
}
