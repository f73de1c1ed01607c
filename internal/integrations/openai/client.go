// Package openai talks to an OpenAI-compatible API for the wizard's dialogue
// turns, structured attribute extraction and input moderation.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"warehouse-wizard/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 10 * time.Second

	chatPath       = "/chat/completions"
	moderationPath = "/moderations"

	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

type completionRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaConfig `json:"json_schema"`
}

type jsonSchemaConfig struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type completionResponse struct {
	Choices []struct {
		Message      domain.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (r completionResponse) content() string {
	return r.Choices[0].Message.Content
}

func (r completionResponse) usage() domain.Usage {
	return domain.Usage{
		PromptTokens:     r.Usage.PromptTokens,
		CompletionTokens: r.Usage.CompletionTokens,
	}
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

// HTTPStatusError is returned for any non-2xx answer from the API.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient returns a Client that reads its API token from the parameter
// <paramPrefix>/open-ai-token on first use.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c, nil
}

// Chat returns the assistant reply for messages as plain text.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, domain.Usage, error) {
	resp, err := c.complete(ctx, completionRequest{Model: model, Messages: messages})
	if err != nil {
		return "", domain.Usage{}, err
	}
	return resp.content(), resp.usage(), nil
}

// ExtractAttributes asks the model for a warehouse_attributes record and
// returns it keyed by schema field name. Output that does not satisfy the
// schema yields ErrNoStructuredResult.
func (c *Client) ExtractAttributes(ctx context.Context, model string, messages []domain.ChatMessage) (map[string]any, error) {
	temperature := 0.0
	resp, err := c.complete(ctx, completionRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    &temperature,
		ResponseFormat: attributesResponseFormat(),
	})
	if err != nil {
		return nil, err
	}
	return decodeAttributes(resp.content())
}

// Moderate reports whether input is flagged by the moderation endpoint.
func (c *Client) Moderate(ctx context.Context, input string) (bool, error) {
	var resp moderationResponse
	if err := c.post(ctx, moderationPath, moderationRequest{Input: input}, &resp); err != nil {
		return false, fmt.Errorf("openai: moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return false, errors.New("openai: moderation: no results in response")
	}
	return resp.Results[0].Flagged, nil
}

func (c *Client) complete(ctx context.Context, in completionRequest) (completionResponse, error) {
	if in.Model == "" {
		return completionResponse{}, errors.New("openai: model must not be empty")
	}
	var resp completionResponse
	if err := c.post(ctx, chatPath, in, &resp); err != nil {
		return completionResponse{}, fmt.Errorf("openai: chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return completionResponse{}, errors.New("openai: chat: no choices in response")
	}
	return resp, nil
}

// post sends in as JSON to path and decodes a 2xx answer into out.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := endpoint(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// endpoint joins path onto baseURL, inserting the /v1 segment when the base
// does not already end with it.
func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}
