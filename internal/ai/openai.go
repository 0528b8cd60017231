// Package ai talks to an OpenAI-compatible chat completions endpoint and
// turns its answers into validated sheet classifications and header
// detections.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMissingAPIKey is returned when the client is built without a key.
	ErrMissingAPIKey = errors.New("ai: missing api key")
	// ErrRateLimited is returned on HTTP 429 from the upstream.
	ErrRateLimited = errors.New("ai: rate limited by upstream")
	// ErrEmptyResponse is returned when the upstream answers without content.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a chat completion request. When Schema is set the upstream is
// asked for structured output conforming to it.
type Prompt struct {
	SchemaName string
	Schema     json.RawMessage
	Messages   []Message
}

// Completer sends a prompt and returns the raw text of the first choice.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// UpstreamError is a non-2xx answer from the completions endpoint.
type UpstreamError struct {
	Message string
	Status  int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ai: upstream status %d: %s", e.Status, e.Message)
}

// Options configures an OpenAIClient.
type Options struct {
	Temperature *float64
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
}

// OpenAIClient is a Completer for OpenAI-compatible chat completions APIs.
type OpenAIClient struct {
	hc     *http.Client
	temp   *float64
	url    string
	apiKey string
	model  string
}

// NewOpenAIClient creates a client from options.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	opts.defaults()
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return &OpenAIClient{
		hc:     &http.Client{Timeout: opts.Timeout},
		temp:   opts.Temperature,
		url:    strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		apiKey: opts.APIKey,
		model:  opts.Model,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

type chatRequest struct {
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
}

type responseFormat struct {
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
	Type       string            `json:"type"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt and returns the content of the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    p.Messages,
		Temperature: c.temp,
	}
	if len(p.Schema) > 0 {
		name := p.SchemaName
		if name == "" {
			name = "response"
		}
		reqBody.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: name, Schema: p.Schema},
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("ai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(slurp))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
