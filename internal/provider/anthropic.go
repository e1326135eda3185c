package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fateloom/internal/logging"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-3-5-sonnet-20241022"
	anthropicVersion        = "2023-06-01"
	anthropicKeyPrefix      = "sk-ant-"

	// The messages API has no JSON mode, so the prompt asks for it explicitly.
	anthropicJSONReminder = "\n\nRespond with a single valid JSON object only."
)

// AnthropicClient speaks the messages API.
type AnthropicClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(cfg Config) *AnthropicClient {
	cfg = cfg.orDefault("anthropic", "Anthropic Claude", anthropicDefaultBaseURL, anthropicDefaultModel)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &AnthropicClient{cfg: cfg, httpClient: cfg.httpClient()}
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.cfg.Credential,
		"anthropic-version": anthropicVersion,
	}
}

func (c *AnthropicClient) request(prompt, systemInstruction string, opts Options, stream bool) anthropicRequest {
	return anthropicRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.maxTokens(opts),
		System:      systemInstruction,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt + anthropicJSONReminder}},
		Temperature: c.cfg.temperature(opts),
		Stream:      stream,
	}
}

// Generate issues one messages call.
func (c *AnthropicClient) Generate(ctx context.Context, prompt, systemInstruction string, opts Options) (map[string]any, error) {
	if c.cfg.Credential == "" {
		logging.ProviderError("[Anthropic] Generate: API key not configured")
		return nil, authError(c.cfg.Name)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	logging.ProviderDebug("[Anthropic] Generate: model=%s system_len=%d prompt_len=%d", c.cfg.Model, len(systemInstruction), len(prompt))

	body, err := postJSON(ctx, c.httpClient, c.cfg.Name, c.cfg.BaseURL+"/messages", c.headers(), c.request(prompt, systemInstruction, opts, false))
	if err != nil {
		logging.ProviderError("[Anthropic] Generate: %v", err)
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.cfg.Name, "malformed envelope")
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: API error: %s", c.cfg.Name, resp.Error.Message)
	}

	var result strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}

	text := result.String()
	logging.Provider("[Anthropic] Generate: completed in %v response_len=%d", time.Since(start), len(text))
	return decodeResult(c.cfg.Name, text, opts)
}

// GenerateStream consumes content_block_delta events.
func (c *AnthropicClient) GenerateStream(ctx context.Context, prompt, systemInstruction string, onChunk ChunkFunc, opts Options) (map[string]any, error) {
	if c.cfg.Credential == "" {
		return nil, authError(c.cfg.Name)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	headers := c.headers()
	headers["Accept"] = "text/event-stream"
	resp, err := doJSON(ctx, c.httpClient, c.cfg.Name, c.cfg.BaseURL+"/messages", headers, c.request(prompt, systemInstruction, opts, true))
	if err != nil {
		logging.ProviderError("[Anthropic] GenerateStream: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(data string) (bool, error) {
		var evt anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return false, nil
		}
		if evt.Error != nil {
			return true, fmt.Errorf("API error: %s", evt.Error.Message)
		}
		switch evt.Type {
		case "content_block_delta":
			if evt.Delta != nil && evt.Delta.Text != "" {
				full.WriteString(evt.Delta.Text)
				emit(onChunk, evt.Delta.Text)
			}
		case "message_stop":
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		logging.ProviderError("[Anthropic] GenerateStream: failed after %v: %v", time.Since(start), err)
		return nil, fmt.Errorf("%s: stream error: %w", c.cfg.Name, err)
	}
	emitFinal(onChunk)

	logging.Provider("[Anthropic] GenerateStream: completed in %v response_len=%d", time.Since(start), full.Len())
	return decodeResult(c.cfg.Name, full.String(), opts)
}

// ValidateCredential checks the key carries the vendor prefix.
func (c *AnthropicClient) ValidateCredential(ctx context.Context) bool {
	return plausibleKey(c.cfg.Credential, anthropicKeyPrefix)
}

// Describe reports static metadata.
func (c *AnthropicClient) Describe() Info {
	return Info{
		Name:              c.cfg.Name,
		DisplayName:       c.cfg.DisplayName,
		ModelID:           c.cfg.Model,
		BaseURL:           c.cfg.BaseURL,
		SupportsStreaming: true,
		SupportsJSON:      false,
	}
}
