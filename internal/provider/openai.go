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
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o"
)

// OpenAIClient speaks the chat/completions API. DeepSeek, Groq, OpenRouter
// and any other compatible endpoint reuse it with a different base URL.
type OpenAIClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(cfg Config) *OpenAIClient {
	cfg = cfg.orDefault("openai", "OpenAI", openAIDefaultBaseURL, openAIDefaultModel)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIClient{cfg: cfg, httpClient: cfg.httpClient()}
}

func (c *OpenAIClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.Credential}
}

func (c *OpenAIClient) request(prompt, systemInstruction string, opts Options, stream bool) openAIRequest {
	var messages []openAIMessage
	if systemInstruction != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})
	return openAIRequest{
		Model:          c.cfg.Model,
		Messages:       messages,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
		Temperature:    c.cfg.temperature(opts),
		MaxTokens:      c.cfg.maxTokens(opts),
		Stream:         stream,
	}
}

// Generate issues one chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, prompt, systemInstruction string, opts Options) (map[string]any, error) {
	if c.cfg.Credential == "" {
		logging.ProviderError("[%s] Generate: API key not configured", c.cfg.Name)
		return nil, authError(c.cfg.Name)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	logging.ProviderDebug("[%s] Generate: model=%s system_len=%d prompt_len=%d", c.cfg.Name, c.cfg.Model, len(systemInstruction), len(prompt))

	body, err := postJSON(ctx, c.httpClient, c.cfg.Name, c.cfg.BaseURL+"/chat/completions", c.headers(), c.request(prompt, systemInstruction, opts, false))
	if err != nil {
		logging.ProviderError("[%s] Generate: %v", c.cfg.Name, err)
		return nil, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.cfg.Name, "malformed envelope")
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: API error: %s", c.cfg.Name, resp.Error.Message)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	logging.Provider("[%s] Generate: completed in %v response_len=%d", c.cfg.Name, time.Since(start), len(text))
	return decodeResult(c.cfg.Name, text, opts)
}

// GenerateStream consumes delta.content server-sent events until [DONE].
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt, systemInstruction string, onChunk ChunkFunc, opts Options) (map[string]any, error) {
	if c.cfg.Credential == "" {
		return nil, authError(c.cfg.Name)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	headers := c.headers()
	headers["Accept"] = "text/event-stream"
	resp, err := doJSON(ctx, c.httpClient, c.cfg.Name, c.cfg.BaseURL+"/chat/completions", headers, c.request(prompt, systemInstruction, opts, true))
	if err != nil {
		logging.ProviderError("[%s] GenerateStream: %v", c.cfg.Name, err)
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(data string) (bool, error) {
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		if len(chunk.Choices) == 0 {
			return false, nil
		}
		text := chunk.Choices[0].Delta.Content
		full.WriteString(text)
		emit(onChunk, text)
		return false, nil
	})
	if err != nil {
		logging.ProviderError("[%s] GenerateStream: failed after %v: %v", c.cfg.Name, time.Since(start), err)
		return nil, fmt.Errorf("%s: stream error: %w", c.cfg.Name, err)
	}
	emitFinal(onChunk)

	logging.Provider("[%s] GenerateStream: completed in %v response_len=%d", c.cfg.Name, time.Since(start), full.Len())
	return decodeResult(c.cfg.Name, full.String(), opts)
}

// ValidateCredential checks the key is present.
func (c *OpenAIClient) ValidateCredential(ctx context.Context) bool {
	return strings.TrimSpace(c.cfg.Credential) != ""
}

// Describe reports static metadata.
func (c *OpenAIClient) Describe() Info {
	return Info{
		Name:              c.cfg.Name,
		DisplayName:       c.cfg.DisplayName,
		ModelID:           c.cfg.Model,
		BaseURL:           c.cfg.BaseURL,
		SupportsStreaming: true,
		SupportsJSON:      true,
	}
}
