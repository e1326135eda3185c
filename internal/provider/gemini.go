package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fateloom/internal/logging"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/"
	geminiDefaultModel   = "gemini-2.0-flash"
	geminiKeyPrefix      = "AIza"
)

// GeminiClient speaks the generateContent REST API with the key passed as a
// query parameter.
type GeminiClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewGemini creates a Gemini REST client.
func NewGemini(cfg Config) *GeminiClient {
	cfg = cfg.orDefault("gemini", "Google Gemini", geminiDefaultBaseURL, geminiDefaultModel)
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	return &GeminiClient{cfg: cfg, httpClient: cfg.httpClient()}
}

func (c *GeminiClient) endpoint(method string, query url.Values) string {
	query.Set("key", c.cfg.Credential)
	return c.cfg.BaseURL + url.PathEscape(c.cfg.Model) + ":" + method + "?" + query.Encode()
}

func (c *GeminiClient) request(prompt, systemInstruction string, opts Options) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      c.cfg.temperature(opts),
			MaxOutputTokens:  c.cfg.maxTokens(opts),
		},
	}
	if systemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}}
	}
	return req
}

// Generate issues one generateContent call.
func (c *GeminiClient) Generate(ctx context.Context, prompt, systemInstruction string, opts Options) (map[string]any, error) {
	if c.cfg.Credential == "" {
		logging.ProviderError("[Gemini] Generate: API key not configured")
		return nil, authError(c.cfg.Name)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	logging.ProviderDebug("[Gemini] Generate: model=%s system_len=%d prompt_len=%d", c.cfg.Model, len(systemInstruction), len(prompt))

	body, err := postJSON(ctx, c.httpClient, c.cfg.Name, c.endpoint("generateContent", url.Values{}), nil, c.request(prompt, systemInstruction, opts))
	if err != nil {
		logging.ProviderError("[Gemini] Generate: %v", err)
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.cfg.Name, "malformed envelope")
	}
	if resp.Error != nil {
		return nil, &HTTPError{Provider: c.cfg.Name, StatusCode: resp.Error.Code, Body: resp.Error.Message}
	}

	text := resp.text()
	logging.Provider("[Gemini] Generate: completed in %v response_len=%d", time.Since(start), len(text))
	return decodeResult(c.cfg.Name, text, opts)
}

// GenerateStream consumes streamGenerateContent as server-sent events.
func (c *GeminiClient) GenerateStream(ctx context.Context, prompt, systemInstruction string, onChunk ChunkFunc, opts Options) (map[string]any, error) {
	if c.cfg.Credential == "" {
		return nil, authError(c.cfg.Name)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	query := url.Values{}
	query.Set("alt", "sse")
	resp, err := doJSON(ctx, c.httpClient, c.cfg.Name, c.endpoint("streamGenerateContent", query), nil, c.request(prompt, systemInstruction, opts))
	if err != nil {
		logging.ProviderError("[Gemini] GenerateStream: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(data string) (bool, error) {
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		if chunk.Error != nil {
			return true, fmt.Errorf("%s: stream error: %s", c.cfg.Name, chunk.Error.Message)
		}
		text := chunk.text()
		full.WriteString(text)
		emit(onChunk, text)
		return false, nil
	})
	if err != nil {
		logging.ProviderError("[Gemini] GenerateStream: failed after %v: %v", time.Since(start), err)
		return nil, err
	}
	emitFinal(onChunk)

	logging.Provider("[Gemini] GenerateStream: completed in %v response_len=%d", time.Since(start), full.Len())
	return decodeResult(c.cfg.Name, full.String(), opts)
}

// ValidateCredential checks the key is present and plausibly shaped.
func (c *GeminiClient) ValidateCredential(ctx context.Context) bool {
	return plausibleKey(c.cfg.Credential, geminiKeyPrefix)
}

// Describe reports static metadata.
func (c *GeminiClient) Describe() Info {
	return Info{
		Name:              c.cfg.Name,
		DisplayName:       c.cfg.DisplayName,
		ModelID:           c.cfg.Model,
		BaseURL:           c.cfg.BaseURL,
		SupportsStreaming: true,
		SupportsJSON:      true,
	}
}
