package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fateloom/internal/logging"

	"google.golang.org/genai"
)

// GenAIClient reaches Gemini through the Google GenAI SDK instead of raw REST.
// It has no incremental path, so GenerateStream emits the whole result as
// one terminal chunk.
type GenAIClient struct {
	cfg    Config
	client *genai.Client
}

// NewGenAI creates an SDK-backed Gemini client.
func NewGenAI(cfg Config) (*GenAIClient, error) {
	cfg = cfg.orDefault("gemini-sdk", "Google Gemini (SDK)", "", geminiDefaultModel)
	if cfg.Credential == "" {
		return &GenAIClient{cfg: cfg}, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.Credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient(),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{cfg: cfg, client: client}, nil
}

// Generate issues one GenerateContent call with a JSON response type.
func (c *GenAIClient) Generate(ctx context.Context, prompt, systemInstruction string, opts Options) (map[string]any, error) {
	if c.client == nil {
		logging.ProviderError("[GenAI] Generate: API key not configured")
		return nil, authError(c.cfg.Name)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	logging.ProviderDebug("[GenAI] Generate: model=%s system_len=%d prompt_len=%d", c.cfg.Model, len(systemInstruction), len(prompt))

	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(c.cfg.temperature(opts))),
		MaxOutputTokens:  int32(c.cfg.maxTokens(opts)),
		ResponseMIMEType: "application/json",
	}
	if systemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, gc)
	if err != nil {
		logging.ProviderError("[GenAI] Generate: %v", err)
		return nil, sdkError(c.cfg.Name, err)
	}

	text := resp.Text()
	logging.Provider("[GenAI] Generate: completed in %v response_len=%d", time.Since(start), len(text))
	return decodeResult(c.cfg.Name, text, opts)
}

// GenerateStream degrades to Generate plus a single terminal chunk.
func (c *GenAIClient) GenerateStream(ctx context.Context, prompt, systemInstruction string, onChunk ChunkFunc, opts Options) (map[string]any, error) {
	obj, err := c.Generate(ctx, prompt, systemInstruction, opts)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(marshalCompact(obj), true)
	}
	return obj, nil
}

// ValidateCredential checks the key is present and shaped like a Google key.
func (c *GenAIClient) ValidateCredential(ctx context.Context) bool {
	return plausibleKey(c.cfg.Credential, geminiKeyPrefix)
}

// Describe reports static metadata.
func (c *GenAIClient) Describe() Info {
	return Info{
		Name:              c.cfg.Name,
		DisplayName:       c.cfg.DisplayName,
		ModelID:           c.cfg.Model,
		BaseURL:           c.cfg.BaseURL,
		SupportsStreaming: false,
		SupportsJSON:      true,
	}
}

// sdkError maps SDK API errors onto HTTPError so callers see one shape.
func sdkError(provider string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{Provider: provider, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &HTTPError{Provider: provider, StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return fmt.Errorf("%s: request failed: %w", provider, err)
}

func marshalCompact(obj map[string]any) string {
	data, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(data)
}
