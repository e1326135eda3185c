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
	ollamaDefaultBaseURL = "http://localhost:11434"
	ollamaDefaultModel   = "llama3.2"
)

// OllamaClient talks to a local Ollama daemon. It needs no credential.
type OllamaClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewOllama creates a client for a local daemon.
func NewOllama(cfg Config) *OllamaClient {
	cfg = cfg.orDefault("ollama", "Ollama (local)", ollamaDefaultBaseURL, ollamaDefaultModel)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Credential = ""
	return &OllamaClient{cfg: cfg, httpClient: cfg.httpClient()}
}

func (c *OllamaClient) request(prompt, systemInstruction string, opts Options, stream bool) ollamaRequest {
	return ollamaRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		System: systemInstruction,
		Format: "json",
		Stream: stream,
		Options: ollamaOptions{
			Temperature: c.cfg.temperature(opts),
			NumPredict:  c.cfg.maxTokens(opts),
		},
	}
}

// Generate issues one non-streaming /api/generate call.
func (c *OllamaClient) Generate(ctx context.Context, prompt, systemInstruction string, opts Options) (map[string]any, error) {
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	logging.ProviderDebug("[Ollama] Generate: model=%s prompt_len=%d", c.cfg.Model, len(prompt))

	body, err := postJSON(ctx, c.httpClient, c.cfg.Name, c.cfg.BaseURL+"/api/generate", nil, c.request(prompt, systemInstruction, opts, false))
	if err != nil {
		logging.ProviderError("[Ollama] Generate: %v", err)
		return nil, err
	}

	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(c.cfg.Name, "malformed envelope")
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s: API error: %s", c.cfg.Name, resp.Error)
	}

	logging.Provider("[Ollama] Generate: completed in %v response_len=%d", time.Since(start), len(resp.Response))
	return decodeResult(c.cfg.Name, resp.Response, opts)
}

// GenerateStream consumes newline-delimited JSON until done=true.
func (c *OllamaClient) GenerateStream(ctx context.Context, prompt, systemInstruction string, onChunk ChunkFunc, opts Options) (map[string]any, error) {
	ctx, cancel := withDeadline(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	resp, err := doJSON(ctx, c.httpClient, c.cfg.Name, c.cfg.BaseURL+"/api/generate", nil, c.request(prompt, systemInstruction, opts, true))
	if err != nil {
		logging.ProviderError("[Ollama] GenerateStream: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readNDJSON(resp.Body, func(line []byte) (bool, error) {
		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return false, nil
		}
		if chunk.Error != "" {
			return true, fmt.Errorf("API error: %s", chunk.Error)
		}
		full.WriteString(chunk.Response)
		emit(onChunk, chunk.Response)
		return chunk.Done, nil
	})
	if err != nil {
		logging.ProviderError("[Ollama] GenerateStream: failed after %v: %v", time.Since(start), err)
		return nil, fmt.Errorf("%s: stream error: %w", c.cfg.Name, err)
	}
	emitFinal(onChunk)

	logging.Provider("[Ollama] GenerateStream: completed in %v response_len=%d", time.Since(start), full.Len())
	return decodeResult(c.cfg.Name, full.String(), opts)
}

// ValidateCredential queries the daemon's model list; there is no key to check.
func (c *OllamaClient) ValidateCredential(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.ProviderDebug("[Ollama] ValidateCredential: daemon unreachable: %v", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Describe reports static metadata.
func (c *OllamaClient) Describe() Info {
	return Info{
		Name:              c.cfg.Name,
		DisplayName:       c.cfg.DisplayName,
		ModelID:           c.cfg.Model,
		BaseURL:           c.cfg.BaseURL,
		SupportsStreaming: true,
		SupportsJSON:      true,
	}
}
