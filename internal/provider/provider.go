// Package provider adapts third-party text-generation vendors to one
// contract: send a prompt plus system instruction, get back a decoded JSON
// object. Each vendor variant owns its wire format; the Orchestrator owns
// retry and streaming selection.
package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fateloom/internal/decode"
	"fateloom/internal/logging"
)

const (
	// DefaultTemperature applies when neither the call nor the provider config sets one.
	DefaultTemperature = 0.9
	// DefaultMaxOutputTokens applies when neither the call nor the provider config sets one.
	DefaultMaxOutputTokens = 4096
	// DefaultTimeout bounds a request whose context carries no deadline.
	DefaultTimeout = 120 * time.Second
)

// ChunkFunc receives streamed text fragments in arrival order. It is called
// once more with final=true after the last fragment.
type ChunkFunc func(fragment string, final bool)

// Options tune a single generation call.
type Options struct {
	Temperature     *float64
	MaxOutputTokens int
	OnChunk         ChunkFunc

	// Require lists top-level keys the decoded object must carry. A missing
	// key is reported as ErrDecodeFailure so the orchestrator retries it.
	Require []string
}

// Info is static capability metadata for a provider.
type Info struct {
	Name              string `json:"name"`
	DisplayName       string `json:"display_name"`
	ModelID           string `json:"model_id"`
	BaseURL           string `json:"base_url,omitempty"`
	SupportsStreaming bool   `json:"supports_streaming"`
	SupportsJSON      bool   `json:"supports_json"`
}

// Provider is one vendor-specific implementation of the generation contract.
type Provider interface {
	Generate(ctx context.Context, prompt, systemInstruction string, opts Options) (map[string]any, error)
	GenerateStream(ctx context.Context, prompt, systemInstruction string, onChunk ChunkFunc, opts Options) (map[string]any, error)
	ValidateCredential(ctx context.Context) bool
	Describe() Info
}

// Config carries everything a variant needs to construct itself.
type Config struct {
	Name        string // preset name reported by Describe
	DisplayName string
	Credential  string
	BaseURL     string
	Model       string
	Timeout     time.Duration

	// Zero values fall back to DefaultTemperature and DefaultMaxOutputTokens.
	Temperature     float64
	MaxOutputTokens int

	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.timeout()}
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// plausibleKey reports whether credential is non-blank and, when prefix is
// set, starts with it. It never touches the network.
func plausibleKey(credential, prefix string) bool {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return false
	}
	return prefix == "" || strings.HasPrefix(credential, prefix)
}

func (c Config) orDefault(name, display, baseURL, model string) Config {
	if c.Name == "" {
		c.Name = name
	}
	if c.DisplayName == "" {
		c.DisplayName = display
	}
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}

// temperature resolves call option, then config, then the package default.
func (c Config) temperature(opts Options) float64 {
	if opts.Temperature != nil {
		return *opts.Temperature
	}
	if c.Temperature > 0 {
		return c.Temperature
	}
	return DefaultTemperature
}

func (c Config) maxTokens(opts Options) int {
	if opts.MaxOutputTokens > 0 {
		return opts.MaxOutputTokens
	}
	if c.MaxOutputTokens > 0 {
		return c.MaxOutputTokens
	}
	return DefaultMaxOutputTokens
}

// withDeadline applies the transport timeout when the caller set none.
func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// decodeResult turns raw vendor text into the structured result.
func decodeResult(provider, text string, opts Options) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		logging.ProviderWarn("[%s] empty response text", provider)
		return nil, decodeError(provider, "empty response")
	}
	obj, ok := decode.Object(text)
	if !ok {
		logging.ProviderWarn("[%s] undecodable response (%d bytes)", provider, len(text))
		return nil, decodeError(provider, "response is not a JSON object")
	}
	for _, key := range opts.Require {
		if _, present := obj[key]; !present {
			logging.ProviderWarn("[%s] decoded object missing required key %q", provider, key)
			return nil, decodeError(provider, "missing required key "+key)
		}
	}
	return obj, nil
}

// emitFinal delivers the terminal chunk, tolerating a nil callback.
func emitFinal(onChunk ChunkFunc) {
	if onChunk != nil {
		onChunk("", true)
	}
}

func emit(onChunk ChunkFunc, fragment string) {
	if onChunk != nil && fragment != "" {
		onChunk(fragment, false)
	}
}
