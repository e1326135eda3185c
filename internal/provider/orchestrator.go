package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fateloom/internal/logging"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxDecodeRetries is how many extra attempts follow a decode failure.
const DefaultMaxDecodeRetries = 2

// Orchestrator owns the active provider, the streaming switch and the
// decode-failure retry policy.
type Orchestrator struct {
	mu         sync.RWMutex
	registry   *Registry
	active     Provider
	streaming  bool
	maxRetries int
}

// NewOrchestrator creates an orchestrator with no active provider.
// A nil registry gets the built-in one.
func NewOrchestrator(registry *Registry) *Orchestrator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Orchestrator{registry: registry, maxRetries: DefaultMaxDecodeRetries}
}

// Registry exposes the registry used by Use.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// SetMaxDecodeRetries changes the retry bound. Negative values mean zero.
func (o *Orchestrator) SetMaxDecodeRetries(n int) {
	if n < 0 {
		n = 0
	}
	o.mu.Lock()
	o.maxRetries = n
	o.mu.Unlock()
}

// Use selects a provider from a credential and overrides and makes it
// active. On failure the previous provider is dropped rather than kept, so
// a bad credential never silently falls back to an old one.
func (o *Orchestrator) Use(credential string, ov Overrides) (Provider, error) {
	p, err := o.registry.SelectByCredentialShape(credential, ov)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.active = nil
		return nil, err
	}
	o.active = p
	return p, nil
}

// SetProvider installs p directly.
func (o *Orchestrator) SetProvider(p Provider) {
	o.mu.Lock()
	o.active = p
	o.mu.Unlock()
}

// Active returns the active provider or nil.
func (o *Orchestrator) Active() Provider {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// SetStreamingEnabled flips the single streaming switch.
func (o *Orchestrator) SetStreamingEnabled(enabled bool) {
	o.mu.Lock()
	o.streaming = enabled
	o.mu.Unlock()
}

// Streaming reports the streaming switch.
func (o *Orchestrator) Streaming() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.streaming
}

// Generate runs one logical generation. The stream path is used only when
// streaming is on and opts.OnChunk is set. Decode failures are re-issued as
// fresh requests up to the retry bound; every other error returns at once.
func (o *Orchestrator) Generate(ctx context.Context, prompt, systemInstruction string, opts Options) (map[string]any, error) {
	o.mu.RLock()
	p := o.active
	stream := o.streaming && opts.OnChunk != nil
	maxRetries := o.maxRetries
	o.mu.RUnlock()

	if p == nil {
		return nil, ErrNoActiveProvider
	}

	name := p.Describe().Name
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			logging.ProviderWarn("[%s] decode failure, retrying (%d/%d)", name, attempt, maxRetries)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		var (
			obj map[string]any
			err error
		)
		if stream {
			obj, err = p.GenerateStream(ctx, prompt, systemInstruction, opts.OnChunk, opts)
		} else {
			obj, err = p.Generate(ctx, prompt, systemInstruction, opts)
		}
		if err == nil {
			logging.ProviderDebug("[%s] generation succeeded on attempt %d in %v", name, attempt+1, time.Since(start))
			return obj, nil
		}
		if !errors.Is(err, ErrDecodeFailure) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", maxRetries+1, lastErr)
}

// ProbeResult reports one provider's reachability.
type ProbeResult struct {
	Info      Info
	Reachable bool
	Elapsed   time.Duration
}

// Probe validates several providers concurrently. Results keep input order.
func (o *Orchestrator) Probe(ctx context.Context, providers ...Provider) []ProbeResult {
	results := make([]ProbeResult, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range providers {
		g.Go(func() error {
			start := time.Now()
			ok := p.ValidateCredential(gctx)
			results[i] = ProbeResult{Info: p.Describe(), Reachable: ok, Elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
