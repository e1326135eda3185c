package main

import (
	"context"
	"errors"
	"fmt"

	"fateloom/internal/config"
	"fateloom/internal/legacy"
	"fateloom/internal/provider"
	"fateloom/internal/session"
	"fateloom/internal/store"

	"go.uber.org/zap"
)

// app bundles one opened session with the backend it persists to and the
// namespace's legacy record.
type app struct {
	sess    *session.Session
	backend store.Backend
	gateway *store.Gateway
	book    *legacy.Book
}

func (a *app) Close() error {
	return a.backend.Close()
}

// newRegistry builds the provider registry with config-level defaults applied.
func newRegistry(c *config.Config) *provider.Registry {
	reg := provider.NewRegistry()
	reg.SetDefaults(provider.Config{
		Timeout:         c.GetLLMTimeout(),
		Temperature:     c.LLM.Temperature,
		MaxOutputTokens: c.LLM.MaxOutputTokens,
	})
	return reg
}

// openGateway opens the configured backend and wraps it for the save namespace.
func openGateway(c *config.Config) (store.Backend, *store.Gateway, error) {
	backend, err := store.Open(c.Storage.Backend, c.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", c.Storage.Backend, err)
	}
	gw := store.NewGateway(backend,
		store.WithNamespace(c.Storage.Namespace),
		store.WithSlots(c.Storage.AutosaveKey, c.Storage.LedgerKey),
		store.WithLegacySlot(c.Storage.LegacyKey),
	)
	return backend, gw, nil
}

// openApp builds a session from the loaded config. With resume set, the
// namespace's autosave is restored and a missing one is an error.
func openApp(ctx context.Context, resume bool) (*app, error) {
	backend, gw, err := openGateway(cfg)
	if err != nil {
		return nil, err
	}
	book, err := legacy.Open(ctx, gw)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a := &app{backend: backend, gateway: gw, book: book}

	a.sess = session.New(session.FromConfig(cfg), provider.NewOrchestrator(newRegistry(cfg)),
		session.WithGateway(gw),
		session.WithLegacy(book),
		session.WithPrompts(defaultPrompts{}),
	)

	if resume {
		ok, err := a.sess.Resume(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if !ok {
			_ = a.Close()
			return nil, errors.New(`no run in progress; start one with "loom new"`)
		}
	}

	// Resumed settings win unless the config names a provider explicitly.
	credential := cfg.LLM.Credential
	if (cfg.LLM.Provider != "" && cfg.LLM.Provider != "auto") || cfg.LLM.Model != "" || cfg.LLM.BaseURL != "" {
		if _, err := a.sess.SetProvider(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.BaseURL); err != nil {
			logger.Debug("provider preference not applied yet", zap.Error(err))
		}
	}
	info, err := a.sess.SetCredential(credential)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("select provider: %w", err)
	}
	logger.Debug("provider selected", zap.String("provider", info.Name), zap.String("model", info.ModelID))
	if cfg.LLM.Streaming {
		a.sess.SetStreamingEnabled(true)
	}
	return a, nil
}
