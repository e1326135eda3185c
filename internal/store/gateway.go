package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fateloom/internal/logging"
)

// Default logical slot names.
const (
	DefaultAutosaveKey = "rpg_autosave"
	DefaultLedgerKey   = "rpg_savepoints"
	DefaultLegacyKey   = "rpg_legacy_save"
)

// KeyLister is implemented by backends that can enumerate keys.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Gateway maps the save slots of one session onto backend keys.
// Keys are "<namespace>/<slot>", or just "<slot>" without a namespace.
type Gateway struct {
	backend     Backend
	namespace   string
	autosaveKey string
	ledgerKey   string
	legacyKey   string
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithNamespace prefixes every key so sessions sharing a backend stay apart.
func WithNamespace(ns string) GatewayOption {
	return func(g *Gateway) { g.namespace = strings.Trim(ns, "/") }
}

// WithSlots overrides the autosave and ledger slot names. Empty names keep the default.
func WithSlots(autosave, ledger string) GatewayOption {
	return func(g *Gateway) {
		if autosave != "" {
			g.autosaveKey = autosave
		}
		if ledger != "" {
			g.ledgerKey = ledger
		}
	}
}

// WithLegacySlot overrides the cross-run record slot name. Empty keeps the default.
func WithLegacySlot(name string) GatewayOption {
	return func(g *Gateway) {
		if name != "" {
			g.legacyKey = name
		}
	}
}

// NewGateway wraps backend.
func NewGateway(backend Backend, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		backend:     backend,
		autosaveKey: DefaultAutosaveKey,
		ledgerKey:   DefaultLedgerKey,
		legacyKey:   DefaultLegacyKey,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Namespace returns the key prefix of this gateway.
func (g *Gateway) Namespace() string { return g.namespace }

// AutosaveKey is the slot holding the rolling autosave.
func (g *Gateway) AutosaveKey() string { return g.autosaveKey }

// LedgerKey is the slot holding the snapshot ledger.
func (g *Gateway) LedgerKey() string { return g.ledgerKey }

// LegacyKey is the slot holding the cross-run record. It outlives every run
// in the namespace.
func (g *Gateway) LegacyKey() string { return g.legacyKey }

func (g *Gateway) key(slot string) string {
	if g.namespace == "" {
		return slot
	}
	return g.namespace + "/" + slot
}

// Save writes data to slot.
func (g *Gateway) Save(ctx context.Context, slot string, data []byte) error {
	if err := g.backend.Put(ctx, g.key(slot), data); err != nil {
		logging.StoreError("save %s failed: %v", g.key(slot), err)
		return fmt.Errorf("save %s: %w", slot, err)
	}
	logging.StoreDebug("saved %s (%d bytes)", g.key(slot), len(data))
	return nil
}

// Load reads slot. A missing slot returns ok=false and no error.
func (g *Gateway) Load(ctx context.Context, slot string) ([]byte, bool, error) {
	data, err := g.backend.Get(ctx, g.key(slot))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", slot, err)
	}
	return data, true, nil
}

// Delete removes slot. Deleting a missing slot is not an error.
func (g *Gateway) Delete(ctx context.Context, slot string) error {
	if err := g.backend.Delete(ctx, g.key(slot)); err != nil {
		return fmt.Errorf("delete %s: %w", slot, err)
	}
	return nil
}

// Namespaces lists the namespaces that hold an autosave, when the backend
// can enumerate keys. The empty namespace is reported as "".
func Namespaces(ctx context.Context, backend Backend, autosaveKey string) ([]string, error) {
	lister, ok := backend.(KeyLister)
	if !ok {
		return nil, fmt.Errorf("backend cannot list keys")
	}
	if autosaveKey == "" {
		autosaveKey = DefaultAutosaveKey
	}
	keys, err := lister.Keys(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		switch {
		case k == autosaveKey:
			out = append(out, "")
		case strings.HasSuffix(k, "/"+autosaveKey):
			out = append(out, strings.TrimSuffix(k, "/"+autosaveKey))
		}
	}
	return out, nil
}
