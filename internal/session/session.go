// Package session drives one narrative run.
//
// A Session owns exactly one state.Store, one snapshot.Ledger and one
// provider.Orchestrator. Sessions share nothing with each other, so several
// can run in one process against the same storage backend as long as each
// uses its own namespace.
//
// The loop:
//
//	Option → Check (risk only) → AdvanceTime → Prompt → Orchestrator → ApplyNarrativeResult → Autosave
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"fateloom/internal/config"
	"fateloom/internal/legacy"
	"fateloom/internal/logging"
	"fateloom/internal/provider"
	"fateloom/internal/snapshot"
	"fateloom/internal/state"
	"fateloom/internal/store"

	"github.com/google/uuid"
)

var (
	// ErrNoPromptBuilder is returned by commands that need prompts when none is set.
	ErrNoPromptBuilder = errors.New("no prompt builder configured")
	// ErrNoRun is returned by Step before a run has started or been resumed.
	ErrNoRun = errors.New("no run in progress")
)

// Config holds session tuning.
type Config struct {
	// Snapshot ledger
	LedgerCapacity int
	MajorCost      int
	MinorCost      int

	// Doom meter
	Thresholds   []int
	DecayPerTick int

	// History
	HistoryCap    int // log entries kept in the autosave
	CompressAfter int // log length that triggers compression, 0 disables
	CompressKeep  int // entries kept after compression

	// Generation
	MaxDecodeRetries int
	Streaming        bool

	// World mutators drawn per run, 0 and 0 draws none
	MinMutators int
	MaxMutators int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LedgerCapacity:   snapshot.DefaultCapacity,
		MajorCost:        snapshot.DefaultMajorCost,
		MinorCost:        snapshot.DefaultMinorCost,
		Thresholds:       append([]int(nil), state.DefaultThresholds...),
		HistoryCap:       state.DefaultHistoryCap,
		CompressAfter:    25,
		CompressKeep:     5,
		MaxDecodeRetries: provider.DefaultMaxDecodeRetries,
	}
}

// FromConfig maps the file configuration onto session tuning.
func FromConfig(c *config.Config) Config {
	cfg := DefaultConfig()
	cfg.LedgerCapacity = c.Ledger.Capacity
	cfg.MajorCost = c.Ledger.MajorCost
	cfg.MinorCost = c.Ledger.MinorCost
	cfg.Thresholds = c.GetThresholds()
	cfg.DecayPerTick = c.Meter.DecayPerTick
	if c.Storage.HistoryCap > 0 {
		cfg.HistoryCap = c.Storage.HistoryCap
	}
	cfg.MaxDecodeRetries = c.LLM.MaxDecodeRetries
	cfg.Streaming = c.LLM.Streaming
	cfg.MinMutators = c.Rules.MinMutators
	cfg.MaxMutators = c.Rules.MaxMutators
	return cfg
}

// Session is one run of the narrative loop.
type Session struct {
	mu sync.Mutex

	id      string
	cfg     Config
	store   *state.Store
	ledger  *snapshot.Ledger
	orch    *provider.Orchestrator
	gateway *store.Gateway
	legacy  *legacy.Book
	prompts PromptBuilder
	audit   *logging.AuditLogger
	rng     *rand.Rand
	now     func() time.Time
	started bool
}

// Option configures a Session.
type Option func(*Session)

// WithPrompts sets the prompt builder used by generation commands.
func WithPrompts(p PromptBuilder) Option {
	return func(s *Session) { s.prompts = p }
}

// WithGateway enables persistence through g.
func WithGateway(g *store.Gateway) Option {
	return func(s *Session) { s.gateway = g }
}

// WithLegacy pays finished runs into book and applies its boons to new runs.
func WithLegacy(book *legacy.Book) Option {
	return func(s *Session) { s.legacy = book }
}

// WithRand sets the random source for dice and display offsets.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithClock sets the clock for snapshots and saves.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithID fixes the session id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// New creates a session. A nil orchestrator gets one over the built-in registry.
func New(cfg Config, orch *provider.Orchestrator, opts ...Option) *Session {
	s := &Session{
		cfg:  cfg,
		orch: orch,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.orch == nil {
		s.orch = provider.NewOrchestrator(nil)
	}
	s.orch.SetMaxDecodeRetries(cfg.MaxDecodeRetries)
	s.orch.SetStreamingEnabled(cfg.Streaming)
	s.audit = logging.AuditWithSession(s.id)

	storeOpts := []state.StoreOption{
		state.WithThresholds(cfg.Thresholds),
		state.WithHistoryCap(cfg.HistoryCap),
		state.WithClock(s.now),
	}
	if s.rng != nil {
		storeOpts = append(storeOpts, state.WithRand(s.rng))
	}
	s.store = state.New(storeOpts...)
	s.store.SetTickHook(s.onTick)
	settings := s.store.Settings()
	settings.StreamingEnabled = cfg.Streaming
	s.store.SetSettings(settings)

	s.ledger = snapshot.New(
		snapshot.WithCapacity(cfg.LedgerCapacity),
		snapshot.WithCosts(cfg.MajorCost, cfg.MinorCost),
		snapshot.WithClock(s.now),
		snapshot.WithEvictHook(func(d snapshot.Descriptor) {
			s.audit.Event(logging.AuditSnapshotEvict, d.ID, d.Label)
		}),
	)

	logging.Session("session %s created", s.id)
	return s
}

// onTick applies per-tick meter decay.
func (s *Session) onTick(st *state.Store, _ state.Calendar) {
	if s.cfg.DecayPerTick > 0 {
		st.DecreaseMeter(s.cfg.DecayPerTick, "time passes")
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Orchestrator returns the session's orchestrator.
func (s *Session) Orchestrator() *provider.Orchestrator { return s.orch }

// View returns a read-only summary of the current run.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Snapshots lists the ledger in capture order.
func (s *Session) Snapshots() []snapshot.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.List()
}

// Log returns the last n history entries (all when n <= 0).
func (s *Session) Log(n int) []state.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return s.store.Log()
	}
	return s.store.RecentLog(n)
}

// Entities returns the roster.
func (s *Session) Entities() []state.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Entities()
}

// Relationships returns every known relationship.
func (s *Session) Relationships() []state.Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Relationships()
}

// AcknowledgeLevelEvent marks the current doom level as handled.
func (s *Session) AcknowledgeLevelEvent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.AcknowledgeLevelEvent()
}

// =============================================================================
// PROVIDER SETTINGS
// =============================================================================

// SetCredential stores the credential and selects a provider from its shape,
// honoring explicit provider, model and base URL settings. On failure no
// provider stays active.
func (s *Session) SetCredential(value string) (provider.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.store.Settings()
	settings.Credential = value
	s.store.SetSettings(settings)
	return s.selectProvider(settings)
}

// SetProvider records explicit provider preferences and reselects.
// Empty name or "auto" returns to credential detection.
func (s *Session) SetProvider(name, model, baseURL string) (provider.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.store.Settings()
	if name == "" {
		name = "auto"
	}
	settings.Provider = name
	settings.Model = model
	settings.BaseURL = baseURL
	s.store.SetSettings(settings)
	return s.selectProvider(settings)
}

func (s *Session) selectProvider(settings state.Settings) (provider.Info, error) {
	p, err := s.orch.Use(settings.Credential, provider.Overrides{
		Provider: settings.Provider,
		Model:    settings.Model,
		BaseURL:  settings.BaseURL,
	})
	if err != nil {
		logging.SessionWarn("provider selection failed: %v", err)
		return provider.Info{}, err
	}
	info := p.Describe()
	logging.Session("active provider: %s (%s)", info.Name, info.ModelID)
	return info, nil
}

// SetStreamingEnabled flips incremental delivery for later generations.
func (s *Session) SetStreamingEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.store.Settings()
	settings.StreamingEnabled = enabled
	s.store.SetSettings(settings)
	s.orch.SetStreamingEnabled(enabled)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Resume restores the autosave and the snapshot ledger. It returns false
// when there is no autosave.
func (s *Session) Resume(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gateway == nil {
		return false, nil
	}
	data, ok, err := s.gateway.Load(ctx, s.gateway.AutosaveKey())
	if err != nil {
		return false, fmt.Errorf("resume: %w", err)
	}
	if !ok {
		return false, nil
	}
	if !s.store.Restore(data) {
		s.audit.Failure(logging.AuditRunResume, s.gateway.AutosaveKey(), errors.New("autosave unreadable"))
		return false, fmt.Errorf("resume: autosave is corrupt")
	}
	s.orch.SetStreamingEnabled(s.store.Settings().StreamingEnabled)

	ledgerData, ok, err := s.gateway.Load(ctx, s.gateway.LedgerKey())
	if err != nil {
		return true, fmt.Errorf("resume ledger: %w", err)
	}
	if ok {
		if err := s.ledger.Load(ledgerData); err != nil {
			// The run itself is back; only the rewind history is lost.
			logging.SessionWarn("snapshot ledger unreadable, starting empty: %v", err)
			s.ledger.Clear()
		}
	}
	s.started = true
	s.audit.Event(logging.AuditRunResume, s.gateway.Namespace(), fmt.Sprintf("%d snapshots", s.ledger.Len()))
	logging.Session("resumed run: %s, %d snapshots", s.store.Calendar().Label(), s.ledger.Len())
	return true, nil
}

// Save writes the autosave slot.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autosave(ctx)
}

// Peek summarizes the autosave without restoring it.
func (s *Session) Peek(ctx context.Context) (state.SaveInfo, bool, error) {
	if s.gateway == nil {
		return state.SaveInfo{}, false, nil
	}
	data, ok, err := s.gateway.Load(ctx, s.gateway.AutosaveKey())
	if err != nil || !ok {
		return state.SaveInfo{}, false, err
	}
	info, ok := state.Peek(data)
	return info, ok, nil
}

func (s *Session) autosave(ctx context.Context) error {
	if s.gateway == nil {
		return nil
	}
	data, err := s.store.Serialize()
	if err != nil {
		return err
	}
	if err := s.gateway.Save(ctx, s.gateway.AutosaveKey(), data); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}

func (s *Session) persistLedger(ctx context.Context) error {
	if s.gateway == nil {
		return nil
	}
	data, err := s.ledger.MarshalJSON()
	if err != nil {
		return err
	}
	if err := s.gateway.Save(ctx, s.gateway.LedgerKey(), data); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}
