package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fateloom/internal/logging"
	"fateloom/internal/provider"
	"fateloom/internal/state"
)

// startingReputation is every faction's standing when a run begins.
const startingReputation = 50

// WorldSeed is one candidate world offered before a run starts.
type WorldSeed struct {
	Name     string          `json:"name"`
	Theme    string          `json:"theme,omitempty"`
	Desc     string          `json:"desc"`
	Conflict string          `json:"conflict,omitempty"`
	Factions []state.Faction `json:"factions"`
	// Mutators pins the world rules instead of drawing them.
	Mutators []string `json:"mutators,omitempty"`
}

// asMap renders the seed as the store's opaque world description.
func (w WorldSeed) asMap() map[string]any {
	m := map[string]any{"name": w.Name, "desc": w.Desc}
	if w.Theme != "" {
		m["theme"] = w.Theme
	}
	if w.Conflict != "" {
		m["conflict"] = w.Conflict
	}
	return m
}

// GenerateWorlds asks the active provider for candidate worlds. Seeds without
// a name are dropped.
func (s *Session) GenerateWorlds(ctx context.Context) ([]WorldSeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prompts == nil {
		return nil, ErrNoPromptBuilder
	}
	p := s.prompts.Worlds()
	obj, err := s.generate(ctx, "worlds", p, provider.Options{Require: []string{"worlds"}})
	if err != nil {
		return nil, err
	}
	var seeds []WorldSeed
	if err := decodeValue(obj["worlds"], &seeds); err != nil {
		return nil, fmt.Errorf("worlds: %w", provider.ErrDecodeFailure)
	}
	out := seeds[:0]
	for _, w := range seeds {
		if strings.TrimSpace(w.Name) != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

// StartRun discards any current run and the ledger, installs the world and
// player under the run's rules, and generates the opening scene. The rules
// are the seed's pinned mutators or a fresh draw, plus every legacy boon.
func (s *Session) StartRun(ctx context.Context, seed WorldSeed, player state.Player) (Applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prompts == nil {
		return Applied{}, ErrNoPromptBuilder
	}
	bg, err := s.background(player.Background)
	if err != nil {
		return Applied{}, err
	}
	player.Background = bg.ID
	player.Traits = normalizeTraits(player.Traits)

	s.store.Reset()
	s.ledger.Clear()
	if err := s.persistLedger(ctx); err != nil {
		logging.SessionWarn("clearing previous snapshots: %v", err)
	}
	s.store.SetWorld(seed.asMap())
	factions := make([]state.Faction, len(seed.Factions))
	for i, f := range seed.Factions {
		f.Reputation = startingReputation
		factions[i] = f
	}
	s.store.SetFactions(factions)
	if player.Stats == nil {
		player.Stats = state.DefaultPlayer().Stats
	}
	s.store.SetPlayer(player)
	rules := state.RunRules{Mutators: s.drawRules(seed.Mutators).IDs()}
	if s.legacy != nil {
		rules.Boons = s.legacy.Boons()
	}
	s.store.SetRules(rules)
	s.applyRunStart(bg)
	s.store.SetStory(fmt.Sprintf("%s: %s", seed.Name, seed.Desc))
	s.started = true
	s.audit.Event(logging.AuditRunStart, seed.Name, player.Name)
	logging.Session("run started in %q as %s (%s), rules %v", seed.Name, player.Name, bg.ID, rules.Mutators)

	p := s.prompts.Opening(s.view())
	obj, err := s.generate(ctx, "opening", p, provider.Options{Require: []string{"story"}})
	if err != nil {
		// The world stays installed so the caller can retry the opening with Step.
		if saveErr := s.autosave(ctx); saveErr != nil {
			logging.SessionWarn("autosave after failed opening: %v", saveErr)
		}
		return Applied{}, err
	}
	return s.applyNarrative(ctx, obj)
}

// Turn is one player decision.
type Turn struct {
	Option state.Option
	// Check is a roll already made (and maybe rerolled) by the caller. Risk
	// options without one are rolled automatically.
	Check   *CheckResult
	OnChunk provider.ChunkFunc
}

// StepResult reports one completed turn.
type StepResult struct {
	Check      *CheckResult
	Applied    Applied
	Compressed bool
	Duration   time.Duration
}

// Step plays one turn: risk snapshot, check, time, generation, application
// and, when the log has grown long, history compression. A failed generation
// leaves the action logged and time advanced; the caller may retry the turn.
func (s *Session) Step(ctx context.Context, turn Turn) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNoRun
	}
	if s.prompts == nil {
		return nil, ErrNoPromptBuilder
	}
	start := time.Now()
	res := &StepResult{}
	opt := turn.Option

	if opt.IsRisk() {
		if _, _, err := s.requestSnapshot(ctx, TriggerRisk, ""); err != nil {
			logging.SessionWarn("risk snapshot not persisted: %v", err)
		}
	}
	check := turn.Check
	if check == nil && (opt.IsRisk() || opt.CheckStat != "") {
		difficulty := opt.Difficulty
		if opt.IsRisk() && difficulty == "" {
			difficulty = "hard"
		}
		c := s.check(opt.CheckStat, difficulty)
		check = &c
	}
	res.Check = check

	advance := opt.TimeAdvance
	if advance <= 0 {
		advance = 1
	}
	s.store.AdvanceTime(advance)

	action := opt.Text
	if check != nil {
		outcome := "failure"
		if check.Success {
			outcome = "success"
		}
		action = fmt.Sprintf("%s (%s)", opt.Text, outcome)
	}
	s.store.AppendLog(state.RolePlayer, action)

	v := s.view()
	p := s.prompts.NextScene(v, action, check)
	obj, err := s.generate(ctx, "scene", p, provider.Options{
		OnChunk: turn.OnChunk,
		Require: []string{"story"},
	})
	if err != nil {
		res.Duration = time.Since(start)
		return res, err
	}
	if v.DoomEventDue {
		s.store.AcknowledgeLevelEvent()
	}

	applied, err := s.applyNarrative(ctx, obj)
	res.Applied = applied
	if err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	if s.cfg.CompressAfter > 0 && len(s.store.Log()) > s.cfg.CompressAfter {
		if cerr := s.compress(ctx); cerr != nil {
			logging.SessionWarn("history compression skipped: %v", cerr)
		} else {
			res.Compressed = true
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// CompressHistory condenses the log into a summary, keeping only the most
// recent entries verbatim.
func (s *Session) CompressHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompts == nil {
		return ErrNoPromptBuilder
	}
	return s.compress(ctx)
}

func (s *Session) compress(ctx context.Context) error {
	log := s.store.Log()
	if len(log) == 0 {
		return nil
	}
	p := s.prompts.Compress(s.view(), log)
	obj, err := s.generate(ctx, "compress", p, provider.Options{Require: []string{"summary"}})
	if err != nil {
		return err
	}
	summary, _ := obj["summary"].(string)
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("compress: empty summary: %w", provider.ErrDecodeFailure)
	}
	keep := s.cfg.CompressKeep
	if keep < 0 {
		keep = 0
	}
	s.store.SetCompressedHistory(summary, keep)
	logging.Session("compressed %d log entries", len(log)-min(keep, len(log)))
	return s.autosave(ctx)
}

// generate runs one orchestrated call with audit records around it.
func (s *Session) generate(ctx context.Context, target string, p Prompt, opts provider.Options) (map[string]any, error) {
	s.audit.Event(logging.AuditGenerateRequest, target, fmt.Sprintf("%d chars", len(p.User)))
	start := time.Now()
	obj, err := s.orch.Generate(ctx, p.User, p.System, opts)
	if err != nil {
		if errors.Is(err, provider.ErrDecodeFailure) {
			s.audit.Failure(logging.AuditDecodeRetry, target, err)
		}
		s.audit.Timed(logging.AuditGenerateError, target, start, err)
		return nil, err
	}
	s.audit.Timed(logging.AuditGenerateResult, target, start, nil)
	return obj, nil
}
