package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fateloom/internal/logging"
	"fateloom/internal/snapshot"
	"fateloom/internal/state"
)

// NarrativeResult is the typed form of one decoded scene.
type NarrativeResult struct {
	Story             string
	Options           []state.Option
	NewNPC            *state.Entity
	NewRelations      []state.Relationship
	RevealedRelations []RelationPair
	StatusChanges     []StatusChange
	FateEvent         *FateEvent
	Doom              *DoomChange
	Reputation        []ReputationChange
}

// RelationPair names two entities.
type RelationPair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StatusChange proposes a new status for an entity.
type StatusChange struct {
	ID        string       `json:"id"`
	NewStatus state.Status `json:"newStatus"`
	Reason    string       `json:"reason"`
}

// FateEvent grants fate points and marks a major story beat.
type FateEvent struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// DoomChange moves the doom meter; negative amounts lower it.
type DoomChange struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// ReputationChange shifts standing with one faction.
type ReputationChange struct {
	Faction int `json:"faction"`
	Delta   int `json:"delta"`
}

// optionItem accepts either an option object or a bare string.
type optionItem state.Option

func (o *optionItem) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*o = optionItem{Text: text}
		return nil
	}
	var opt state.Option
	if err := json.Unmarshal(data, &opt); err != nil {
		return err
	}
	*o = optionItem(opt)
	return nil
}

// ParseNarrative converts a decoded object into a NarrativeResult. Items of
// the wrong shape are dropped one at a time; rejected counts them.
func ParseNarrative(obj map[string]any) (res NarrativeResult, rejected int) {
	res.Story, _ = obj["story"].(string)

	for _, o := range decodeItems[optionItem](obj["options"], &rejected) {
		if strings.TrimSpace(o.Text) != "" {
			res.Options = append(res.Options, state.Option(o))
		} else {
			rejected++
		}
	}
	if raw, ok := obj["newNPC"]; ok && raw != nil {
		var e state.Entity
		if decodeValue(raw, &e) == nil && e.ID != "" {
			if m, ok := raw.(map[string]any); ok && e.Description == "" {
				e.Description, _ = m["description"].(string)
			}
			res.NewNPC = &e
		} else {
			rejected++
		}
	}
	res.NewRelations = decodeItems[state.Relationship](obj["newRelations"], &rejected)
	res.RevealedRelations = decodeItems[RelationPair](obj["revealedRelations"], &rejected)
	res.StatusChanges = decodeItems[StatusChange](obj["npcStatusChanges"], &rejected)
	if raw, ok := obj["fateEvent"]; ok && raw != nil {
		var fe FateEvent
		if decodeValue(raw, &fe) == nil {
			res.FateEvent = &fe
		} else {
			rejected++
		}
	}
	if raw, ok := obj["doom"]; ok && raw != nil {
		var d DoomChange
		if decodeValue(raw, &d) == nil {
			res.Doom = &d
		} else {
			rejected++
		}
	}
	res.Reputation = decodeItems[ReputationChange](obj["reputation"], &rejected)
	return res, rejected
}

// decodeValue re-decodes a generic JSON value into out.
func decodeValue(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func decodeItems[T any](v any, rejected *int) []T {
	if v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		*rejected++
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var t T
		if err := decodeValue(item, &t); err != nil {
			*rejected++
			continue
		}
		out = append(out, t)
	}
	return out
}

// Applied reports what ApplyNarrativeResult changed.
type Applied struct {
	EntityAdded   bool
	Relations     int
	Revealed      int
	StatusChanges int
	FatePoints    int
	DoomLevelUp   bool
	Rejected      int
	Snapshots     []snapshot.Descriptor
}

// ApplyNarrativeResult applies a decoded scene to the run, captures the
// triggered snapshots and autosaves. Invalid items are skipped and counted;
// a persistence failure is returned without undoing the applied changes.
func (s *Session) ApplyNarrativeResult(ctx context.Context, obj map[string]any) (Applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyNarrative(ctx, obj)
}

func (s *Session) applyNarrative(ctx context.Context, obj map[string]any) (Applied, error) {
	res, rejected := ParseNarrative(obj)
	applied := Applied{Rejected: rejected}
	var persistErr error
	capture := func(trigger Trigger, name string) {
		d, ok, err := s.requestSnapshot(ctx, trigger, name)
		if ok {
			applied.Snapshots = append(applied.Snapshots, d)
		}
		if err != nil && persistErr == nil {
			persistErr = err
		}
	}

	if res.Story != "" {
		s.store.SetStory(res.Story)
		s.store.AppendLog(state.RoleGM, res.Story)
	}
	rules := s.rules()
	options := make([]state.Option, 0, len(res.Options))
	for _, o := range res.Options {
		if rules.Blocks(o.Type) {
			s.reject("options", o.Text)
			applied.Rejected++
			continue
		}
		options = append(options, o)
	}
	s.store.SetOptions(options)

	if res.NewNPC != nil {
		if s.store.AddEntity(*res.NewNPC) {
			applied.EntityAdded = true
			capture(TriggerNewEntity, res.NewNPC.Name)
			s.discover(ctx, *res.NewNPC)
		} else {
			s.reject("newNPC", res.NewNPC.ID)
			applied.Rejected++
		}
	}
	for _, r := range res.NewRelations {
		if s.store.AddRelationship(r.From, r.To, r.Type, r.Revealed) {
			applied.Relations++
		} else {
			s.reject("newRelations", r.From+"-"+r.To)
			applied.Rejected++
		}
	}
	for _, p := range res.RevealedRelations {
		if s.store.RevealRelationship(p.From, p.To) {
			applied.Revealed++
		} else {
			s.reject("revealedRelations", p.From+"-"+p.To)
			applied.Rejected++
		}
	}
	for _, c := range res.StatusChanges {
		if s.store.SetEntityStatus(c.ID, c.NewStatus, c.Reason) {
			applied.StatusChanges++
		} else {
			s.reject("npcStatusChanges", c.ID)
			applied.Rejected++
		}
	}
	for _, r := range res.Reputation {
		if !s.store.AdjustReputation(r.Faction, r.Delta) {
			s.reject("reputation", fmt.Sprint(r.Faction))
			applied.Rejected++
		}
	}
	if res.Doom != nil {
		if res.Doom.Amount >= 0 {
			applied.DoomLevelUp = s.store.IncreaseMeter(res.Doom.Amount, res.Doom.Reason)
		} else {
			s.store.DecreaseMeter(-res.Doom.Amount, res.Doom.Reason)
		}
	}
	if res.FateEvent != nil {
		if res.FateEvent.Points > 0 {
			points := rules.FatePoints(res.FateEvent.Points)
			s.store.AddFatePoints(points)
			applied.FatePoints = points
		}
		capture(TriggerFate, res.FateEvent.Name)
	}

	capture(TriggerMonthly, "")

	if err := s.autosave(ctx); err != nil && persistErr == nil {
		persistErr = err
	}
	logging.SessionDebug("applied scene: +npc=%v rel=%d rev=%d status=%d rejected=%d",
		applied.EntityAdded, applied.Relations, applied.Revealed, applied.StatusChanges, applied.Rejected)
	return applied, persistErr
}

func (s *Session) reject(field, target string) {
	logging.SessionDebug("rejected %s item %q", field, target)
	s.audit.Event(logging.AuditMutationRejected, target, field)
}
