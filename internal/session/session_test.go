package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fateloom/internal/provider"
	"fateloom/internal/snapshot"
	"fateloom/internal/state"
	"fateloom/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRun(t *testing.T) {
	h := startedHarness(t)

	v := h.sess.View()
	assert.Equal(t, "Ashfall", v.WorldName)
	assert.Equal(t, "The gate creaks open.", v.Story)
	require.Len(t, v.Factions, 2)
	for _, f := range v.Factions {
		assert.Equal(t, startingReputation, f.Reputation, f.Name)
	}
	assert.Equal(t, "Mira", v.Player.Name)
	require.Len(t, v.Options, 2)
	assert.Equal(t, state.Option{Text: "Wait"}, v.Options[0])
	assert.True(t, v.Options[1].IsRisk())

	// The opening prompt saw the installed world.
	assert.Equal(t, "Ashfall", h.prompts.lastView.WorldName)
	assert.Equal(t, "Ashfall: A city under a grey sky", h.prompts.lastView.Story)

	// First application always lands in a new month.
	snaps := h.sess.Snapshots()
	require.Len(t, snaps, 1)
	assert.True(t, strings.HasSuffix(snaps[0].Label, "Month's end"), snaps[0].Label)
}

func TestStartRun_DiscardsPreviousRun(t *testing.T) {
	h := startedHarness(t)
	_, err := h.sess.ApplyNarrativeResult(context.Background(), map[string]any{
		"newNPC":    map[string]any{"id": "oren", "name": "Oren"},
		"fateEvent": map[string]any{"name": "Omen", "points": 4},
	})
	require.NoError(t, err)
	require.Len(t, h.sess.Entities(), 1)

	h.mock.push(scene("A new dawn."))
	_, err = h.sess.StartRun(context.Background(), testSeed(), testPlayer())
	require.NoError(t, err)

	assert.Empty(t, h.sess.Entities())
	assert.Zero(t, h.sess.View().FatePoints)
	assert.Len(t, h.sess.Snapshots(), 1)
}

func TestStartRun_FailedOpeningDropsPreviousSnapshots(t *testing.T) {
	h := startedHarness(t)
	ctx := context.Background()
	_, err := h.sess.ApplyNarrativeResult(ctx, map[string]any{
		"fateEvent": map[string]any{"name": "Omen", "points": 4},
	})
	require.NoError(t, err)
	require.NotEmpty(t, h.sess.Snapshots())

	seed := testSeed()
	seed.Name = "Newworld"
	h.mock.fail(errors.New("connection reset"))
	_, err = h.sess.StartRun(ctx, seed, testPlayer())
	require.Error(t, err)
	assert.Empty(t, h.sess.Snapshots())

	resumed := New(DefaultConfig(), nil,
		WithGateway(store.NewGateway(h.backend, store.WithNamespace("t"))),
	)
	ok, err := resumed.Resume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Newworld", resumed.View().WorldName)
	assert.Empty(t, resumed.Snapshots(), "the old run's snapshots must not follow the new world")
}

func TestStartRun_RequiresPrompts(t *testing.T) {
	s := New(DefaultConfig(), nil)
	_, err := s.StartRun(context.Background(), testSeed(), testPlayer())
	assert.ErrorIs(t, err, ErrNoPromptBuilder)
}

func TestGenerateWorlds(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.mock.push(map[string]any{"worlds": []any{
		map[string]any{"name": "Ashfall", "desc": "grey", "factions": []any{
			map[string]any{"name": "Wardens", "desc": "gate", "stance": "neutral"},
		}},
		map[string]any{"name": "  ", "desc": "nameless"},
	}})

	seeds, err := h.sess.GenerateWorlds(context.Background())
	require.NoError(t, err)
	want := []WorldSeed{{
		Name:     "Ashfall",
		Desc:     "grey",
		Factions: []state.Faction{{Name: "Wardens", Description: "gate", Stance: "neutral"}},
	}}
	if diff := cmp.Diff(want, seeds); diff != "" {
		t.Errorf("seeds mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyNarrativeResult(t *testing.T) {
	h := startedHarness(t)
	ctx := context.Background()

	applied, err := h.sess.ApplyNarrativeResult(ctx, map[string]any{
		"story": "A smith waves you over.",
		"newNPC": map[string]any{
			"id": "oren", "name": "Oren", "role": "smith", "description": "soot-stained",
		},
		"newRelations": []any{
			map[string]any{"from": "oren", "to": "player", "type": "ally"},
			map[string]any{"from": "player", "to": "oren", "type": "rival"}, // same pair
		},
		"npcStatusChanges": []any{
			map[string]any{"id": "ghost", "newStatus": "dead"},
			map[string]any{"id": "oren", "newStatus": "injured", "reason": "burn"},
		},
		"fateEvent":  map[string]any{"name": "Omen", "points": 10},
		"doom":       map[string]any{"amount": 30, "reason": "the bell tolls"},
		"reputation": []any{map[string]any{"faction": 0, "delta": 10}, map[string]any{"faction": 9, "delta": 1}},
	})
	require.NoError(t, err)

	assert.True(t, applied.EntityAdded)
	assert.Equal(t, 1, applied.Relations)
	assert.Equal(t, 1, applied.StatusChanges)
	assert.Equal(t, 10, applied.FatePoints)
	assert.True(t, applied.DoomLevelUp)
	assert.Equal(t, 3, applied.Rejected, "duplicate pair, unknown entity, unknown faction")

	require.Len(t, applied.Snapshots, 2)
	assert.Contains(t, applied.Snapshots[0].Label, "Met Oren")
	assert.False(t, applied.Snapshots[0].IsMajor)
	assert.Contains(t, applied.Snapshots[1].Label, "Omen")
	assert.True(t, applied.Snapshots[1].IsMajor)

	v := h.sess.View()
	assert.Equal(t, 10, v.FatePoints)
	assert.Equal(t, 30, v.DoomValue)
	assert.True(t, v.DoomEventDue)
	assert.Equal(t, 60, v.Factions[0].Reputation)
	require.Len(t, v.Entities, 1)
	assert.Equal(t, "soot-stained", v.Entities[0].Description)
	assert.Equal(t, state.StatusInjured, v.Entities[0].Status)
}

func TestApplyNarrativeResult_MalformedItemsDoNotAbortBatch(t *testing.T) {
	h := startedHarness(t)

	applied, err := h.sess.ApplyNarrativeResult(context.Background(), map[string]any{
		"story":        "Rain.",
		"options":      []any{42, "", "Shelter"},
		"newRelations": "not a list",
		"newNPC":       map[string]any{"name": "No Id"},
		"fateEvent":    "soon",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, applied.Rejected)
	assert.False(t, applied.EntityAdded)
	assert.Equal(t, []state.Option{{Text: "Shelter"}}, h.sess.View().Options)
	assert.Equal(t, "Rain.", h.sess.View().Story)
}

func TestApplyNarrativeResult_DuplicateEntityRejected(t *testing.T) {
	h := startedHarness(t)
	npc := map[string]any{"newNPC": map[string]any{"id": "oren", "name": "Oren"}}

	first, err := h.sess.ApplyNarrativeResult(context.Background(), npc)
	require.NoError(t, err)
	assert.True(t, first.EntityAdded)

	second, err := h.sess.ApplyNarrativeResult(context.Background(), npc)
	require.NoError(t, err)
	assert.False(t, second.EntityAdded)
	assert.Empty(t, second.Snapshots)
	assert.Len(t, h.sess.Entities(), 1)
}

func TestApplyNarrativeResult_PersistenceFailureKeepsMutations(t *testing.T) {
	h := startedHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	applied, err := h.sess.ApplyNarrativeResult(ctx, map[string]any{
		"newNPC": map[string]any{"id": "oren", "name": "Oren"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, applied.EntityAdded)
	assert.Len(t, h.sess.Entities(), 1)
}

func TestRequestSnapshot_Triggers(t *testing.T) {
	h := startedHarness(t)
	ctx := context.Background()

	_, ok, err := h.sess.RequestSnapshot(ctx, TriggerMonthly, "")
	require.NoError(t, err)
	assert.False(t, ok, "same month as the opening snapshot")

	h.sess.store.AdvanceTime(state.TicksPerDay * state.DaysPerSeason)
	d, ok, err := h.sess.RequestSnapshot(ctx, TriggerMonthly, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Year 1, Summer, Day 1 - Month's end", d.Label)

	_, ok, _ = h.sess.RequestSnapshot(ctx, TriggerMonthly, "")
	assert.False(t, ok)

	d, ok, err = h.sess.RequestSnapshot(ctx, TriggerFate, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Year 1, Summer, Day 1 - Fate event", d.Label)
	assert.Equal(t, snapshot.DefaultMajorCost, d.Cost)

	d, ok, _ = h.sess.RequestSnapshot(ctx, TriggerRisk, "")
	require.True(t, ok)
	assert.Equal(t, "Year 1, Summer, Day 1 - Risky choice", d.Label)
	assert.Equal(t, snapshot.DefaultMinorCost, d.Cost)

	_, ok, err = h.sess.RequestSnapshot(ctx, Trigger("bogus"), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMonth(t *testing.T) {
	assert.Equal(t, -1, month(-1))
	assert.Equal(t, 0, month(1))
	assert.Equal(t, 0, month(29))
	assert.Equal(t, 1, month(30))
	assert.Equal(t, 4, month(121))
}

func TestRequestRevert(t *testing.T) {
	h := startedHarness(t)
	ctx := context.Background()
	opening := h.sess.Snapshots()[0]

	// Refused without points, nothing changes.
	_, err := h.sess.RequestRevert(ctx, opening.ID)
	var insufficient *snapshot.InsufficientResourceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 0, insufficient.Have)

	_, err = h.sess.ApplyNarrativeResult(ctx, map[string]any{
		"story":     "An omen.",
		"newNPC":    map[string]any{"id": "oren", "name": "Oren"},
		"fateEvent": map[string]any{"name": "Omen", "points": 10},
	})
	require.NoError(t, err)
	require.Len(t, h.sess.Snapshots(), 3)

	snap, err := h.sess.RequestRevert(ctx, opening.ID)
	require.NoError(t, err)
	assert.Equal(t, opening.ID, snap.ID)

	v := h.sess.View()
	assert.Equal(t, 10-opening.Cost, v.FatePoints, "points are spent, not restored")
	assert.Empty(t, v.Entities)
	assert.Len(t, h.sess.Snapshots(), 1, "later branch discarded")
	last := h.sess.Log(1)
	require.Len(t, last, 1)
	assert.Equal(t, state.RoleFate, last[0].Role)

	_, err = h.sess.RequestRevert(ctx, "missing")
	assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}

func TestResume(t *testing.T) {
	h := startedHarness(t)
	ctx := context.Background()
	_, err := h.sess.ApplyNarrativeResult(ctx, map[string]any{
		"newNPC":    map[string]any{"id": "oren", "name": "Oren"},
		"fateEvent": map[string]any{"name": "Omen", "points": 3},
	})
	require.NoError(t, err)

	info, ok, err := h.sess.Peek(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ashfall", info.WorldName)
	assert.Equal(t, 3, info.FatePoints)

	resumed := New(DefaultConfig(), nil,
		WithGateway(store.NewGateway(h.backend, store.WithNamespace("t"))),
		WithPrompts(&MockPrompts{}),
	)
	ok, err = resumed.Resume(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	want, got := h.sess.View(), resumed.View()
	if diff := cmp.Diff(want, got,
		cmpopts.IgnoreFields(state.Entity{}, "X", "Y"),
		cmpopts.EquateEmpty(),
	); diff != "" {
		t.Errorf("resumed view mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(h.sess.Snapshots()), len(resumed.Snapshots()))
}

func TestResume_NothingSaved(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ok, err := h.sess.Resume(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.sess.Step(context.Background(), Turn{Option: state.Option{Text: "Wait"}})
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestResume_CorruptLedgerStillResumes(t *testing.T) {
	h := startedHarness(t)
	ctx := context.Background()
	gw := store.NewGateway(h.backend, store.WithNamespace("t"))
	require.NoError(t, gw.Save(ctx, gw.LedgerKey(), []byte("{garbage")))

	resumed := New(DefaultConfig(), nil, WithGateway(gw))
	ok, err := resumed.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, resumed.Snapshots())
}

func TestSetCredential(t *testing.T) {
	s := New(DefaultConfig(), nil)

	info, err := s.SetCredential("sk-ant-test")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", info.Name)

	_, err = s.SetProvider("nope", "", "")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
	assert.Nil(t, s.Orchestrator().Active(), "no silent fallback to the previous provider")

	info, err = s.SetProvider("auto", "claude-3-haiku-20240307", "")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku-20240307", info.ModelID)
}

func TestGenerate_NoActiveProvider(t *testing.T) {
	s := New(DefaultConfig(), nil, WithPrompts(&MockPrompts{}))
	_, err := s.GenerateWorlds(context.Background())
	assert.ErrorIs(t, err, provider.ErrNoActiveProvider)
}
