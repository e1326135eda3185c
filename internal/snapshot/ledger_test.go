package snapshot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"fateloom/internal/state"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickClock struct {
	t time.Time
}

func (c *tickClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.New()
	require.True(t, s.AddEntity(state.Entity{ID: "npc_1", Name: "Mira"}))
	s.SetStory("The river floods the lower town at night.")
	s.AppendLog(state.RoleGM, "opening")
	return s
}

func TestCaptureNoAliasing(t *testing.T) {
	s := newStore(t)
	l := New()
	snap := l.Capture(s, "start", false)
	stored, ok := l.Get(snap.ID)
	require.True(t, ok)
	want := stored.Frame.Clone()

	s.AddEntity(state.Entity{ID: "npc_2", Name: "Oren"})
	s.SetEntityStatus("npc_1", state.StatusDead, "drowned")
	s.AppendLog(state.RoleGM, "later")
	s.SetStory("changed")
	s.AdvanceTime(12)

	got, _ := l.Get(snap.ID)
	if diff := cmp.Diff(want, got.Frame); diff != "" {
		t.Errorf("stored snapshot changed after store mutation (-want +got):\n%s", diff)
	}

	// Mutating the returned copy must not reach the ledger either.
	snap.Frame.Entities[0].Name = "tampered"
	got, _ = l.Get(snap.ID)
	assert.Equal(t, "Mira", got.Frame.Entities[0].Name)
}

func TestCaptureIDsAndSeq(t *testing.T) {
	s := newStore(t)
	clock := &tickClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(WithClock(clock.now))

	a := l.Capture(s, "a", false)
	b := l.Capture(s, "b", true)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.Seq, b.Seq)
	assert.True(t, b.CreatedAt.After(a.CreatedAt))
	assert.Equal(t, "Year 1, Spring, Day 1 Dawn", a.CalendarLabel)
}

func TestCaptureDefaultLabel(t *testing.T) {
	s := newStore(t)
	l := New()
	snap := l.Capture(s, "", false)
	assert.Equal(t, "Year 1, Spring, Day 1 - The river ...", snap.Label)

	s.SetStory("短い")
	snap = l.Capture(s, "", false)
	assert.Equal(t, "Year 1, Spring, Day 1 - 短い...", snap.Label)
}

func TestRevertDiscardsLaterBranch(t *testing.T) {
	s := newStore(t)
	l := New()
	s1 := l.Capture(s, "S1", false)
	s.AddEntity(state.Entity{ID: "npc_2", Name: "Oren"})
	l.Capture(s, "S2", false)
	s.AddEntity(state.Entity{ID: "npc_3", Name: "Pell"})
	l.Capture(s, "S3", true)

	s.AddFatePoints(12)
	got, err := l.Revert(s1.ID, s)
	require.NoError(t, err)
	assert.Equal(t, "S1", got.Label)

	list := l.List()
	require.Len(t, list, 1)
	assert.Equal(t, s1.ID, list[0].ID)
	assert.Equal(t, 12-DefaultMinorCost, s.FatePoints())

	assert.Len(t, s.Entities(), 1)
	log := s.Log()
	last := log[len(log)-1]
	assert.Equal(t, state.RoleFate, last.Role)
	assert.Equal(t, `Time rewinds to "S1"`, last.Text)
}

func TestRevertInsufficientResources(t *testing.T) {
	s := newStore(t)
	l := New()
	snap := l.Capture(s, "S1", false)
	l.Capture(s, "S2", false)
	s.AddFatePoints(3)
	s.SetStory("after")
	before := s.Capture()

	_, err := l.Revert(snap.ID, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientResource))
	var ire *InsufficientResourceError
	require.True(t, errors.As(err, &ire))
	assert.Equal(t, 5, ire.Need)
	assert.Equal(t, 3, ire.Have)

	assert.Equal(t, 3, s.FatePoints())
	assert.Equal(t, 2, l.Len())
	if diff := cmp.Diff(before, s.Capture()); diff != "" {
		t.Errorf("state changed on refused revert (-before +after):\n%s", diff)
	}
}

func TestRevertUnknownID(t *testing.T) {
	s := newStore(t)
	s.AddFatePoints(20)
	l := New()
	_, err := l.Revert("nope", s)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.Equal(t, 20, s.FatePoints())
}

func TestRevertMajorCost(t *testing.T) {
	s := newStore(t)
	l := New(WithCosts(10, 2))
	major := l.Capture(s, "M", true)
	minor := l.Capture(s, "m", false)
	assert.Equal(t, 10, l.Cost(major))
	assert.Equal(t, 2, l.Cost(minor))

	s.AddFatePoints(9)
	_, err := l.Revert(major.ID, s)
	assert.ErrorIs(t, err, ErrInsufficientResource)

	s.AddFatePoints(1)
	_, err = l.Revert(major.ID, s)
	require.NoError(t, err)
	assert.Equal(t, 0, s.FatePoints())
}

func TestRevertRestoresFrameButNotFate(t *testing.T) {
	s := newStore(t)
	l := New()
	snap := l.Capture(s, "S1", false)
	s.IncreaseMeter(60, "war")
	s.AdvanceTime(30)
	s.AddFatePoints(6)

	_, err := l.Revert(snap.ID, s)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Meter().Value)
	assert.Equal(t, state.NewCalendar(), s.Calendar())
	assert.Equal(t, 1, s.FatePoints(), "pool is not rolled back to capture time")
}

func TestEvictionPrefersMinor(t *testing.T) {
	s := newStore(t)
	var evicted []string
	l := New(WithCapacity(3), WithEvictHook(func(d Descriptor) { evicted = append(evicted, d.Label) }))

	l.Capture(s, "M1", true)
	l.Capture(s, "m1", false)
	l.Capture(s, "M2", true)
	l.Capture(s, "m2", false)
	assert.Equal(t, []string{"m1"}, evicted)
	assert.Equal(t, []string{"M1", "M2", "m2"}, labels(l))

	l.Capture(s, "M3", true)
	assert.Equal(t, []string{"M1", "M2", "M3"}, labels(l))

	// All major: the oldest goes.
	l.Capture(s, "M4", true)
	assert.Equal(t, []string{"M2", "M3", "M4"}, labels(l))
	assert.Equal(t, []string{"m1", "m2", "M1"}, evicted)
}

func TestCapacityDefault(t *testing.T) {
	s := newStore(t)
	l := New()
	for i := 0; i < DefaultCapacity+7; i++ {
		l.Capture(s, fmt.Sprintf("s%d", i), false)
	}
	assert.Equal(t, DefaultCapacity, l.Len())
	assert.Equal(t, "s7", l.List()[0].Label)
}

func TestMarshalLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	clock := &tickClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(WithClock(clock.now))
	l.Capture(s, "one", false)
	s.AdvanceTime(3)
	l.Capture(s, "two", true)

	data, err := l.MarshalJSON()
	require.NoError(t, err)

	loaded := New()
	require.NoError(t, loaded.Load(data))

	opts := cmp.Options{cmpopts.IgnoreFields(state.Entity{}, "X", "Y"), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(l.List(), loaded.List(), opts); diff != "" {
		t.Errorf("descriptors differ (-want +got):\n%s", diff)
	}
	for _, d := range l.List() {
		want, _ := l.Get(d.ID)
		got, ok := loaded.Get(d.ID)
		require.True(t, ok)
		if diff := cmp.Diff(want.Frame, got.Frame, opts); diff != "" {
			t.Errorf("frame %s differs (-want +got):\n%s", d.Label, diff)
		}
	}

	next := loaded.Capture(s, "three", false)
	assert.Equal(t, uint64(3), next.Seq)
}

func TestLoadRejectsGarbage(t *testing.T) {
	s := newStore(t)
	l := New()
	l.Capture(s, "keep", false)

	assert.Error(t, l.Load([]byte("{not json")))
	assert.Error(t, l.Load([]byte(`{"savePoints":[{"name":"no id"}]}`)))
	assert.Equal(t, []string{"keep"}, labels(l))
}

func TestClear(t *testing.T) {
	s := newStore(t)
	l := New()
	l.Capture(s, "a", false)
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, uint64(2), l.Capture(s, "b", false).Seq)
}

func labels(l *Ledger) []string {
	var out []string
	for _, d := range l.List() {
		out = append(out, d.Label)
	}
	return out
}
