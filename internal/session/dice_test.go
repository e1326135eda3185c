package session

import (
	"errors"
	"testing"

	"fateloom/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	tests := []struct {
		difficulty string
		stat       int
		want       int
	}{
		{"easy", 0, 6},
		{"normal", 0, 8},
		{"hard", 0, 10},
		{"extreme", 0, 12},
		{"unknown", 0, 8},
		{"", 0, 8},
		{"normal", 4, 6},
		{"normal", 5, 6},
		{"easy", 20, 2},
		{"extreme", -4, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold(tt.difficulty, tt.stat), "%s/%d", tt.difficulty, tt.stat)
	}
}

func TestCheck_RollsWithinDie(t *testing.T) {
	h := startedHarness(t)
	for range 200 {
		c := h.sess.Check("wisdom", "normal")
		require.GreaterOrEqual(t, c.Roll, 1)
		require.LessOrEqual(t, c.Roll, DieSides)
		assert.Equal(t, 4, c.StatValue)
		assert.Equal(t, 6, c.Threshold)
		assert.Equal(t, c.Roll >= c.Threshold, c.Success)
	}
}

func TestReroll_Rules(t *testing.T) {
	h := startedHarness(t)

	_, err := h.sess.Reroll(CheckResult{Success: true, Threshold: 8, Roll: 9})
	assert.ErrorIs(t, err, ErrCheckPassed)

	_, err = h.sess.Reroll(CheckResult{Rerolled: true, Threshold: 8, Roll: 3})
	assert.ErrorIs(t, err, ErrRerollUsed)

	// No fate points yet.
	_, err = h.sess.Reroll(CheckResult{Threshold: 8, Roll: 3})
	var insufficient *snapshot.InsufficientResourceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, RerollCost, insufficient.Need)
	assert.ErrorIs(t, err, snapshot.ErrInsufficientResource)

	h.sess.store.AddFatePoints(4)
	c, err := h.sess.Reroll(CheckResult{Stat: "strength", Threshold: 8, Roll: 3})
	require.NoError(t, err)
	assert.True(t, c.Rerolled)
	assert.Equal(t, 6, c.Threshold, "luck 6 lowers the threshold by 2")
	assert.Equal(t, 1, h.sess.View().FatePoints)
}

func TestReroll_ThresholdFloor(t *testing.T) {
	h := startedHarness(t)
	h.sess.store.AddFatePoints(3)
	c, err := h.sess.Reroll(CheckResult{Threshold: 3, Roll: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Threshold)
}

func TestReroll_NegativeLuckStaysOnDie(t *testing.T) {
	h := startedHarness(t)
	h.sess.store.AddFatePoints(3)
	p := h.sess.store.Player()
	p.Stats["luck"] = -9
	h.sess.store.SetPlayer(p)

	c, err := h.sess.Reroll(CheckResult{Stat: "strength", Threshold: 11, Roll: 4})
	require.NoError(t, err)
	assert.Equal(t, maxTarget, c.Threshold)
}
