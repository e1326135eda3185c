package session

import (
	"errors"
	"math/rand/v2"

	"fateloom/internal/snapshot"
)

// Dice tuning.
const (
	DieSides   = 12
	RerollCost = 3
	minTarget  = 2
	maxTarget  = 12
)

var baseDifficulty = map[string]int{
	"easy":    6,
	"normal":  8,
	"hard":    10,
	"extreme": 12,
}

// ErrRerollUsed is returned when a check has already been rerolled.
var ErrRerollUsed = errors.New("check already rerolled")

// ErrCheckPassed is returned when rerolling a successful check.
var ErrCheckPassed = errors.New("check already succeeded")

// CheckResult is one d12 roll against a threshold.
type CheckResult struct {
	Stat       string
	Difficulty string
	StatValue  int
	Threshold  int
	Roll       int
	Success    bool
	Rerolled   bool
}

// Threshold is the minimum roll for difficulty with the given stat.
// Unknown difficulties count as normal.
func Threshold(difficulty string, statValue int) int {
	base, ok := baseDifficulty[difficulty]
	if !ok {
		base = baseDifficulty["normal"]
	}
	return clampTarget(base - statValue/2)
}

func clampTarget(t int) int {
	if t < minTarget {
		return minTarget
	}
	if t > maxTarget {
		return maxTarget
	}
	return t
}

func (s *Session) rollD12() int {
	return s.intN(DieSides) + 1
}

func (s *Session) intN(n int) int {
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Check rolls a d12 against the player's stat.
func (s *Session) Check(stat, difficulty string) CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(stat, difficulty)
}

func (s *Session) check(stat, difficulty string) CheckResult {
	if difficulty == "" {
		difficulty = "normal"
	}
	base, ok := baseDifficulty[difficulty]
	if !ok {
		base = baseDifficulty["normal"]
	}
	value := s.store.Player().Stat(stat)
	c := CheckResult{
		Stat:       stat,
		Difficulty: difficulty,
		StatValue:  value,
		Threshold:  clampTarget(s.rules().Threshold(base, stat, value)),
	}
	c.Roll = s.rollD12()
	c.Success = c.Roll >= c.Threshold
	return c
}

// Reroll spends fate points to roll a failed check again with the threshold
// lowered by luck/3. Each check can be rerolled once. The run's rules may
// make the reroll cheaper than RerollCost.
func (s *Session) Reroll(c CheckResult) (CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Rerolled {
		return c, ErrRerollUsed
	}
	if c.Success {
		return c, ErrCheckPassed
	}
	cost := s.rules().RerollCost(RerollCost)
	if !s.store.SpendFatePoints(cost) {
		return c, &snapshot.InsufficientResourceError{Need: cost, Have: s.store.FatePoints()}
	}
	luck := s.store.Player().Stat("luck")
	c.Threshold = clampTarget(c.Threshold - luck/3)
	c.Rerolled = true
	c.Roll = s.rollD12()
	c.Success = c.Roll >= c.Threshold
	return c, nil
}
