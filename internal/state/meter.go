package state

import "sort"

// Meter bounds.
const (
	MeterMin = 0
	MeterMax = 100
)

// DefaultThresholds are the meter level boundaries.
var DefaultThresholds = []int{25, 50, 75, 100}

// Meter is the doom clock: a bounded scalar with discrete threshold levels.
//
// LastLevel is the highest level reached since the last decrease, and drives
// Increase's return value. Acknowledged is the level the caller has reacted
// to, and drives ShouldFireLevelEvent. Triggered records which thresholds have
// been crossed so each one fires once per climb.
type Meter struct {
	Value        int          `json:"value"`
	Thresholds   []int        `json:"thresholds"`
	LastLevel    int          `json:"lastLevel"`
	Acknowledged int          `json:"acknowledged"`
	Triggered    map[int]bool `json:"triggered,omitempty"`
}

// NewMeter creates an empty meter. Invalid thresholds fall back to the defaults.
func NewMeter(thresholds []int) Meter {
	if !ValidThresholds(thresholds) {
		thresholds = DefaultThresholds
	}
	return Meter{Thresholds: append([]int(nil), thresholds...)}
}

// ValidThresholds reports whether ts is a non-empty, non-decreasing list within [0,100].
func ValidThresholds(ts []int) bool {
	if len(ts) == 0 {
		return false
	}
	if !sort.IntsAreSorted(ts) {
		return false
	}
	return ts[0] >= MeterMin && ts[len(ts)-1] <= MeterMax
}

func clampMeter(v int) int {
	if v < MeterMin {
		return MeterMin
	}
	if v > MeterMax {
		return MeterMax
	}
	return v
}

func (m *Meter) thresholds() []int {
	if len(m.Thresholds) == 0 {
		return DefaultThresholds
	}
	return m.Thresholds
}

// LevelOf returns the level for value: the number of thresholds at or below it.
// Pure; it does not read or change the meter's value.
func (m *Meter) LevelOf(value int) int {
	level := 0
	for _, t := range m.thresholds() {
		if value >= t {
			level++
		}
	}
	return level
}

// Level returns the current level.
func (m *Meter) Level() int {
	return m.LevelOf(m.Value)
}

// MaxLevel returns the number of levels above zero.
func (m *Meter) MaxLevel() int {
	return len(m.thresholds())
}

// Increase raises the value, clamped to the upper bound. It returns true only
// when the level rises strictly above the last recorded level.
func (m *Meter) Increase(amount int) bool {
	if amount < 0 {
		m.Decrease(-amount)
		return false
	}
	m.Value = clampMeter(m.Value + amount)
	level := m.Level()
	if level <= m.LastLevel {
		return false
	}
	if m.Triggered == nil {
		m.Triggered = make(map[int]bool)
	}
	for _, t := range m.thresholds() {
		if m.Value >= t {
			m.Triggered[t] = true
		}
	}
	m.LastLevel = level
	return true
}

// Decrease lowers the value, clamped to the lower bound. Thresholds above the
// new value are cleared so a later climb fires them again.
func (m *Meter) Decrease(amount int) {
	if amount < 0 {
		m.Increase(-amount)
		return
	}
	m.Value = clampMeter(m.Value - amount)
	level := m.Level()
	if level < m.LastLevel {
		m.LastLevel = level
	}
	if level < m.Acknowledged {
		m.Acknowledged = level
	}
	for t := range m.Triggered {
		if t > m.Value {
			delete(m.Triggered, t)
		}
	}
}

// ShouldFireLevelEvent reports whether the current level exceeds the last
// acknowledged one.
func (m *Meter) ShouldFireLevelEvent() bool {
	return m.Level() > m.Acknowledged
}

// AcknowledgeLevelEvent records that the caller reacted to the current level.
func (m *Meter) AcknowledgeLevelEvent() {
	m.Acknowledged = m.Level()
}

// IsTriggered reports whether threshold t has fired in the current climb.
func (m *Meter) IsTriggered(t int) bool {
	return m.Triggered[t]
}

func (m Meter) clone() Meter {
	out := m
	out.Thresholds = append([]int(nil), m.Thresholds...)
	if m.Triggered != nil {
		out.Triggered = make(map[int]bool, len(m.Triggered))
		for k, v := range m.Triggered {
			out.Triggered[k] = v
		}
	}
	return out
}
