// Package snapshot keeps a bounded, ordered ledger of state frames that the
// player can rewind to by spending fate points.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"fateloom/internal/logging"
	"fateloom/internal/state"

	"github.com/google/uuid"
)

// Defaults for a new ledger.
const (
	DefaultCapacity  = 50
	DefaultMajorCost = 8
	DefaultMinorCost = 5
)

// labelStoryRunes is how much of the story an automatic label quotes.
const labelStoryRunes = 10

var (
	// ErrSnapshotNotFound is returned when reverting to an unknown id.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrInsufficientResource matches any *InsufficientResourceError.
	ErrInsufficientResource = errors.New("insufficient fate points")
)

// InsufficientResourceError reports a refused revert.
type InsufficientResourceError struct {
	Need int
	Have int
}

func (e *InsufficientResourceError) Error() string {
	return fmt.Sprintf("insufficient fate points: need %d, have %d", e.Need, e.Have)
}

// Is lets errors.Is match ErrInsufficientResource.
func (e *InsufficientResourceError) Is(target error) bool {
	return target == ErrInsufficientResource
}

// Source is the state a ledger captures from and restores into.
type Source interface {
	Capture() state.Frame
	Apply(state.Frame)
	Calendar() state.Calendar
	Story() string
	FatePoints() int
	SpendFatePoints(n int) bool
	AppendLog(role, text string)
}

// Snapshot is one captured frame. The ledger owns it exclusively.
type Snapshot struct {
	ID            string      `json:"id"`
	Seq           uint64      `json:"seq"`
	Label         string      `json:"name"`
	CalendarLabel string      `json:"calendarString"`
	CreatedAt     time.Time   `json:"timestamp"`
	IsMajor       bool        `json:"isMajor"`
	Frame         state.Frame `json:"snapshot"`
}

// Descriptor is the read-only view of a snapshot returned by List.
type Descriptor struct {
	ID            string
	Seq           uint64
	Label         string
	CalendarLabel string
	CreatedAt     time.Time
	IsMajor       bool
	Cost          int
}

// Ledger is an append-only, capacity-bounded list of snapshots.
// Not safe for concurrent use; each session owns one.
type Ledger struct {
	snapshots []Snapshot
	seq       uint64

	capacity  int
	majorCost int
	minorCost int
	now       func() time.Time
	onEvict   func(Descriptor)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCapacity sets the maximum number of snapshots kept.
func WithCapacity(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithCosts sets the revert cost of major and minor snapshots.
func WithCosts(major, minor int) Option {
	return func(l *Ledger) {
		if major >= 0 {
			l.majorCost = major
		}
		if minor >= 0 {
			l.minorCost = minor
		}
	}
}

// WithClock sets the clock used for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithEvictHook registers fn to be called for every evicted snapshot.
func WithEvictHook(fn func(Descriptor)) Option {
	return func(l *Ledger) { l.onEvict = fn }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		capacity:  DefaultCapacity,
		majorCost: DefaultMajorCost,
		minorCost: DefaultMinorCost,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Capture deep-copies src and appends it. An empty label is derived from the
// calendar and the current story.
func (l *Ledger) Capture(src Source, label string, isMajor bool) Snapshot {
	cal := src.Calendar()
	if label == "" {
		label = fmt.Sprintf("%s - %s...", cal.Label(), truncateRunes(src.Story(), labelStoryRunes))
	}

	l.seq++
	s := Snapshot{
		ID:            newID(),
		Seq:           l.seq,
		Label:         label,
		CalendarLabel: cal.Label() + " " + cal.TimeLabel(),
		CreatedAt:     l.now(),
		IsMajor:       isMajor,
		Frame:         src.Capture(),
	}
	l.snapshots = append(l.snapshots, s)
	logging.Snapshot("captured %q (seq=%d, major=%v)", label, s.Seq, isMajor)

	for len(l.snapshots) > l.capacity {
		l.evict()
	}
	return l.copyOf(s)
}

// evict drops the oldest non-major snapshot, or the oldest one when all are major.
func (l *Ledger) evict() {
	idx := 0
	for i, s := range l.snapshots {
		if !s.IsMajor {
			idx = i
			break
		}
	}
	gone := l.snapshots[idx]
	l.snapshots = append(l.snapshots[:idx], l.snapshots[idx+1:]...)
	if gone.IsMajor {
		logging.SnapshotWarn("evicted major snapshot %q: ledger full of major snapshots", gone.Label)
	} else {
		logging.SnapshotDebug("evicted snapshot %q", gone.Label)
	}
	if l.onEvict != nil {
		l.onEvict(l.describe(gone))
	}
}

// Cost returns the fate points needed to revert to s.
func (l *Ledger) Cost(s Snapshot) int {
	if s.IsMajor {
		return l.majorCost
	}
	return l.minorCost
}

// Revert restores dst to the snapshot with the given id. It deducts the
// snapshot's cost, discards every later snapshot and logs the rewind. When the
// id is unknown or the pool is too small nothing changes.
func (l *Ledger) Revert(id string, dst Source) (Snapshot, error) {
	idx := l.indexOf(id)
	if idx < 0 {
		return Snapshot{}, fmt.Errorf("revert %s: %w", id, ErrSnapshotNotFound)
	}
	target := l.snapshots[idx]
	cost := l.Cost(target)
	if have := dst.FatePoints(); have < cost {
		logging.SnapshotDebug("revert to %q refused: need %d, have %d", target.Label, cost, have)
		return Snapshot{}, &InsufficientResourceError{Need: cost, Have: have}
	}
	if !dst.SpendFatePoints(cost) {
		return Snapshot{}, &InsufficientResourceError{Need: cost, Have: dst.FatePoints()}
	}

	dst.Apply(target.Frame)
	dropped := len(l.snapshots) - idx - 1
	l.snapshots = l.snapshots[:idx+1]
	dst.AppendLog(state.RoleFate, fmt.Sprintf("Time rewinds to %q", target.Label))

	logging.Snapshot("reverted to %q (cost=%d, discarded=%d)", target.Label, cost, dropped)
	return l.copyOf(target), nil
}

// List returns descriptors in capture order.
func (l *Ledger) List() []Descriptor {
	out := make([]Descriptor, len(l.snapshots))
	for i, s := range l.snapshots {
		out[i] = l.describe(s)
	}
	return out
}

// Get returns a copy of the snapshot with the given id.
func (l *Ledger) Get(id string) (Snapshot, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return Snapshot{}, false
	}
	return l.copyOf(l.snapshots[idx]), true
}

// Len returns the number of snapshots held.
func (l *Ledger) Len() int { return len(l.snapshots) }

// Clear drops every snapshot. The sequence counter keeps increasing.
func (l *Ledger) Clear() {
	l.snapshots = nil
}

func (l *Ledger) indexOf(id string) int {
	for i := range l.snapshots {
		if l.snapshots[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) describe(s Snapshot) Descriptor {
	return Descriptor{
		ID:            s.ID,
		Seq:           s.Seq,
		Label:         s.Label,
		CalendarLabel: s.CalendarLabel,
		CreatedAt:     s.CreatedAt,
		IsMajor:       s.IsMajor,
		Cost:          l.Cost(s),
	}
}

func (l *Ledger) copyOf(s Snapshot) Snapshot {
	s.Frame = s.Frame.Clone()
	return s
}

// ledgerFile is the persisted form of a ledger.
type ledgerFile struct {
	Seq       uint64     `json:"seq"`
	Snapshots []Snapshot `json:"savePoints"`
}

// MarshalJSON encodes every snapshot for the ledger save slot.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	snaps := l.snapshots
	if snaps == nil {
		snaps = []Snapshot{}
	}
	return json.Marshal(ledgerFile{Seq: l.seq, Snapshots: snaps})
}

// Load replaces the ledger's contents with a payload from MarshalJSON.
// On error the ledger is unchanged.
func (l *Ledger) Load(data []byte) error {
	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("load snapshot ledger: %w", err)
	}
	seq := f.Seq
	for _, s := range f.Snapshots {
		if s.ID == "" {
			return fmt.Errorf("load snapshot ledger: snapshot without id")
		}
		if s.Seq > seq {
			seq = s.Seq
		}
	}
	l.snapshots = f.Snapshots
	l.seq = seq
	for len(l.snapshots) > l.capacity {
		l.evict()
	}
	logging.Snapshot("loaded %d snapshots", len(l.snapshots))
	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
