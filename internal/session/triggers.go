package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fateloom/internal/logging"
	"fateloom/internal/snapshot"
	"fateloom/internal/state"
)

// Trigger names why a snapshot is requested.
type Trigger string

const (
	TriggerRisk      Trigger = "risk"    // minor, before a risky choice
	TriggerFate      Trigger = "fate"    // major, on a fate event
	TriggerNewEntity Trigger = "newNPC"  // minor, on meeting someone
	TriggerMonthly   Trigger = "monthly" // minor, once per 30 in-world days
	TriggerManual    Trigger = "manual"  // minor, caller supplied label
)

// month maps a total-days count to its 30-day bucket. -1 (never) stays apart from day 0.
func month(totalDays int) int {
	if totalDays < 0 {
		return -1
	}
	return totalDays / state.DaysPerSeason
}

// RequestSnapshot captures a snapshot for trigger if its policy allows it and
// persists the ledger. ok is false when the trigger declined (monthly inside
// the same month, or an unknown trigger).
func (s *Session) RequestSnapshot(ctx context.Context, trigger Trigger, eventName string) (snapshot.Descriptor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestSnapshot(ctx, trigger, eventName)
}

func (s *Session) requestSnapshot(ctx context.Context, trigger Trigger, eventName string) (snapshot.Descriptor, bool, error) {
	cal := s.store.Calendar()
	date := cal.Label()
	var (
		label   string
		isMajor bool
	)
	switch trigger {
	case TriggerRisk:
		label = date + " - Risky choice"
	case TriggerFate:
		if eventName == "" {
			eventName = "Fate event"
		}
		label = fmt.Sprintf("%s - %s", date, eventName)
		isMajor = true
	case TriggerNewEntity:
		label = fmt.Sprintf("%s - Met %s", date, eventName)
	case TriggerMonthly:
		total := cal.TotalDays()
		if month(total) == month(s.store.LastMonthlyDay()) {
			return snapshot.Descriptor{}, false, nil
		}
		s.store.SetLastMonthlyDay(total)
		label = date + " - Month's end"
	case TriggerManual:
		label = eventName
	default:
		logging.SessionDebug("unknown snapshot trigger %q", trigger)
		return snapshot.Descriptor{}, false, nil
	}

	snap := s.ledger.Capture(s.store, label, isMajor)
	s.audit.Event(logging.AuditSnapshotCapture, snap.ID, snap.Label)

	d := snapshot.Descriptor{
		ID:            snap.ID,
		Seq:           snap.Seq,
		Label:         snap.Label,
		CalendarLabel: snap.CalendarLabel,
		CreatedAt:     snap.CreatedAt,
		IsMajor:       snap.IsMajor,
		Cost:          s.ledger.Cost(snap),
	}
	return d, true, s.persistLedger(ctx)
}

// RequestRevert rewinds the run to a snapshot, paying its cost in fate points.
// Refusals (unknown id, insufficient points) leave everything untouched.
func (s *Session) RequestRevert(ctx context.Context, id string) (snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	snap, err := s.ledger.Revert(id, s.store)
	if err != nil {
		if errors.Is(err, snapshot.ErrInsufficientResource) {
			s.audit.Failure(logging.AuditRevertRefused, id, err)
		}
		return snapshot.Snapshot{}, err
	}
	s.audit.Timed(logging.AuditSnapshotRevert, id, start, nil)
	logging.Session("rewound to %q, %d fate points left", snap.Label, s.store.FatePoints())

	if err := s.persistLedger(ctx); err != nil {
		return snap, err
	}
	return snap, s.autosave(ctx)
}
