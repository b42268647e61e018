package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/storage"
)

// PassKind names one idempotent repair pass over the whole history.
type PassKind string

const (
	PassTrimOverlap           PassKind = "trim_overlap"
	PassUnbounded             PassKind = "unbounded"
	PassSameCaregiverOverlap  PassKind = "same_caregiver_overlap"
	PassCrossCaregiverOverlap PassKind = "cross_caregiver_overlap"
	PassAnomalies             PassKind = "anomalies"
)

func ValidPassKind(k PassKind) bool {
	switch k {
	case PassTrimOverlap, PassUnbounded, PassSameCaregiverOverlap, PassCrossCaregiverOverlap, PassAnomalies:
		return true
	}
	return false
}

// Shift passes iterate to a fixed point; a shift can open a fresh overlap
// with a later session, so a single sweep is not always enough.
const maxRepairIterations = 10

// Minimum plausible session length flagged by the anomaly scan, in minutes.
const suspiciouslyShortMinutes = 5

type Correction struct {
	EventID int64  `json:"event_id" yaml:"event_id"`
	User    string `json:"user" yaml:"user"`
	Detail  string `json:"detail" yaml:"detail"`
}

type Anomaly struct {
	EventID int64  `json:"event_id" yaml:"event_id"`
	User    string `json:"user" yaml:"user"`
	Class   string `json:"class" yaml:"class"`
	Detail  string `json:"detail" yaml:"detail"`
}

type CorrectionReport struct {
	Kind       PassKind     `json:"kind" yaml:"kind"`
	Corrected  []Correction `json:"corrected" yaml:"corrected"`
	Anomalies  []Anomaly    `json:"anomalies" yaml:"anomalies"`
	Iterations int          `json:"iterations" yaml:"iterations"`
}

// RunCorrectionPass executes one repair pass inside a single transaction and
// verifies convergence before committing. Anomalies are reported, never
// auto-corrected; re-running any pass is safe and yields no further changes.
func RunCorrectionPass(ctx context.Context, store storage.EventStore, logger internal.Logger, kind PassKind) (*CorrectionReport, error) {
	if !ValidPassKind(kind) {
		return nil, internal.NewValidationError("kind", "unknown correction pass: "+string(kind))
	}
	report := &CorrectionReport{Kind: kind, Corrected: []Correction{}, Anomalies: []Anomaly{}}
	err := store.InTx(ctx, func(tx storage.EventStore) error {
		var err error
		switch kind {
		case PassTrimOverlap:
			err = trimOverlapPass(ctx, tx, report)
		case PassUnbounded:
			err = unboundedPass(ctx, tx, report)
		case PassSameCaregiverOverlap:
			err = sameCaregiverOverlapPass(ctx, tx, report)
		case PassCrossCaregiverOverlap:
			err = crossCaregiverOverlapPass(ctx, tx, report)
		case PassAnomalies:
			err = anomalyScan(ctx, tx, report)
		}
		if err != nil {
			return err
		}
		return verifyPass(ctx, tx, kind)
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("correction pass %s: %d corrected, %d anomalies, %d iterations",
		kind, len(report.Corrected), len(report.Anomalies), report.Iterations)
	return report, nil
}

func loadAllEvents(ctx context.Context, tx storage.EventStore) ([]internal.Event, error) {
	return tx.List(ctx, storage.EventFilter{})
}

func loadSleeps(ctx context.Context, tx storage.EventStore) ([]internal.Event, error) {
	sleeps, err := tx.List(ctx, storage.EventFilter{Types: []internal.EventType{internal.EventSleep}})
	if err != nil {
		return nil, err
	}
	sort.Slice(sleeps, func(i, j int) bool {
		if sleeps[i].Sleep.Start.Equal(sleeps[j].Sleep.Start) {
			return sleeps[i].ID < sleeps[j].ID
		}
		return sleeps[i].Sleep.Start.Before(sleeps[j].Sleep.Start)
	})
	return sleeps, nil
}

// earliestInsideEvent returns the earliest non-sleep event strictly inside
// the session interval, or nil. Open sessions extend to infinity.
func earliestInsideEvent(s *internal.Event, events []internal.Event) *internal.Event {
	var earliest *internal.Event
	for i := range events {
		ev := &events[i]
		if ev.Type == internal.EventSleep {
			continue
		}
		if !ev.Timestamp.After(s.Sleep.Start) {
			continue
		}
		if s.Sleep.End != nil && !ev.Timestamp.Before(*s.Sleep.End) {
			continue
		}
		if earliest == nil || ev.Timestamp.Before(earliest.Timestamp) {
			earliest = ev
		}
	}
	return earliest
}

// trimOverlapPass re-ends every sleep session that has a non-sleep event
// strictly inside its interval at the earliest such event's timestamp.
// Sessions whose recomputed duration would leave the hard bounds are
// reported as anomalies and left untouched.
func trimOverlapPass(ctx context.Context, tx storage.EventStore, report *CorrectionReport) error {
	events, err := loadAllEvents(ctx, tx)
	if err != nil {
		return err
	}
	sleeps, err := loadSleeps(ctx, tx)
	if err != nil {
		return err
	}
	report.Iterations = 1
	for i := range sleeps {
		s := &sleeps[i]
		inside := earliestInsideEvent(s, events)
		if inside == nil {
			continue
		}
		mins := internal.RoundedMinutes(s.Sleep.Start, inside.Timestamp)
		if mins <= 0 || mins > internal.MaxSleepMinutes {
			report.Anomalies = append(report.Anomalies, Anomaly{
				EventID: s.ID, User: s.UserName, Class: "trim_out_of_range",
				Detail: fmt.Sprintf("trimming to event %d at %s would yield %d minutes; manual review required",
					inside.ID, inside.Timestamp.Format(time.RFC3339), mins),
			})
			continue
		}
		end := inside.Timestamp
		if _, err := tx.Update(ctx, s.ID, storage.EventUpdate{Amount: &mins, SleepEnd: &end}); err != nil {
			return err
		}
		report.Corrected = append(report.Corrected, Correction{
			EventID: s.ID, User: s.UserName,
			Detail: fmt.Sprintf("trimmed to %s (%d min) at overlapping event %d", end.Format(time.RFC3339), mins, inside.ID),
		})
	}
	return nil
}

// unboundedPass re-ends sessions recorded longer than the 12-hour ceiling at
// the start of the next sleep session for any caregiver, capped at exactly
// 720 minutes from start when no next session exists or it starts too late.
func unboundedPass(ctx context.Context, tx storage.EventStore, report *CorrectionReport) error {
	sleeps, err := loadSleeps(ctx, tx)
	if err != nil {
		return err
	}
	report.Iterations = 1
	for i := range sleeps {
		s := &sleeps[i]
		if s.Sleep.End == nil || s.Sleep.DurationMinutes() <= internal.MaxSleepMinutes {
			continue
		}
		newEnd := s.Sleep.Start.Add(internal.MaxSleepMinutes * time.Minute)
		for j := range sleeps {
			n := &sleeps[j]
			if n.ID == s.ID || !n.Sleep.Start.After(s.Sleep.Start) {
				continue
			}
			if n.Sleep.Start.Before(newEnd) {
				newEnd = n.Sleep.Start
			}
			break // sleeps are start-ordered, the first later start decides
		}
		mins := internal.RoundedMinutes(s.Sleep.Start, newEnd)
		end := newEnd
		if _, err := tx.Update(ctx, s.ID, storage.EventUpdate{Amount: &mins, SleepEnd: &end}); err != nil {
			return err
		}
		report.Corrected = append(report.Corrected, Correction{
			EventID: s.ID, User: s.UserName,
			Detail: fmt.Sprintf("unbounded session re-ended at %s (%d min)", end.Format(time.RFC3339), mins),
		})
	}
	return nil
}

func exactDuplicate(a, b *internal.Event) bool {
	if a.UserName != b.UserName || a.Sleep == nil || b.Sleep == nil {
		return false
	}
	if !a.Sleep.Start.Equal(b.Sleep.Start) {
		return false
	}
	if a.Sleep.End == nil || b.Sleep.End == nil {
		return a.Sleep.End == b.Sleep.End
	}
	return a.Sleep.End.Equal(*b.Sleep.End)
}

// applyShift mirrors shiftSession on an in-memory copy so a sweep can keep
// comparing against already-repaired sessions.
func applyShift(s *internal.Event, newStart time.Time) {
	if s.Sleep.End != nil {
		newEnd := newStart.Add(s.Sleep.End.Sub(s.Sleep.Start))
		s.Sleep.End = &newEnd
	}
	s.Sleep.Start = newStart
	s.Timestamp = newStart
}

// shiftSession moves a session to begin at newStart, preserving its
// duration (and openness) and keeping the anchor timestamp equal to start.
func shiftSession(ctx context.Context, tx storage.EventStore, s *internal.Event, newStart time.Time) error {
	upd := storage.EventUpdate{SleepStart: &newStart, Timestamp: &newStart}
	if s.Sleep.End != nil {
		newEnd := newStart.Add(s.Sleep.End.Sub(s.Sleep.Start))
		upd.SleepEnd = &newEnd
	}
	_, err := tx.Update(ctx, s.ID, upd)
	return err
}

// sameCaregiverOverlapPass shifts any session that starts before the
// previous session's end for the same caregiver forward to begin exactly at
// that end, preserving duration. Exact duplicates are left for the anomaly
// scan. Repeats until a sweep finds nothing, bounded by maxRepairIterations.
func sameCaregiverOverlapPass(ctx context.Context, tx storage.EventStore, report *CorrectionReport) error {
	for iter := 1; iter <= maxRepairIterations; iter++ {
		report.Iterations = iter
		sleeps, err := loadSleeps(ctx, tx)
		if err != nil {
			return err
		}
		changed := false
		byUser := map[string][]internal.Event{}
		for _, s := range sleeps {
			byUser[s.UserName] = append(byUser[s.UserName], s)
		}
		for user, sessions := range byUser {
			for i := 1; i < len(sessions); i++ {
				prev, cur := &sessions[i-1], &sessions[i]
				if prev.Sleep.End == nil {
					continue
				}
				if exactDuplicate(prev, cur) {
					continue
				}
				if cur.Sleep.Start.Before(*prev.Sleep.End) {
					newStart := *prev.Sleep.End
					if err := shiftSession(ctx, tx, cur, newStart); err != nil {
						return err
					}
					applyShift(cur, newStart)
					report.Corrected = append(report.Corrected, Correction{
						EventID: cur.ID, User: user,
						Detail: fmt.Sprintf("shifted to %s after overlapping session %d", newStart.Format(time.RFC3339), prev.ID),
					})
					changed = true
				}
			}
		}
		if !changed {
			return nil
		}
	}
	return fmt.Errorf("same-caregiver overlap repair did not converge in %d iterations", maxRepairIterations)
}

// crossCaregiverOverlapPass shifts the later-starting of two overlapping
// completed sessions of different caregivers to begin at the earlier one's
// end. The start-ordered sweep with (start, user, id) ties makes the
// outcome deterministic.
func crossCaregiverOverlapPass(ctx context.Context, tx storage.EventStore, report *CorrectionReport) error {
	for iter := 1; iter <= maxRepairIterations; iter++ {
		report.Iterations = iter
		sleeps, err := loadSleeps(ctx, tx)
		if err != nil {
			return err
		}
		completed := completedSessionsOrdered(sleeps)
		changed := false
		for i := 1; i < len(completed); i++ {
			for j := 0; j < i; j++ {
				earlier, later := &completed[j], &completed[i]
				if earlier.UserName == later.UserName {
					continue
				}
				if later.Sleep.Start.Before(*earlier.Sleep.End) {
					newStart := *earlier.Sleep.End
					if err := shiftSession(ctx, tx, later, newStart); err != nil {
						return err
					}
					applyShift(later, newStart)
					report.Corrected = append(report.Corrected, Correction{
						EventID: later.ID, User: later.UserName,
						Detail: fmt.Sprintf("shifted to %s after caregiver %s session %d",
							newStart.Format(time.RFC3339), earlier.UserName, earlier.ID),
					})
					changed = true
					j = -1 // the shifted session may now overlap another earlier one
				}
			}
		}
		if !changed {
			return nil
		}
	}
	return fmt.Errorf("cross-caregiver overlap repair did not converge in %d iterations", maxRepairIterations)
}

func completedSessionsOrdered(sleeps []internal.Event) []internal.Event {
	completed := []internal.Event{}
	for _, s := range sleeps {
		if s.Sleep.End != nil {
			completed = append(completed, s)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		a, b := &completed[i], &completed[j]
		if !a.Sleep.Start.Equal(b.Sleep.Start) {
			return a.Sleep.Start.Before(b.Sleep.Start)
		}
		if a.UserName != b.UserName {
			return a.UserName < b.UserName
		}
		return a.ID < b.ID
	})
	return completed
}

// anomalyScan reports every class the passes refuse to touch: exact
// duplicates, a caregiver with more than one open session, zero or negative
// durations, suspiciously short sessions, and sessions past the hard
// ceiling.
func anomalyScan(ctx context.Context, tx storage.EventStore, report *CorrectionReport) error {
	sleeps, err := loadSleeps(ctx, tx)
	if err != nil {
		return err
	}
	report.Iterations = 1
	openByUser := map[string]int64{}
	for i := range sleeps {
		s := &sleeps[i]
		for j := 0; j < i; j++ {
			if exactDuplicate(&sleeps[j], s) {
				report.Anomalies = append(report.Anomalies, Anomaly{
					EventID: s.ID, User: s.UserName, Class: "duplicate",
					Detail: fmt.Sprintf("identical to session %d", sleeps[j].ID),
				})
				break
			}
		}
		if s.Sleep.End == nil {
			if firstID, ok := openByUser[s.UserName]; ok {
				report.Anomalies = append(report.Anomalies, Anomaly{
					EventID: s.ID, User: s.UserName, Class: "double_open",
					Detail: fmt.Sprintf("open alongside open session %d", firstID),
				})
			} else {
				openByUser[s.UserName] = s.ID
			}
			continue
		}
		mins := s.Sleep.DurationMinutes()
		switch {
		case mins <= 0:
			report.Anomalies = append(report.Anomalies, Anomaly{
				EventID: s.ID, User: s.UserName, Class: "non_positive_duration",
				Detail: fmt.Sprintf("%d minutes", mins),
			})
		case mins < suspiciouslyShortMinutes:
			report.Anomalies = append(report.Anomalies, Anomaly{
				EventID: s.ID, User: s.UserName, Class: "short_duration",
				Detail: fmt.Sprintf("%d minutes", mins),
			})
		case mins > internal.MaxSleepMinutes:
			report.Anomalies = append(report.Anomalies, Anomaly{
				EventID: s.ID, User: s.UserName, Class: "over_ceiling",
				Detail: fmt.Sprintf("%d minutes", mins),
			})
		}
	}
	return nil
}

// verifyPass rescans for the class of issue the pass corrects and fails the
// transaction when correctable matches remain. Reported anomalies are
// expected to remain and do not fail verification.
func verifyPass(ctx context.Context, tx storage.EventStore, kind PassKind) error {
	switch kind {
	case PassTrimOverlap:
		events, err := loadAllEvents(ctx, tx)
		if err != nil {
			return err
		}
		sleeps, err := loadSleeps(ctx, tx)
		if err != nil {
			return err
		}
		for i := range sleeps {
			s := &sleeps[i]
			inside := earliestInsideEvent(s, events)
			if inside == nil {
				continue
			}
			mins := internal.RoundedMinutes(s.Sleep.Start, inside.Timestamp)
			if mins > 0 && mins <= internal.MaxSleepMinutes {
				return fmt.Errorf("verification: session %d still has a correctable overlapping event", s.ID)
			}
		}
	case PassUnbounded:
		sleeps, err := loadSleeps(ctx, tx)
		if err != nil {
			return err
		}
		for i := range sleeps {
			if sleeps[i].Sleep.End != nil && sleeps[i].Sleep.DurationMinutes() > internal.MaxSleepMinutes {
				return fmt.Errorf("verification: session %d still exceeds the duration ceiling", sleeps[i].ID)
			}
		}
	case PassSameCaregiverOverlap:
		sleeps, err := loadSleeps(ctx, tx)
		if err != nil {
			return err
		}
		byUser := map[string][]internal.Event{}
		for _, s := range sleeps {
			byUser[s.UserName] = append(byUser[s.UserName], s)
		}
		for _, sessions := range byUser {
			for i := 1; i < len(sessions); i++ {
				prev, cur := &sessions[i-1], &sessions[i]
				if prev.Sleep.End == nil || exactDuplicate(prev, cur) {
					continue
				}
				if cur.Sleep.Start.Before(*prev.Sleep.End) {
					return fmt.Errorf("verification: sessions %d and %d still overlap", prev.ID, cur.ID)
				}
			}
		}
	case PassCrossCaregiverOverlap:
		sleeps, err := loadSleeps(ctx, tx)
		if err != nil {
			return err
		}
		completed := completedSessionsOrdered(sleeps)
		for i := 1; i < len(completed); i++ {
			for j := 0; j < i; j++ {
				if completed[j].UserName == completed[i].UserName {
					continue
				}
				if completed[i].Sleep.Start.Before(*completed[j].Sleep.End) {
					return fmt.Errorf("verification: sessions %d and %d still overlap", completed[j].ID, completed[i].ID)
				}
			}
		}
	case PassAnomalies:
		// Scan-only pass, nothing to verify.
	}
	return nil
}
