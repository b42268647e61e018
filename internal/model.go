package internal

import "time"

type EventType string

const (
	EventMilk   EventType = "milk"
	EventDiaper EventType = "diaper"
	EventBath   EventType = "bath"
	EventSleep  EventType = "sleep"
)

// NormalizeEventType maps legacy type spellings onto the canonical set.
// Old clients still send "nappy" for diaper changes.
func NormalizeEventType(raw string) (EventType, bool) {
	switch EventType(raw) {
	case EventMilk, EventDiaper, EventBath, EventSleep:
		return EventType(raw), true
	}
	if raw == "nappy" {
		return EventDiaper, true
	}
	return "", false
}

type DiaperSubtype string

const (
	DiaperPee  DiaperSubtype = "pee"
	DiaperPoo  DiaperSubtype = "poo"
	DiaperBoth DiaperSubtype = "both"
)

func ValidDiaperSubtype(s DiaperSubtype) bool {
	return s == DiaperPee || s == DiaperPoo || s == DiaperBoth
}

// SleepSpan is the interval carried only by sleep events. End is nil while
// the session is open.
type SleepSpan struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Open reports whether the session has not been completed yet.
func (s *SleepSpan) Open() bool { return s.End == nil }

// DurationMinutes is the recorded span in whole minutes, rounded, with a
// floor of 1. Returns 0 for open sessions.
func (s *SleepSpan) DurationMinutes() int {
	if s.End == nil {
		return 0
	}
	return RoundedMinutes(s.Start, *s.End)
}

// RoundedMinutes rounds (end - start) to whole minutes with a floor of 1
// for any positive span. Non-positive spans round to <= 0 and are left for
// the caller to reject or flag.
func RoundedMinutes(start, end time.Time) int {
	d := end.Sub(start)
	mins := int(d.Round(time.Minute) / time.Minute)
	if d > 0 && mins < 1 {
		return 1
	}
	return mins
}

// Event is the sole persisted entity. Sleep is non-nil exactly when
// Type == EventSleep; Amount holds milliliters for milk and minutes for
// sleep, and stays nil for types that carry no quantity.
type Event struct {
	ID        int64          `json:"id"`
	Type      EventType      `json:"type"`
	Amount    *int           `json:"amount,omitempty"`
	Subtype   *DiaperSubtype `json:"subtype,omitempty"`
	UserName  string         `json:"user_name"`
	Timestamp time.Time      `json:"timestamp"`
	Sleep     *SleepSpan     `json:"sleep,omitempty"`
}

// NewSleepEvent opens a sleep session anchored at start.
func NewSleepEvent(user string, start time.Time) *Event {
	return &Event{
		Type:      EventSleep,
		UserName:  user,
		Timestamp: start,
		Sleep:     &SleepSpan{Start: start},
	}
}

// Clone returns a deep copy so stores can hand out events without aliasing
// their internal state.
func (e *Event) Clone() *Event {
	c := *e
	if e.Amount != nil {
		v := *e.Amount
		c.Amount = &v
	}
	if e.Subtype != nil {
		v := *e.Subtype
		c.Subtype = &v
	}
	if e.Sleep != nil {
		s := *e.Sleep
		if e.Sleep.End != nil {
			end := *e.Sleep.End
			s.End = &end
		}
		c.Sleep = &s
	}
	return &c
}

// Hard bounds for a corrected sleep duration, in minutes. Values outside
// (0, MaxSleepMinutes] are anomalies, never silently rewritten.
const (
	MaxSleepMinutes = 720
	MinSleepMinutes = 1
)
