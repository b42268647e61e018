package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/storage"
)

// Diaper health thresholds.
const (
	noWetThreshold    = 4 * time.Hour
	noChangeThreshold = 3 * time.Hour
	noStoolThreshold  = 24 * time.Hour
)

// Evening gate for the low-sleep alert: before this local hour a low daily
// total is expected, not alarming.
const lowSleepAlertHour = 18

// Weekly trend tuning.
const (
	trendWindowDays     = 7
	trendDeadbandPct    = 5.0
	minTrendEvents      = 3
	lowSleepAlertFactor = 0.5
)

type FeedingStats struct {
	LastFeedAt         *time.Time `json:"last_feed_at,omitempty" yaml:"last_feed_at,omitempty"`
	MinutesSinceLast   *int       `json:"minutes_since_last,omitempty" yaml:"minutes_since_last,omitempty"`
	FeedsToday         int        `json:"feeds_today" yaml:"feeds_today"`
	TotalMlToday       int        `json:"total_ml_today" yaml:"total_ml_today"`
	IntervalsMinutes   []int      `json:"intervals_minutes" yaml:"intervals_minutes"`
	AvgIntervalMinutes float64    `json:"avg_interval_minutes" yaml:"avg_interval_minutes"`
	NextFeedAt         *time.Time `json:"next_feed_at,omitempty" yaml:"next_feed_at,omitempty"`
	Overdue            bool       `json:"overdue" yaml:"overdue"`
}

type DaySleep struct {
	Date    string `json:"date" yaml:"date"`
	Minutes int    `json:"minutes" yaml:"minutes"`
}

type SleepStats struct {
	TotalMinutes         int        `json:"total_minutes" yaml:"total_minutes"`
	TotalHours           float64    `json:"total_hours" yaml:"total_hours"`
	Sessions             int        `json:"sessions" yaml:"sessions"`
	LongestMinutes       int        `json:"longest_minutes" yaml:"longest_minutes"`
	AvgNapMinutes        float64    `json:"avg_nap_minutes" yaml:"avg_nap_minutes"`
	WakeWindowsMinutes   []int      `json:"wake_windows_minutes" yaml:"wake_windows_minutes"`
	PercentOfRecommended float64    `json:"percent_of_recommended" yaml:"percent_of_recommended"`
	Last3Days            []DaySleep `json:"last_3_days" yaml:"last_3_days"`
}

type DiaperStats struct {
	PeeCount              int        `json:"pee_count" yaml:"pee_count"`
	PooCount              int        `json:"poo_count" yaml:"poo_count"`
	BothCount             int        `json:"both_count" yaml:"both_count"`
	LastPee               *time.Time `json:"last_pee,omitempty" yaml:"last_pee,omitempty"`
	LastPoo               *time.Time `json:"last_poo,omitempty" yaml:"last_poo,omitempty"`
	LastChange            *time.Time `json:"last_change,omitempty" yaml:"last_change,omitempty"`
	AvgPeeIntervalMinutes float64    `json:"avg_pee_interval_minutes" yaml:"avg_pee_interval_minutes"`
	NoWetOver4h           bool       `json:"no_wet_over_4h" yaml:"no_wet_over_4h"`
	NoChangeOver3h        bool       `json:"no_change_over_3h" yaml:"no_change_over_3h"`
	NoStoolOver24h        bool       `json:"no_stool_over_24h" yaml:"no_stool_over_24h"`
}

type AlertSeverity string

const (
	SeverityInfo    AlertSeverity = "info"
	SeverityWarning AlertSeverity = "warning"
	SeverityAlert   AlertSeverity = "alert"
)

type Alert struct {
	Severity AlertSeverity `json:"severity" yaml:"severity"`
	Code     string        `json:"code" yaml:"code"`
	Message  string        `json:"message" yaml:"message"`
}

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

type TrendSentiment string

const (
	SentimentMoreIsBetter TrendSentiment = "more_is_better"
	SentimentLessIsBetter TrendSentiment = "less_is_better"
	SentimentNeutral      TrendSentiment = "neutral"
)

type MetricTrend struct {
	Metric       string         `json:"metric" yaml:"metric"`
	Current      float64        `json:"current" yaml:"current"`
	Previous     float64        `json:"previous" yaml:"previous"`
	Direction    TrendDirection `json:"direction" yaml:"direction"`
	Sentiment    TrendSentiment `json:"sentiment" yaml:"sentiment"`
	Insufficient bool           `json:"insufficient_data" yaml:"insufficient_data"`
}

type WeeklyTrend struct {
	Feeding MetricTrend `json:"feeding" yaml:"feeding"`
	Sleep   MetricTrend `json:"sleep" yaml:"sleep"`
	Diaper  MetricTrend `json:"diaper" yaml:"diaper"`
}

type AnalyticsSnapshot struct {
	AsOf     time.Time    `json:"as_of" yaml:"as_of"`
	Date     string       `json:"date" yaml:"date"`
	Timezone string       `json:"timezone" yaml:"timezone"`
	Feeding  FeedingStats `json:"feeding" yaml:"feeding"`
	Sleep    SleepStats   `json:"sleep" yaml:"sleep"`
	Diaper   DiaperStats  `json:"diaper" yaml:"diaper"`
	Alerts   []Alert      `json:"alerts" yaml:"alerts"`
	Trend    WeeklyTrend  `json:"trend" yaml:"trend"`
}

// ComputeAnalytics derives the full snapshot for the day containing asOf in
// the household timezone, from a non-locking point-in-time read of the
// store. A sleep session counts toward every local day its interval
// overlaps, proportionally to the overlap.
func ComputeAnalytics(ctx context.Context, store storage.EventStore, asOf time.Time, loc *time.Location, recommendedSleepMinutes int) (*AnalyticsSnapshot, error) {
	localAsOf := asOf.In(loc)
	dayStart := time.Date(localAsOf.Year(), localAsOf.Month(), localAsOf.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	from := dayStart.AddDate(0, 0, -(2*trendWindowDays + 1))
	events, err := store.List(ctx, storage.EventFilter{From: &from, To: &dayEnd})
	if err != nil {
		return nil, err
	}

	snap := &AnalyticsSnapshot{
		AsOf:     asOf,
		Date:     dayStart.Format("2006-01-02"),
		Timezone: loc.String(),
	}
	snap.Feeding = feedingStats(events, asOf, dayStart, dayEnd)
	snap.Sleep = sleepStats(events, asOf, dayStart, loc, recommendedSleepMinutes)
	snap.Diaper = diaperStats(events, asOf, dayStart, dayEnd)
	snap.Alerts = deriveAlerts(snap, localAsOf, recommendedSleepMinutes)
	snap.Trend = weeklyTrend(events, asOf)
	return snap, nil
}

func feedingStats(events []internal.Event, asOf, dayStart, dayEnd time.Time) FeedingStats {
	st := FeedingStats{IntervalsMinutes: []int{}}
	var feeds []internal.Event
	for _, ev := range events {
		if ev.Type == internal.EventMilk && !ev.Timestamp.After(asOf) {
			feeds = append(feeds, ev)
		}
	}
	if len(feeds) == 0 {
		return st
	}
	last := feeds[len(feeds)-1]
	lastAt := last.Timestamp
	st.LastFeedAt = &lastAt
	since := int(asOf.Sub(lastAt).Round(time.Minute) / time.Minute)
	st.MinutesSinceLast = &since

	var today []internal.Event
	for _, f := range feeds {
		if !f.Timestamp.Before(dayStart) && f.Timestamp.Before(dayEnd) {
			today = append(today, f)
			if f.Amount != nil {
				st.TotalMlToday += *f.Amount
			}
		}
	}
	st.FeedsToday = len(today)
	for i := 1; i < len(today); i++ {
		st.IntervalsMinutes = append(st.IntervalsMinutes,
			internal.RoundedMinutes(today[i-1].Timestamp, today[i].Timestamp))
	}

	// The rolling average falls back to the trailing 24 hours when the day
	// has fewer than two feeds so far.
	intervals := st.IntervalsMinutes
	if len(intervals) == 0 {
		cutoff := asOf.Add(-24 * time.Hour)
		var recent []internal.Event
		for _, f := range feeds {
			if f.Timestamp.After(cutoff) {
				recent = append(recent, f)
			}
		}
		for i := 1; i < len(recent); i++ {
			intervals = append(intervals, internal.RoundedMinutes(recent[i-1].Timestamp, recent[i].Timestamp))
		}
	}
	if len(intervals) > 0 {
		st.AvgIntervalMinutes = meanInt(intervals)
		next := lastAt.Add(time.Duration(st.AvgIntervalMinutes) * time.Minute)
		st.NextFeedAt = &next
		st.Overdue = asOf.After(next)
	}
	return st
}

// overlapMinutes clips the session to [from, to) and returns the clipped
// portion in whole minutes. Both clip boundaries are rounded cumulatively
// from the session start, so the shares of a session split across days
// telescope to exactly the session's rounded total. Open sessions are
// counted up to asOf.
func overlapMinutes(s *internal.SleepSpan, from, to, asOf time.Time) int {
	end := asOf
	if s.End != nil {
		end = *s.End
	}
	start := s.Start
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !end.After(start) {
		return 0
	}
	return minutesFrom(s.Start, end) - minutesFrom(s.Start, start)
}

func minutesFrom(anchor, t time.Time) int {
	return int(t.Sub(anchor).Round(time.Minute) / time.Minute)
}

func sleepStats(events []internal.Event, asOf, dayStart time.Time, loc *time.Location, recommended int) SleepStats {
	st := SleepStats{WakeWindowsMinutes: []int{}, Last3Days: []DaySleep{}}
	dayEnd := dayStart.AddDate(0, 0, 1)

	var sessions []internal.Event
	for _, ev := range events {
		if ev.Type == internal.EventSleep && ev.Sleep != nil {
			sessions = append(sessions, ev)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Sleep.Start.Before(sessions[j].Sleep.Start) })

	var todaysSessions []internal.Event
	var completedNapMinutes []int
	for _, s := range sessions {
		mins := overlapMinutes(s.Sleep, dayStart, dayEnd, asOf)
		if mins == 0 {
			continue
		}
		todaysSessions = append(todaysSessions, s)
		st.TotalMinutes += mins
		if s.Sleep.End != nil {
			d := s.Sleep.DurationMinutes()
			completedNapMinutes = append(completedNapMinutes, d)
			if d > st.LongestMinutes {
				st.LongestMinutes = d
			}
		}
	}
	st.Sessions = len(todaysSessions)
	st.TotalHours = math.Round(float64(st.TotalMinutes)/60*100) / 100
	if len(completedNapMinutes) > 0 {
		st.AvgNapMinutes = meanInt(completedNapMinutes)
	}
	if recommended > 0 {
		st.PercentOfRecommended = math.Round(float64(st.TotalMinutes)/float64(recommended)*1000) / 10
	}

	// Wake windows: positive gaps between a session's known end and the next
	// session's start, within the day's sessions. One child sleeps, whoever
	// records it, so the gap is computed across caregivers.
	for i := 1; i < len(todaysSessions); i++ {
		prev, cur := todaysSessions[i-1], todaysSessions[i]
		if prev.Sleep.End == nil {
			continue
		}
		gap := internal.RoundedMinutes(*prev.Sleep.End, cur.Sleep.Start)
		if gap > 0 {
			st.WakeWindowsMinutes = append(st.WakeWindowsMinutes, gap)
		}
	}

	for d := 0; d < 3; d++ {
		ds := dayStart.AddDate(0, 0, -d)
		de := ds.AddDate(0, 0, 1)
		total := 0
		for _, s := range sessions {
			total += overlapMinutes(s.Sleep, ds, de, asOf)
		}
		st.Last3Days = append(st.Last3Days, DaySleep{Date: ds.Format("2006-01-02"), Minutes: total})
	}
	return st
}

func diaperStats(events []internal.Event, asOf, dayStart, dayEnd time.Time) DiaperStats {
	st := DiaperStats{}
	var all []internal.Event
	for _, ev := range events {
		if ev.Type == internal.EventDiaper && !ev.Timestamp.After(asOf) {
			all = append(all, ev)
		}
	}
	isWet := func(ev *internal.Event) bool {
		return ev.Subtype != nil && (*ev.Subtype == internal.DiaperPee || *ev.Subtype == internal.DiaperBoth)
	}
	isStool := func(ev *internal.Event) bool {
		return ev.Subtype != nil && (*ev.Subtype == internal.DiaperPoo || *ev.Subtype == internal.DiaperBoth)
	}

	var wetToday []time.Time
	for _, ev := range all {
		ts := ev.Timestamp
		st.LastChange = latestTime(st.LastChange, ts)
		if isWet(&ev) {
			st.LastPee = latestTime(st.LastPee, ts)
		}
		if isStool(&ev) {
			st.LastPoo = latestTime(st.LastPoo, ts)
		}
		if ts.Before(dayStart) || !ts.Before(dayEnd) {
			continue
		}
		if ev.Subtype != nil {
			switch *ev.Subtype {
			case internal.DiaperPee:
				st.PeeCount++
			case internal.DiaperPoo:
				st.PooCount++
			case internal.DiaperBoth:
				st.BothCount++
			}
		}
		if isWet(&ev) {
			wetToday = append(wetToday, ts)
		}
	}
	if len(wetToday) > 1 {
		var intervals []int
		for i := 1; i < len(wetToday); i++ {
			intervals = append(intervals, internal.RoundedMinutes(wetToday[i-1], wetToday[i]))
		}
		st.AvgPeeIntervalMinutes = meanInt(intervals)
	}

	// Threshold flags only fire once a baseline instance exists; an empty
	// history is "no data", not an alert.
	if st.LastPee != nil && asOf.Sub(*st.LastPee) >= noWetThreshold {
		st.NoWetOver4h = true
	}
	if st.LastChange != nil && asOf.Sub(*st.LastChange) >= noChangeThreshold {
		st.NoChangeOver3h = true
	}
	if st.LastPoo != nil && asOf.Sub(*st.LastPoo) >= noStoolThreshold {
		st.NoStoolOver24h = true
	}
	return st
}

func deriveAlerts(snap *AnalyticsSnapshot, localAsOf time.Time, recommended int) []Alert {
	alerts := []Alert{}
	if snap.Feeding.Overdue && snap.Feeding.NextFeedAt != nil {
		overdueBy := localAsOf.Sub(snap.Feeding.NextFeedAt.In(localAsOf.Location()))
		sev := SeverityWarning
		if overdueBy > time.Hour {
			sev = SeverityAlert
		}
		alerts = append(alerts, Alert{Severity: sev, Code: "feed_overdue",
			Message: "next feed is overdue"})
	}
	if snap.Diaper.NoWetOver4h {
		alerts = append(alerts, Alert{Severity: SeverityAlert, Code: "no_wet_diaper",
			Message: "no wet diaper in over 4 hours"})
	}
	if snap.Diaper.NoChangeOver3h {
		alerts = append(alerts, Alert{Severity: SeverityWarning, Code: "no_diaper_change",
			Message: "no diaper change in over 3 hours"})
	}
	if snap.Diaper.NoStoolOver24h {
		alerts = append(alerts, Alert{Severity: SeverityInfo, Code: "no_stool",
			Message: "no stool in over 24 hours"})
	}
	// Gated to the evening: a low running total is normal before then.
	if localAsOf.Hour() >= lowSleepAlertHour &&
		float64(snap.Sleep.TotalMinutes) < lowSleepAlertFactor*float64(recommended) {
		alerts = append(alerts, Alert{Severity: SeverityWarning, Code: "low_total_sleep",
			Message: "total sleep today is well below the recommended amount"})
	}
	if snap.Sleep.PercentOfRecommended >= 100 {
		alerts = append(alerts, Alert{Severity: SeverityInfo, Code: "sleep_target_met",
			Message: "recommended daily sleep reached"})
	}
	return alerts
}

func weeklyTrend(events []internal.Event, asOf time.Time) WeeklyTrend {
	curFrom := asOf.AddDate(0, 0, -trendWindowDays)
	prevFrom := asOf.AddDate(0, 0, -2*trendWindowDays)

	feeding := func(from, to time.Time) (float64, int) {
		totalMl, n := 0, 0
		for _, ev := range events {
			if ev.Type != internal.EventMilk || ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
				continue
			}
			n++
			if ev.Amount != nil {
				totalMl += *ev.Amount
			}
		}
		if n == 0 {
			return 0, 0
		}
		return float64(totalMl) / float64(n), n
	}
	sleepPerDay := func(from, to time.Time) (float64, int) {
		total, n := 0, 0
		for _, ev := range events {
			if ev.Type != internal.EventSleep || ev.Sleep == nil {
				continue
			}
			mins := overlapMinutes(ev.Sleep, from, to, asOf)
			if mins > 0 {
				total += mins
				n++
			}
		}
		return float64(total) / 60 / trendWindowDays, n
	}
	diaperPerDay := func(from, to time.Time) (float64, int) {
		n := 0
		for _, ev := range events {
			if ev.Type == internal.EventDiaper && !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
				n++
			}
		}
		return float64(n) / trendWindowDays, n
	}

	build := func(metric string, sentiment TrendSentiment, f func(from, to time.Time) (float64, int)) MetricTrend {
		cur, _ := f(curFrom, asOf)
		prev, prevN := f(prevFrom, curFrom)
		t := MetricTrend{Metric: metric, Current: cur, Previous: prev, Sentiment: sentiment}
		if prevN < minTrendEvents {
			t.Insufficient = true
			t.Direction = TrendStable
			return t
		}
		switch {
		case prev == 0 && cur == 0:
			t.Direction = TrendStable
		case prev == 0:
			t.Direction = TrendUp
		default:
			pct := (cur - prev) / prev * 100
			switch {
			case pct > trendDeadbandPct:
				t.Direction = TrendUp
			case pct < -trendDeadbandPct:
				t.Direction = TrendDown
			default:
				t.Direction = TrendStable
			}
		}
		return t
	}

	return WeeklyTrend{
		Feeding: build("avg_ml_per_feed", SentimentMoreIsBetter, feeding),
		Sleep:   build("sleep_hours_per_day", SentimentMoreIsBetter, sleepPerDay),
		Diaper:  build("diaper_changes_per_day", SentimentNeutral, diaperPerDay),
	}
}

func latestTime(cur *time.Time, candidate time.Time) *time.Time {
	if cur == nil || candidate.After(*cur) {
		c := candidate
		return &c
	}
	return cur
}

func meanInt(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}
