package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/storage"
)

// Gating thresholds for the longitudinal correlation search. A candidate
// bucket must beat the overall mean by a real margin and with statistical
// support before it is surfaced as advice.
const (
	minHistoryDays        = 14
	feedSleepWindow       = 4 * time.Hour
	wakeWindowBucketMins  = 30
	minBucketSamples      = 5
	minImprovementMinutes = 15.0
	minZScore             = 1.0
	maxConfidence         = 0.9
	zScoreConfidenceCap   = 3.0
	sampleConfidenceCap   = 20.0
)

type InsightKind string

const (
	InsightFeedingToSleep   InsightKind = "feeding_to_sleep"
	InsightWakeWindow       InsightKind = "wake_window"
	InsightNoSignal         InsightKind = "no_signal"
	InsightInsufficientData InsightKind = "insufficient_data"
)

type Insight struct {
	Kind              InsightKind `json:"kind" yaml:"kind"`
	Subject           string      `json:"subject" yaml:"subject"`
	HourOfDay         *int        `json:"hour_of_day,omitempty" yaml:"hour_of_day,omitempty"`
	WakeWindowMinutes *int        `json:"wake_window_minutes,omitempty" yaml:"wake_window_minutes,omitempty"`
	AvgSleepMinutes   float64     `json:"avg_sleep_minutes" yaml:"avg_sleep_minutes"`
	BaselineMinutes   float64     `json:"baseline_minutes" yaml:"baseline_minutes"`
	ZScore            float64     `json:"z_score" yaml:"z_score"`
	Confidence        float64     `json:"confidence" yaml:"confidence"`
	SampleCount       int         `json:"sample_count" yaml:"sample_count"`
	Message           string      `json:"message" yaml:"message"`
}

type bucketSample struct {
	bucket  int
	minutes float64
}

// ComputePatternInsights searches the whole history for actionable
// feeding-time and wake-window recommendations. With less than 14 days of
// history it returns only the keep-logging placeholder; an analyzer that
// finds no bucket clearing the gates reports an explicit no-signal result
// carrying its sample count, never silence.
func ComputePatternInsights(ctx context.Context, store storage.EventStore, loc *time.Location) ([]Insight, error) {
	events, err := store.List(ctx, storage.EventFilter{})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 || historySpan(events) < minHistoryDays*24*time.Hour {
		return []Insight{{
			Kind:        InsightInsufficientData,
			Subject:     "history",
			SampleCount: len(events),
			Message:     "keep logging; insights need at least 14 days of history",
		}}, nil
	}
	insights := []Insight{
		feedToSleepInsight(events, loc),
		wakeWindowInsight(events),
	}
	return insights, nil
}

func historySpan(events []internal.Event) time.Duration {
	earliest, latest := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events {
		if ev.Timestamp.Before(earliest) {
			earliest = ev.Timestamp
		}
		if ev.Timestamp.After(latest) {
			latest = ev.Timestamp
		}
	}
	return latest.Sub(earliest)
}

// feedToSleepInsight correlates each feed with the first completed sleep
// session starting within the feed-to-sleep window, bucketed by the feed's
// local hour of day.
func feedToSleepInsight(events []internal.Event, loc *time.Location) Insight {
	var sleeps []internal.Event
	for _, ev := range events {
		if ev.Type == internal.EventSleep && ev.Sleep != nil && ev.Sleep.End != nil {
			sleeps = append(sleeps, ev)
		}
	}
	sort.Slice(sleeps, func(i, j int) bool { return sleeps[i].Sleep.Start.Before(sleeps[j].Sleep.Start) })

	var samples []bucketSample
	for _, ev := range events {
		if ev.Type != internal.EventMilk {
			continue
		}
		for _, s := range sleeps {
			if s.Sleep.Start.Before(ev.Timestamp) {
				continue
			}
			if s.Sleep.Start.Sub(ev.Timestamp) > feedSleepWindow {
				break
			}
			samples = append(samples, bucketSample{
				bucket:  ev.Timestamp.In(loc).Hour(),
				minutes: float64(s.Sleep.DurationMinutes()),
			})
			break
		}
	}

	candidate, ok := selectBucket(samples)
	if !ok {
		return noSignal(InsightFeedingToSleep, "feeding time", len(samples))
	}
	hour := candidate.bucket
	return Insight{
		Kind:            InsightFeedingToSleep,
		Subject:         "feeding time",
		HourOfDay:       &hour,
		AvgSleepMinutes: candidate.mean,
		BaselineMinutes: candidate.baseline,
		ZScore:          candidate.z,
		Confidence:      candidate.confidence,
		SampleCount:     candidate.n,
		Message: fmt.Sprintf("feeds around %02d:00 are followed by about %.0f min of sleep vs a %.0f min baseline",
			hour, candidate.mean, candidate.baseline),
	}
}

// wakeWindowInsight buckets the gap between consecutive sessions of the
// same caregiver into 30-minute windows and correlates each window with the
// duration of the sleep that follows it.
func wakeWindowInsight(events []internal.Event) Insight {
	byUser := map[string][]internal.Event{}
	for _, ev := range events {
		if ev.Type == internal.EventSleep && ev.Sleep != nil && ev.Sleep.End != nil {
			byUser[ev.UserName] = append(byUser[ev.UserName], ev)
		}
	}
	var samples []bucketSample
	for _, sessions := range byUser {
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].Sleep.Start.Before(sessions[j].Sleep.Start) })
		for i := 1; i < len(sessions); i++ {
			prev, cur := sessions[i-1], sessions[i]
			gap := cur.Sleep.Start.Sub(*prev.Sleep.End)
			if gap <= 0 {
				continue
			}
			samples = append(samples, bucketSample{
				bucket:  int(gap.Minutes()) / wakeWindowBucketMins,
				minutes: float64(cur.Sleep.DurationMinutes()),
			})
		}
	}

	candidate, ok := selectBucket(samples)
	if !ok {
		return noSignal(InsightWakeWindow, "wake window", len(samples))
	}
	windowMins := candidate.bucket * wakeWindowBucketMins
	return Insight{
		Kind:              InsightWakeWindow,
		Subject:           "wake window",
		WakeWindowMinutes: &windowMins,
		AvgSleepMinutes:   candidate.mean,
		BaselineMinutes:   candidate.baseline,
		ZScore:            candidate.z,
		Confidence:        candidate.confidence,
		SampleCount:       candidate.n,
		Message: fmt.Sprintf("wake windows of %d-%d min precede about %.0f min of sleep vs a %.0f min baseline",
			windowMins, windowMins+wakeWindowBucketMins, candidate.mean, candidate.baseline),
	}
}

func noSignal(kind InsightKind, subject string, sampleCount int) Insight {
	return Insight{
		Kind:        InsightNoSignal,
		Subject:     subject,
		SampleCount: sampleCount,
		Message:     fmt.Sprintf("no %s pattern clears the significance thresholds yet (%d correlated samples)", subject, sampleCount),
	}
}

type bucketCandidate struct {
	bucket     int
	mean       float64
	baseline   float64
	z          float64
	confidence float64
	n          int
}

// selectBucket picks the bucket with the highest mean following-sleep
// duration among buckets with enough samples, then gates it on minimum
// improvement over the overall mean and on z-score. Confidence is the
// product of two capped factors, one for z-score, one for sample size,
// capped overall.
func selectBucket(samples []bucketSample) (bucketCandidate, bool) {
	if len(samples) == 0 {
		return bucketCandidate{}, false
	}
	overallMean, overallStd := meanStd(samples)
	if overallStd == 0 {
		return bucketCandidate{}, false
	}

	byBucket := map[int][]float64{}
	for _, s := range samples {
		byBucket[s.bucket] = append(byBucket[s.bucket], s.minutes)
	}
	best := bucketCandidate{}
	found := false
	for bucket, vals := range byBucket {
		if len(vals) < minBucketSamples {
			continue
		}
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		mean := sum / float64(len(vals))
		if !found || mean > best.mean || (mean == best.mean && bucket < best.bucket) {
			best = bucketCandidate{bucket: bucket, mean: mean, n: len(vals)}
			found = true
		}
	}
	if !found {
		return bucketCandidate{}, false
	}

	improvement := best.mean - overallMean
	z := improvement / overallStd
	if improvement < minImprovementMinutes || z < minZScore {
		return bucketCandidate{}, false
	}
	zFactor := math.Min(z/zScoreConfidenceCap, 1)
	nFactor := math.Min(float64(best.n)/sampleConfidenceCap, 1)
	best.baseline = overallMean
	best.z = z
	best.confidence = math.Min(zFactor*nFactor, maxConfidence)
	return best, true
}

func meanStd(samples []bucketSample) (float64, float64) {
	n := float64(len(samples))
	sum := 0.0
	for _, s := range samples {
		sum += s.minutes
	}
	mean := sum / n
	variance := 0.0
	for _, s := range samples {
		variance += (s.minutes - mean) * (s.minutes - mean)
	}
	variance /= n
	return mean, math.Sqrt(variance)
}
