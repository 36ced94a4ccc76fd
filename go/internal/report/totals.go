package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
)

// Period groups usage totals.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod defaults to daily for an empty value.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDaily:
		return PeriodDaily, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Since is the start of the window a period covers, relative to now.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case PeriodWeekly:
		return now.AddDate(0, 0, -7*12)
	case PeriodMonthly:
		return now.AddDate(0, -12, 0)
	default:
		return now.AddDate(0, 0, -30)
	}
}

// Key is the bucket a timestamp falls in. Weeks start on Sunday.
func (p Period) Key(t time.Time) string {
	switch p {
	case PeriodWeekly:
		start := t.AddDate(0, 0, -int(t.Weekday()))
		return start.Format(time.DateOnly)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format(time.DateOnly)
	}
}

// Bucket is the usage of one day, week or month.
type Bucket struct {
	Key             string `json:"key"`
	Timers          int    `json:"timers"`
	RecordedSeconds int    `json:"recorded_seconds"`
	ActualSeconds   int    `json:"actual_seconds"`
}

// Totals buckets timers created in the period window ending at now.
// Buckets are ordered by key.
func Totals(timers []models.TimerRecord, period Period, now time.Time, loc *time.Location, defaultSeconds int) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	since := period.Since(now)
	byKey := make(map[string]*Bucket)
	for _, t := range timers {
		if t.CreatedAt == nil || t.CreatedAt.Before(since) || t.CreatedAt.After(now) {
			continue
		}
		key := period.Key(t.CreatedAt.In(loc))
		b, ok := byKey[key]
		if !ok {
			b = &Bucket{Key: key}
			byKey[key] = b
		}
		b.Timers++
		if t.Time != nil && *t.Time > 0 {
			b.RecordedSeconds += *t.Time
		}
		if actual, ok := ActualSeconds(t, nil, defaultSeconds); ok {
			b.ActualSeconds += actual
		}
	}

	out := make([]Bucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
