// Package report builds the administrator views over persisted timers and
// their audit log. It only reads.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
)

// Source is the read side of a store.
type Source interface {
	ListTimersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.TimerRecord, error)
	ListTimersCreatedSince(ctx context.Context, since time.Time) ([]models.TimerRecord, error)
	ListActionsBetween(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error)
}

// Row is one timer in the usage report.
type Row struct {
	TimerID         string       `json:"timer_id"`
	ReceiptNumber   string       `json:"receipt_number"`
	CustomerName    string       `json:"customer_name"`
	Description     string       `json:"description"`
	Status          models.State `json:"status"`
	RecordedSeconds *int         `json:"recorded_seconds,omitempty"`
	ActualSeconds   *int         `json:"actual_seconds,omitempty"`
	// BookedSeconds is the duration set by the most recent time change.
	BookedSeconds *int       `json:"booked_seconds,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Pauses        int        `json:"pauses"`
	Resets        int        `json:"resets"`
}

// Report is the usage report of a date range.
type Report struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	TotalTimers int       `json:"total_timers"`
	Rows        []Row     `json:"rows"`
}

type actionSummary struct {
	pauses     int
	resets     int
	booked     *int
	bookedAt   time.Time
	hasBooking bool
}

// Build joins timers with their audit entries by timer id.
func Build(timers []models.TimerRecord, actions []models.AuditEntry, from, to time.Time, defaultSeconds int) Report {
	byTimer := make(map[string]*actionSummary)
	for _, a := range actions {
		s, ok := byTimer[a.TimerID]
		if !ok {
			s = &actionSummary{}
			byTimer[a.TimerID] = s
		}
		switch a.Action {
		case models.ActionPause:
			s.pauses++
		case models.ActionReset:
			s.resets++
		case models.ActionChangeTime:
			if a.NewTime != nil && (!s.hasBooking || a.Timestamp.After(s.bookedAt)) {
				v := *a.NewTime
				s.booked = &v
				s.bookedAt = a.Timestamp
				s.hasBooking = true
			}
		}
	}

	rows := make([]Row, 0, len(timers))
	for _, t := range timers {
		s := byTimer[t.TimerID]
		if s == nil {
			s = &actionSummary{}
		}
		rows = append(rows, buildRow(t, s, defaultSeconds))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ci, cj := rows[i].CreatedAt, rows[j].CreatedAt
		if ci == nil || cj == nil {
			return cj != nil
		}
		return ci.Before(*cj)
	})

	return Report{From: from, To: to, TotalTimers: len(rows), Rows: rows}
}

func buildRow(t models.TimerRecord, s *actionSummary, defaultSeconds int) Row {
	row := Row{
		TimerID:         t.TimerID,
		ReceiptNumber:   t.ReceiptNumber,
		CustomerName:    t.CustomerName,
		Description:     t.Description,
		Status:          t.Status,
		RecordedSeconds: t.Time,
		BookedSeconds:   s.booked,
		CreatedAt:       t.CreatedAt,
		StartedAt:       t.StartTime,
		Pauses:          s.pauses,
		Resets:          s.resets,
	}
	if actual, ok := ActualSeconds(t, s.booked, defaultSeconds); ok {
		row.ActualSeconds = &actual
	}
	row.EndedAt = endedAt(t, row.ActualSeconds)
	return row
}

// ActualSeconds is how long the customer actually played. Unlimited timers
// record it on end; fixed timers derive it from the planned duration minus
// what was left.
func ActualSeconds(t models.TimerRecord, booked *int, defaultSeconds int) (int, bool) {
	if t.Time == nil || t.StartTime == nil {
		return 0, false
	}
	remaining := *t.Time
	if t.Unlimited || remaining == models.UnlimitedSeconds {
		if t.Status != models.StateEnded || remaining < 0 {
			return 0, false
		}
		return remaining, true
	}

	planned := defaultSeconds
	switch {
	case booked != nil && *booked > 0:
		planned = *booked
	case t.DefaultTime != nil && *t.DefaultTime > 0:
		planned = *t.DefaultTime
	}
	return max(0, planned-remaining), true
}

func endedAt(t models.TimerRecord, actual *int) *time.Time {
	if t.Status == models.StateEnded && t.EndTime != nil {
		return t.EndTime
	}
	if t.StartTime == nil || actual == nil || *actual == 0 {
		return nil
	}
	if t.Status != models.StateEnded && t.Status != models.StateExpired && t.Status != "" {
		return nil
	}
	end := t.StartTime.Add(time.Duration(*actual) * time.Second)
	return &end
}
