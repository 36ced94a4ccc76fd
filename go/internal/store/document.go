// Package store holds what the storage backends share: the not-found error
// and the tolerant decoding of stored documents.
package store

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/timestamps"
)

var ErrNotFound = errors.New("record not found")

// DecodeTimer reads a timer document whatever client wrote it. Missing
// numeric fields stay nil so the caller can apply defaults.
func DecodeTimer(ref string, doc map[string]any) models.TimerRecord {
	rec := models.TimerRecord{
		ID:             ref,
		TimerID:        str(doc["timerId"]),
		CustomerName:   str(doc["customerName"]),
		ReceiptNumber:  str(doc["receiptNumber"]),
		Description:    str(doc["description"]),
		Time:           intPtr(doc["time"]),
		DefaultTime:    intPtr(doc["defaultTime"]),
		Unlimited:      boolean(doc["unlimited"]),
		StartTime:      timestamps.Ptr(doc["startTime"]),
		EndTime:        timestamps.Ptr(doc["endTime"]),
		Paused:         boolean(doc["paused"]),
		AlarmTriggered: boolean(doc["alarmTriggered"]),
		Status:         models.State(str(doc["status"])),
		CreatedAt:      timestamps.Ptr(doc["createdAt"]),
	}
	if acc := intPtr(doc["accumulated"]); acc != nil {
		rec.Accumulated = *acc
	}
	if updated, ok := timestamps.Normalize(doc["updatedAt"]); ok {
		rec.UpdatedAt = updated
	}
	return rec
}

// DecodeAction reads an audit document. The boolean is false when the
// document lacks a timer id or a readable timestamp.
func DecodeAction(doc map[string]any) (models.AuditEntry, bool) {
	ts, ok := timestamps.Normalize(doc["timestamp"])
	if !ok {
		return models.AuditEntry{}, false
	}
	entry := models.AuditEntry{
		TimerID:   str(doc["timerId"]),
		Action:    models.Action(str(doc["action"])),
		Timestamp: ts,
		NewTime:   intPtr(doc["newTime"]),
	}
	return entry, entry.TimerID != ""
}

// Window bounds a query on creation or action time.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies in [From, To]. A zero bound is open.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func intPtr(v any) *int {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil
		}
		n = int(i)
	default:
		return nil
	}
	return &n
}
