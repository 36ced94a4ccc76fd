package models

import "time"

// Action is a state-changing operation recorded in the audit log.
type Action string

const (
	ActionPause      Action = "pause"
	ActionReset      Action = "reset"
	ActionChangeTime Action = "change_time"
	ActionEndTimer   Action = "end_timer"
)

// AuditEntry is an immutable entry of the timer_actions collection.
type AuditEntry struct {
	TimerID   string    `json:"timerId" bson:"timerId"`
	Action    Action    `json:"action" bson:"action"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	NewTime   *int      `json:"newTime,omitempty" bson:"newTime,omitempty"`
}
