package models

import (
	"time"
)

// UnlimitedSeconds marks a timer with no fixed duration.
const UnlimitedSeconds = -1

// State is the lifecycle state of a timer. Exactly one holds at any time.
type State string

const (
	StateNotStarted State = "idle"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateEnded      State = "ended"
	StateExpired    State = "expired"
)

// Terminal records how a timer left the active board.
type Terminal string

const (
	TerminalNone    Terminal = ""
	TerminalEnded   Terminal = "ended"
	TerminalExpired Terminal = "expired"
)

// Timer is the in-memory state of one customer session.
type Timer struct {
	TimerID       string `json:"timer_id"`
	StorageRef    string `json:"storage_ref,omitempty"`
	CustomerName  string `json:"customer_name"`
	ReceiptNumber string `json:"receipt_number"`
	Description   string `json:"description"`

	// RemainingSeconds is UnlimitedSeconds for unlimited timers until they are
	// ended, at which point it holds the elapsed duration.
	RemainingSeconds   int  `json:"remaining_seconds"`
	DefaultSeconds     int  `json:"default_seconds"`
	AccumulatedSeconds int  `json:"accumulated_seconds"`
	Unlimited          bool `json:"unlimited"`

	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Paused         bool       `json:"paused"`
	AlarmTriggered bool       `json:"alarm_triggered"`
	Terminal       Terminal   `json:"terminal,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// State derives the lifecycle state from the timer fields.
func (t Timer) State() State {
	switch t.Terminal {
	case TerminalEnded:
		return StateEnded
	case TerminalExpired:
		return StateExpired
	}
	if t.Paused {
		return StatePaused
	}
	if t.StartTime == nil {
		return StateNotStarted
	}
	return StateRunning
}

// Hidden reports whether the timer is off the active board.
func (t Timer) Hidden() bool {
	return t.Terminal != TerminalNone
}

// Record converts the timer to its persisted shape.
func (t Timer) Record(now time.Time) TimerRecord {
	remaining := t.RemainingSeconds
	def := t.DefaultSeconds
	created := t.CreatedAt
	return TimerRecord{
		ID:             t.StorageRef,
		TimerID:        t.TimerID,
		CustomerName:   t.CustomerName,
		ReceiptNumber:  t.ReceiptNumber,
		Description:    t.Description,
		Time:           &remaining,
		DefaultTime:    &def,
		Accumulated:    t.AccumulatedSeconds,
		Unlimited:      t.Unlimited,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		Paused:         t.Paused,
		AlarmTriggered: t.AlarmTriggered,
		Status:         t.State(),
		CreatedAt:      &created,
		UpdatedAt:      now,
	}
}

// TimerRecord is the document persisted in the timers collection. Pointer
// fields may be missing on records written by older clients.
type TimerRecord struct {
	ID             string     `json:"-" bson:"-"`
	TimerID        string     `json:"timerId" bson:"timerId"`
	CustomerName   string     `json:"customerName" bson:"customerName"`
	ReceiptNumber  string     `json:"receiptNumber" bson:"receiptNumber"`
	Description    string     `json:"description" bson:"description"`
	Time           *int       `json:"time,omitempty" bson:"time,omitempty"`
	DefaultTime    *int       `json:"defaultTime,omitempty" bson:"defaultTime,omitempty"`
	Accumulated    int        `json:"accumulated" bson:"accumulated"`
	Unlimited      bool       `json:"unlimited" bson:"unlimited"`
	StartTime      *time.Time `json:"startTime" bson:"startTime"`
	EndTime        *time.Time `json:"endTime" bson:"endTime"`
	Paused         bool       `json:"paused" bson:"paused"`
	AlarmTriggered bool       `json:"alarmTriggered" bson:"alarmTriggered"`
	Status         State      `json:"status,omitempty" bson:"status,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Terminated reports whether the record left the active board.
func (r TimerRecord) Terminated() bool {
	return r.Status == StateEnded || r.Status == StateExpired
}
