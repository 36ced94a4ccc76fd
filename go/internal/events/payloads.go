package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published for every change other devices need to pick up.
const (
	EventTypeTimerCreated       = "TimerCreated"
	EventTypeTimerStarted       = "TimerStarted"
	EventTypeTimerPaused        = "TimerPaused"
	EventTypeTimerReset         = "TimerReset"
	EventTypeTimeChanged        = "TimeChanged"
	EventTypeTimerEnded         = "TimerEnded"
	EventTypeTimerExpired       = "TimerExpired"
	EventTypeAlarmRaised        = "AlarmRaised"
	EventTypeDescriptionUpdated = "DescriptionUpdated"
)

// TimerEvent is one event ready to publish.
type TimerEvent struct {
	ID        uuid.UUID
	TimerID   string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// TimerChangedPayload carries the state of a timer after a change.
type TimerChangedPayload struct {
	TimerID          string     `json:"timer_id"`
	State            string     `json:"state"`
	RemainingSeconds int        `json:"remaining_seconds"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Action           string     `json:"action,omitempty"`
	NewTime          *int       `json:"new_time,omitempty"`
	ChangedAt        time.Time  `json:"changed_at"`
}

// AlarmRaisedPayload is the payload of an AlarmRaised event
type AlarmRaisedPayload struct {
	TimerID          string    `json:"timer_id"`
	CustomerName     string    `json:"customer_name"`
	Message          string    `json:"message"`
	RemainingSeconds int       `json:"remaining_seconds"`
	RaisedAt         time.Time `json:"raised_at"`
}

// NewTimerEvent marshals payload into a new event.
func NewTimerEvent(eventType, timerID string, payload any, at time.Time) (TimerEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return TimerEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return TimerEvent{
		ID:        uuid.New(),
		TimerID:   timerID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: at,
	}, nil
}
