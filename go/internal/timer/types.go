package timer

import (
	"time"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
)

// Settings holds the timer defaults applied by the manager.
type Settings struct {
	DefaultSeconds int
	AlarmThreshold int // seconds
	TickInterval   time.Duration
	AllowUnlimited bool
	PresetMinutes  []int
}

// DefaultSettings returns the defaults used by the front desk.
func DefaultSettings() Settings {
	return Settings{
		DefaultSeconds: 1800,
		AlarmThreshold: 180,
		TickInterval:   time.Second,
		AllowUnlimited: true,
		PresetMinutes:  []int{15, 30, 45, 60, 90, 120},
	}
}

// NotificationLevel distinguishes plain messages from alarms and failures.
type NotificationLevel string

const (
	LevelInfo  NotificationLevel = "info"
	LevelAlarm NotificationLevel = "alarm"
	LevelError NotificationLevel = "error"
)

// Notification is a transient message for the operator.
type Notification struct {
	TimerID string            `json:"timer_id"`
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// Outcome is the result of a transition: the new timer and the effects the
// manager has to carry out.
type Outcome struct {
	Timer         models.Timer
	Persist       bool
	StartTick     bool
	StopTick      bool
	Audit         []models.AuditEntry
	Notifications []Notification
}

// TimeChange selects exactly one of a preset duration, unlimited mode or an
// absolute end time expressed as an offset from now.
type TimeChange struct {
	Minutes   int
	Unlimited bool
	EndAfter  *Offset
}

// Offset is an hours and minutes offset from now.
type Offset struct {
	Hours   int
	Minutes int
}

func (o Offset) duration() time.Duration {
	return time.Duration(o.Hours)*time.Hour + time.Duration(o.Minutes)*time.Minute
}

// Summary identifies a timer in confirmation prompts.
type Summary struct {
	TimerID       string `json:"timer_id"`
	CustomerName  string `json:"customer_name"`
	ReceiptNumber string `json:"receipt_number"`
	Description   string `json:"description"`
}

// Request types of the RPC surface.

type CreateTimerRequest struct {
	CustomerName  string `json:"customer_name"`
	ReceiptNumber string `json:"receipt_number"`
	Unlimited     bool   `json:"unlimited"`
}

type TimerRequest struct {
	TimerID string `json:"timer_id"`
}

type StartTimerRequest struct {
	TimerID     string  `json:"timer_id"`
	Description *string `json:"description,omitempty"`
}

type ConfirmRequest struct {
	TimerID   string `json:"timer_id"`
	Confirmed bool   `json:"confirmed"`
}

type ChangeTimeRequest struct {
	TimerID         string `json:"timer_id"`
	Minutes         int    `json:"minutes,omitempty"`
	Unlimited       bool   `json:"unlimited,omitempty"`
	EndAfterHours   *int   `json:"end_after_hours,omitempty"`
	EndAfterMinutes *int   `json:"end_after_minutes,omitempty"`
	Confirmed       bool   `json:"confirmed"`
}

// Change converts the request into a TimeChange.
func (r ChangeTimeRequest) Change() TimeChange {
	c := TimeChange{Minutes: r.Minutes, Unlimited: r.Unlimited}
	if r.EndAfterHours != nil || r.EndAfterMinutes != nil {
		var o Offset
		if r.EndAfterHours != nil {
			o.Hours = *r.EndAfterHours
		}
		if r.EndAfterMinutes != nil {
			o.Minutes = *r.EndAfterMinutes
		}
		c.EndAfter = &o
	}
	return c
}

type UpdateDescriptionRequest struct {
	TimerID     string `json:"timer_id"`
	Description string `json:"description"`
}

type ListTimersRequest struct {
	IncludeHidden bool `json:"include_hidden"`
}

type SearchTimersRequest struct {
	Query string `json:"query"`
}

type GetSettingsRequest struct{}

// Response types.

type TimerResponse struct {
	Timer View `json:"timer"`
}

type ListTimersResponse struct {
	Timers []View `json:"timers"`
}

type SummaryResponse struct {
	Summary Summary `json:"summary"`
}

type SettingsResponse struct {
	DefaultSeconds    int   `json:"default_seconds"`
	AlarmThresholdSec int   `json:"alarm_threshold_sec"`
	AllowUnlimited    bool  `json:"allow_unlimited"`
	PresetMinutes     []int `json:"preset_minutes"`
}
