package timer

import (
	"fmt"
	"time"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
)

// Controls lists which operator actions are enabled for a timer.
type Controls struct {
	Start      bool `json:"start"`
	Pause      bool `json:"pause"`
	Reset      bool `json:"reset"`
	ChangeTime bool `json:"change_time"`
	End        bool `json:"end"`
}

// View is what the board renders for one timer.
type View struct {
	TimerID             string       `json:"timer_id"`
	CustomerName        string       `json:"customer_name"`
	ReceiptNumber       string       `json:"receipt_number"`
	Description         string       `json:"description"`
	State               models.State `json:"state"`
	RemainingSeconds    int          `json:"remaining_seconds"`
	ElapsedSeconds      int          `json:"elapsed_seconds"`
	Display             string       `json:"display"`
	Unlimited           bool         `json:"unlimited"`
	AlarmTriggered      bool         `json:"alarm_triggered"`
	Expired             bool         `json:"expired"`
	Hidden              bool         `json:"hidden"`
	DescriptionEditable bool         `json:"description_editable"`
	Controls            Controls     `json:"controls"`
	StartTime           *time.Time   `json:"start_time,omitempty"`
	EndTime             *time.Time   `json:"end_time,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// Render projects a timer at now. It has no side effects.
func Render(t models.Timer, now time.Time) View {
	state := t.State()
	v := View{
		TimerID:             t.TimerID,
		CustomerName:        t.CustomerName,
		ReceiptNumber:       t.ReceiptNumber,
		Description:         t.Description,
		State:               state,
		RemainingSeconds:    Remaining(t, now),
		ElapsedSeconds:      Elapsed(t, now),
		Unlimited:           t.Unlimited,
		AlarmTriggered:      t.AlarmTriggered,
		Expired:             state == models.StateExpired,
		Hidden:              t.Hidden(),
		DescriptionEditable: t.StartTime == nil && !t.Hidden(),
		StartTime:           t.StartTime,
		EndTime:             t.EndTime,
		CreatedAt:           t.CreatedAt,
	}

	if t.Unlimited {
		v.Display = FormatClock(v.ElapsedSeconds)
	} else {
		v.Display = FormatClock(v.RemainingSeconds)
	}

	if !v.Hidden {
		v.Controls = Controls{
			Start:      state != models.StateRunning && (t.Unlimited || v.RemainingSeconds > 0),
			Pause:      state == models.StateRunning || state == models.StatePaused,
			Reset:      true,
			ChangeTime: t.StartTime == nil,
			End:        true,
		}
	}
	return v
}

// FormatClock renders seconds as mm:ss. Minutes are not wrapped into hours.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
