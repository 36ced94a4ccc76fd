package timer

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
)

// NewTimer builds a never-started timer for a customer.
func NewTimer(id string, req CreateTimerRequest, s Settings, now time.Time) (models.Timer, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return models.Timer{}, ErrCustomerNameRequired
	}
	if req.Unlimited && !s.AllowUnlimited {
		return models.Timer{}, ErrUnlimitedDisabled
	}

	seconds := s.DefaultSeconds
	if req.Unlimited {
		seconds = models.UnlimitedSeconds
	}
	return models.Timer{
		TimerID:          id,
		CustomerName:     name,
		ReceiptNumber:    strings.TrimSpace(req.ReceiptNumber),
		RemainingSeconds: seconds,
		DefaultSeconds:   seconds,
		Unlimited:        req.Unlimited,
		CreatedAt:        now,
	}, nil
}

// Remaining returns the live remaining seconds of t at now. Paused and
// terminated timers report their stored value.
func Remaining(t models.Timer, now time.Time) int {
	if t.Unlimited || t.Paused || t.Terminal != models.TerminalNone {
		return t.RemainingSeconds
	}
	if t.EndTime != nil {
		return secondsUntil(*t.EndTime, now)
	}
	if t.StartTime != nil {
		return max(0, t.RemainingSeconds-secondsSince(*t.StartTime, now))
	}
	return t.RemainingSeconds
}

// Elapsed returns the run time of an unlimited timer at now.
func Elapsed(t models.Timer, now time.Time) int {
	if !t.Unlimited {
		return 0
	}
	if t.Terminal == models.TerminalEnded {
		return max(0, t.RemainingSeconds)
	}
	elapsed := t.AccumulatedSeconds
	if t.State() == models.StateRunning {
		elapsed += secondsSince(*t.StartTime, now)
	}
	return elapsed
}

// Start begins or resumes the countdown.
func Start(t models.Timer, description *string, now time.Time) (Outcome, error) {
	switch t.State() {
	case models.StateRunning:
		return Outcome{}, ErrAlreadyStarted
	case models.StateEnded, models.StateExpired:
		return Outcome{}, ErrTimerTerminated
	}

	next := t
	if !t.Unlimited {
		if t.EndTime != nil {
			next.RemainingSeconds = secondsUntil(*t.EndTime, now)
		}
		if next.RemainingSeconds <= 0 {
			return Outcome{}, ErrNoTimeRemaining
		}
	}
	if description != nil && t.StartTime == nil {
		next.Description = strings.TrimSpace(*description)
	}
	if strings.TrimSpace(next.Description) == "" {
		return Outcome{}, ErrDescriptionRequired
	}

	started := now
	next.StartTime = &started
	next.Paused = false
	if !next.Unlimited && next.EndTime == nil {
		end := now.Add(time.Duration(next.RemainingSeconds) * time.Second)
		next.EndTime = &end
	}

	return Outcome{
		Timer:         next,
		Persist:       true,
		StartTick:     true,
		Notifications: []Notification{info(next, now, "Timer started for %s", next.CustomerName)},
	}, nil
}

// Tick advances a fixed-duration timer that is counting down: a running one,
// or a never-started one whose end time was preset. Only running timers raise
// the alarm.
func Tick(t models.Timer, s Settings, now time.Time) Outcome {
	if !countingDown(t) {
		return Outcome{Timer: t}
	}

	next := t
	next.RemainingSeconds = Remaining(t, now)
	out := Outcome{Timer: next}

	if t.State() == models.StateRunning && next.RemainingSeconds <= s.AlarmThreshold && !next.AlarmTriggered {
		next.AlarmTriggered = true
		out.Persist = true
		out.Notifications = append(out.Notifications,
			alarm(next, now, "%s left for %s!", formatLeft(s.AlarmThreshold), next.CustomerName))
	}

	if next.RemainingSeconds == 0 {
		next.Terminal = models.TerminalExpired
		next.Paused = true
		out.Persist = true
		out.StopTick = true
		out.Notifications = append(out.Notifications, alarm(next, now, "Time's up for %s!", next.CustomerName))
	}

	out.Timer = next
	return out
}

// countingDown reports whether the deadline of t is live, so a tick task must
// watch it.
func countingDown(t models.Timer) bool {
	if t.Unlimited {
		return false
	}
	switch t.State() {
	case models.StateRunning:
		return true
	case models.StateNotStarted:
		return t.EndTime != nil
	}
	return false
}

// Pause freezes the countdown. Fixed timers keep their remaining seconds and
// drop the end time; unlimited timers bank the elapsed run.
func Pause(t models.Timer, now time.Time) (Outcome, error) {
	if t.Hidden() {
		return Outcome{}, ErrTimerTerminated
	}

	next := t
	if t.State() == models.StateRunning {
		if t.Unlimited {
			next.AccumulatedSeconds += secondsSince(*t.StartTime, now)
		} else {
			next.RemainingSeconds = Remaining(t, now)
			next.EndTime = nil
		}
	}
	next.Paused = true

	return Outcome{
		Timer:    next,
		Persist:  true,
		StopTick: true,
		Audit:    []models.AuditEntry{audit(t.TimerID, models.ActionPause, now, nil)},
		Notifications: []Notification{
			info(next, now, "Timer paused for %s", next.CustomerName),
		},
	}, nil
}

// Reset pauses the timer and restores its default duration. The timer keeps
// the mode it is in: unlimited stays unlimited, and a fixed timer gets the
// stored default, or the configured one when it was created unlimited.
func Reset(t models.Timer, s Settings, now time.Time) (Outcome, error) {
	out, err := Pause(t, now)
	if err != nil {
		return Outcome{}, err
	}

	next := out.Timer
	switch {
	case t.Unlimited:
		next.RemainingSeconds = models.UnlimitedSeconds
	case t.DefaultSeconds > 0:
		next.RemainingSeconds = t.DefaultSeconds
	default:
		next.RemainingSeconds = s.DefaultSeconds
	}
	next.StartTime = nil
	next.EndTime = nil
	next.AlarmTriggered = false
	next.AccumulatedSeconds = 0
	next.Paused = false

	out.Timer = next
	out.Audit = append(out.Audit, audit(t.TimerID, models.ActionReset, now, nil))
	out.Notifications = []Notification{info(next, now, "Timer reset for %s", next.CustomerName)}
	return out, nil
}

// ChangeTime replaces the duration of a timer that has not started yet.
func ChangeTime(t models.Timer, c TimeChange, s Settings, now time.Time) (Outcome, error) {
	if t.Hidden() {
		return Outcome{}, ErrTimerTerminated
	}
	if t.StartTime != nil {
		return Outcome{}, ErrChangeAfterStart
	}

	next := t
	next.EndTime = nil
	switch {
	case c.Unlimited:
		if c.Minutes != 0 || c.EndAfter != nil {
			return Outcome{}, ErrInvalidDuration
		}
		if !s.AllowUnlimited {
			return Outcome{}, ErrUnlimitedDisabled
		}
		next.Unlimited = true
		next.RemainingSeconds = models.UnlimitedSeconds
	case c.EndAfter != nil:
		if c.Minutes != 0 || c.EndAfter.Hours < 0 || c.EndAfter.Minutes < 0 ||
			c.EndAfter.Minutes > 59 || c.EndAfter.duration() <= 0 {
			return Outcome{}, ErrInvalidDuration
		}
		end := now.Add(c.EndAfter.duration())
		next.Unlimited = false
		next.EndTime = &end
		next.RemainingSeconds = int(c.EndAfter.duration() / time.Second)
	default:
		if c.Minutes <= 0 {
			return Outcome{}, ErrInvalidDuration
		}
		next.Unlimited = false
		next.RemainingSeconds = c.Minutes * 60
	}
	next.StartTime = nil
	next.Paused = false
	next.AlarmTriggered = false
	next.AccumulatedSeconds = 0

	newTime := next.RemainingSeconds
	return Outcome{
		Timer:     next,
		Persist:   true,
		StartTick: next.EndTime != nil,
		StopTick:  next.EndTime == nil,
		Audit:   []models.AuditEntry{audit(t.TimerID, models.ActionChangeTime, now, &newTime)},
		Notifications: []Notification{
			info(next, now, "Time changed for %s to %s", next.CustomerName, describeSeconds(newTime)),
		},
	}, nil
}

// End finishes the session and removes the timer from the board.
func End(t models.Timer, now time.Time) (Outcome, error) {
	if t.Hidden() {
		return Outcome{}, ErrTimerTerminated
	}

	next := t
	switch {
	case t.Unlimited && t.StartTime != nil:
		next.RemainingSeconds = Elapsed(t, now)
	case !t.Unlimited:
		next.RemainingSeconds = Remaining(t, now)
	}
	ended := now
	next.EndTime = &ended
	next.Paused = true
	next.Terminal = models.TerminalEnded

	return Outcome{
		Timer:         next,
		Persist:       true,
		StopTick:      true,
		Audit:         []models.AuditEntry{audit(t.TimerID, models.ActionEndTimer, now, nil)},
		Notifications: []Notification{info(next, now, "Timer ended for %s", next.CustomerName)},
	}, nil
}

// UpdateDescription edits the description of a never-started timer.
func UpdateDescription(t models.Timer, description string, now time.Time) (Outcome, error) {
	if t.Hidden() {
		return Outcome{}, ErrTimerTerminated
	}
	if t.StartTime != nil {
		return Outcome{}, ErrDescriptionLocked
	}
	next := t
	next.Description = strings.TrimSpace(description)
	return Outcome{Timer: next, Persist: true}, nil
}

// Reconcile recomputes a timer loaded from storage against the wall clock.
func Reconcile(t models.Timer, now time.Time) Outcome {
	if t.Hidden() || t.Paused {
		return Outcome{Timer: t}
	}
	if t.Unlimited {
		return Outcome{Timer: t, StartTick: t.StartTime != nil}
	}

	next := t
	next.RemainingSeconds = Remaining(t, now)
	if next.RemainingSeconds <= 0 {
		next.RemainingSeconds = 0
		next.Terminal = models.TerminalExpired
		next.Paused = true
		return Outcome{Timer: next, Persist: true}
	}
	if next.StartTime == nil {
		return Outcome{Timer: next, StartTick: next.EndTime != nil}
	}
	if next.EndTime == nil {
		end := now.Add(time.Duration(next.RemainingSeconds) * time.Second)
		next.EndTime = &end
	}
	return Outcome{Timer: next, StartTick: true}
}

// Summarize returns the identifying fields shown in confirmation prompts.
func Summarize(t models.Timer) Summary {
	return Summary{
		TimerID:       t.TimerID,
		CustomerName:  t.CustomerName,
		ReceiptNumber: t.ReceiptNumber,
		Description:   t.Description,
	}
}

// secondsUntil rounds up so a countdown reaches zero exactly at its deadline.
func secondsUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func secondsSince(start, now time.Time) int {
	d := now.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func audit(id string, action models.Action, now time.Time, newTime *int) models.AuditEntry {
	return models.AuditEntry{TimerID: id, Action: action, Timestamp: now, NewTime: newTime}
}

func info(t models.Timer, now time.Time, format string, args ...any) Notification {
	return Notification{TimerID: t.TimerID, Level: LevelInfo, Message: fmt.Sprintf(format, args...), At: now}
}

func alarm(t models.Timer, now time.Time, format string, args ...any) Notification {
	return Notification{TimerID: t.TimerID, Level: LevelAlarm, Message: fmt.Sprintf(format, args...), At: now}
}

func formatLeft(seconds int) string {
	if seconds%60 == 0 {
		if seconds == 60 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", seconds/60)
	}
	return fmt.Sprintf("%d seconds", seconds)
}

func describeSeconds(seconds int) string {
	if seconds == models.UnlimitedSeconds {
		return "unlimited"
	}
	return formatLeft(seconds)
}
