package timer

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/events"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
)

// tickTask is the cancellable countdown task of one running timer.
type tickTask struct {
	cancel context.CancelFunc
}

// startTickLocked replaces any existing tick task of e. The ticker is created
// before the goroutine starts so the first period is measured from now.
// The caller holds e.mu.
func (m *Manager) startTickLocked(id string, e *entry) {
	m.stopTickLocked(e)

	ctx, cancel := context.WithCancel(m.ctx)
	task := &tickTask{cancel: cancel}
	ticker := m.clock.NewTicker(m.settings.TickInterval)
	e.tick = task

	m.wg.Add(1)
	go m.runTicker(ctx, id, e, task, ticker)

	log.Debug().Str("timer_id", id).Dur("interval", m.settings.TickInterval).Msg("tick started")
}

// stopTickLocked cancels the tick task of e. Once it returns no further tick
// can touch the timer, even if the goroutine has not exited yet.
// The caller holds e.mu.
func (m *Manager) stopTickLocked(e *entry) {
	if e.tick == nil {
		return
	}
	e.tick.cancel()
	e.tick = nil
}

func (m *Manager) runTicker(ctx context.Context, id string, e *entry, task *tickTask, ticker clockwork.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !m.tick(ctx, id, e, task) {
				return
			}
		}
	}
}

// tick applies one tick and reports whether the task should keep running.
func (m *Manager) tick(ctx context.Context, id string, e *entry, task *tickTask) bool {
	e.mu.Lock()
	if e.tick != task {
		e.mu.Unlock()
		return false
	}
	now := m.clock.Now()
	out := Tick(e.timer, m.settings, now)
	e.timer = out.Timer
	if out.StopTick {
		m.stopTickLocked(e)
	}
	view := Render(e.timer, now)
	e.mu.Unlock()

	if !out.Persist && len(out.Notifications) == 0 {
		m.notifyView(view)
		return true
	}

	eventType := events.EventTypeAlarmRaised
	if out.Timer.Terminal == models.TerminalExpired {
		eventType = events.EventTypeTimerExpired
		log.Info().Str("timer_id", id).Msg("timer expired")
	}

	e.opMu.Lock()
	m.carryOut(ctx, e, out, view, eventType)
	e.opMu.Unlock()

	return !out.StopTick
}
