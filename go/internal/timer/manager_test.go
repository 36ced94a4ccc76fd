package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/events"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
)

const waitFor = 2 * time.Second

func createStarted(t *testing.T, f *fixture, req CreateTimerRequest) View {
	t.Helper()
	ctx := context.Background()
	v, err := f.manager.Create(ctx, req)
	require.NoError(t, err)
	desc := "Soft play"
	v, err = f.manager.Start(ctx, v.TimerID, &desc)
	require.NoError(t, err)
	return v
}

func TestManagerDefaultTimerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := createStarted(t, f, CreateTimerRequest{CustomerName: "Ana", ReceiptNumber: "R-9"})
	require.Equal(t, models.StateRunning, v.State)
	require.True(t, f.ticking(v.TimerID))

	f.clock.Advance(1620 * time.Second)
	require.Eventually(t, func() bool {
		got, err := f.manager.Get(v.TimerID)
		return err == nil && got.AlarmTriggered
	}, waitFor, 5*time.Millisecond)

	got, err := f.manager.Get(v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, 180, got.RemainingSeconds)
	assert.Contains(t, f.notifier.messages(LevelAlarm), "3 minutes left for Ana!")

	f.clock.Advance(180 * time.Second)
	require.Eventually(t, func() bool {
		rec, err := f.repo.GetTimer(ctx, v.TimerID)
		return err == nil && rec.Status == models.StateExpired
	}, waitFor, 5*time.Millisecond)

	got, err = f.manager.Get(v.TimerID)
	require.NoError(t, err)
	assert.True(t, got.Expired)
	assert.True(t, got.Hidden)
	assert.Equal(t, 0, got.RemainingSeconds)
	assert.Empty(t, f.manager.List(false))
	assert.Len(t, f.manager.List(true), 1)
	assert.Contains(t, f.notifier.messages(LevelAlarm), "Time's up for Ana!")

	rec, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)
	require.NotNil(t, rec.Time)
	assert.Equal(t, 0, *rec.Time)

	require.Eventually(t, func() bool { return !f.ticking(v.TimerID) }, waitFor, 5*time.Millisecond)
	assert.Contains(t, f.publisher.types(), events.EventTypeAlarmRaised)
	assert.Contains(t, f.publisher.types(), events.EventTypeTimerExpired)
}

func TestManagerUnlimitedScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := createStarted(t, f, CreateTimerRequest{CustomerName: "Bo", Unlimited: true})
	require.Equal(t, models.UnlimitedSeconds, v.RemainingSeconds)

	f.clock.Advance(5000 * time.Second)
	ended, err := f.manager.End(ctx, v.TimerID, true)
	require.NoError(t, err)
	assert.True(t, ended.Hidden)
	assert.Equal(t, models.StateEnded, ended.State)
	assert.False(t, f.ticking(v.TimerID))

	rec, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)
	require.NotNil(t, rec.Time)
	assert.Equal(t, 5000, *rec.Time)
	assert.Equal(t, models.StateEnded, rec.Status)

	actions := f.repo.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionEndTimer, actions[0].Action)
	assert.Equal(t, v.TimerID, actions[0].TimerID)
}

func TestManagerLoadExpiresOverdueTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := t0.Add(-1810 * time.Second)
	end := t0.Add(-10 * time.Second)
	created := start.Add(-time.Minute)
	secs := 1800
	f.repo.Put(models.TimerRecord{
		TimerID:      "timer_overdue",
		CustomerName: "Cy",
		Description:  "Ball pit",
		Time:         &secs,
		StartTime:    &start,
		EndTime:      &end,
		Status:       models.StateRunning,
		CreatedAt:    &created,
	})

	require.NoError(t, f.manager.Load(ctx))

	v, err := f.manager.Get("timer_overdue")
	require.NoError(t, err)
	assert.True(t, v.Expired)
	assert.True(t, v.Hidden)
	assert.False(t, f.ticking("timer_overdue"))

	rec, err := f.repo.GetTimer(ctx, "timer_overdue")
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, rec.Status)
	assert.Equal(t, 0, *rec.Time)
}

func TestManagerPresetEndTimeLooksTheSameAfterReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.manager.Create(ctx, CreateTimerRequest{CustomerName: "Eve"})
	require.NoError(t, err)
	_, err = f.manager.ChangeTime(ctx, v.TimerID, TimeChange{EndAfter: &Offset{Minutes: 1}}, true)
	require.NoError(t, err)
	require.True(t, f.ticking(v.TimerID))

	reload := func() *Manager {
		m := NewManager(f.repo, DefaultSettings(), WithClock(f.clock))
		t.Cleanup(m.Close)
		require.NoError(t, m.Load(ctx))
		return m
	}

	f.clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		got, err := f.manager.Get(v.TimerID)
		return err == nil && got.RemainingSeconds == 30
	}, waitFor, 5*time.Millisecond)
	live, err := f.manager.Get(v.TimerID)
	require.NoError(t, err)
	reloaded, err := reload().Get(v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, live.State, reloaded.State)
	assert.Equal(t, live.RemainingSeconds, reloaded.RemainingSeconds)
	assert.Equal(t, live.Hidden, reloaded.Hidden)

	f.clock.Advance(90 * time.Second)
	require.Eventually(t, func() bool {
		for _, msg := range f.notifier.messages(LevelAlarm) {
			if msg == "Time's up for Eve!" {
				return true
			}
		}
		return false
	}, waitFor, 5*time.Millisecond)

	live, err = f.manager.Get(v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, live.State)
	assert.True(t, live.Hidden)
	assert.Equal(t, 0, live.RemainingSeconds)

	fresh := reload()
	assert.Equal(t, f.manager.List(false), fresh.List(false))
	require.NoError(t, fresh.Refresh(ctx, v.TimerID))
	reloaded, err = fresh.Get(v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, live.State, reloaded.State)
	assert.Equal(t, live.Hidden, reloaded.Hidden)
	assert.Equal(t, live.RemainingSeconds, reloaded.RemainingSeconds)
}

func TestManagerLoadResumesRunningTimerWithoutSaving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := t0.Add(-600 * time.Second)
	end := start.Add(1800 * time.Second)
	secs := 1800
	f.repo.Put(models.TimerRecord{
		TimerID: "timer_running", CustomerName: "Di", Description: "Slides",
		Time: &secs, StartTime: &start, EndTime: &end, CreatedAt: &start,
	})

	require.NoError(t, f.manager.Load(ctx))

	v, err := f.manager.Get("timer_running")
	require.NoError(t, err)
	assert.Equal(t, 1200, v.RemainingSeconds)
	assert.True(t, f.ticking("timer_running"))

	creates, updates := f.repo.counts()
	assert.Zero(t, creates)
	assert.Zero(t, updates)
}

func TestManagerLoadRepairsMissingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref := f.repo.Put(models.TimerRecord{CustomerName: "Eve", Paused: true})
	require.NoError(t, f.manager.Load(ctx))

	views := f.manager.List(false)
	require.Len(t, views, 1)
	v := views[0]
	assert.NotEmpty(t, v.TimerID)
	assert.Equal(t, t0, v.CreatedAt)
	assert.Equal(t, 1800, v.RemainingSeconds)
	assert.Equal(t, models.StatePaused, v.State)

	rec, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, ref, rec.ID)
}

func TestManagerStartRequiresDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.manager.Create(ctx, CreateTimerRequest{CustomerName: "Fay"})
	require.NoError(t, err)

	got, err := f.manager.Start(ctx, v.TimerID, nil)
	assert.ErrorIs(t, err, ErrDescriptionRequired)
	assert.Nil(t, got.StartTime)
	assert.Equal(t, models.StateNotStarted, got.State)
	assert.False(t, f.ticking(v.TimerID))

	rec, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)
	assert.Nil(t, rec.StartTime)
}

func TestManagerChangeTimeAfterStartIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := createStarted(t, f, CreateTimerRequest{CustomerName: "Gus"})
	before, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)
	_, updatesBefore := f.repo.counts()

	got, err := f.manager.ChangeTime(ctx, v.TimerID, TimeChange{Minutes: 60}, true)
	assert.ErrorIs(t, err, ErrChangeAfterStart)
	assert.Equal(t, 1800, got.RemainingSeconds)
	assert.Equal(t, models.StateRunning, got.State)

	after, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, updatesAfter := f.repo.counts()
	assert.Equal(t, updatesBefore, updatesAfter)
	assert.Empty(t, f.repo.Actions())
}

func TestManagerConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := createStarted(t, f, CreateTimerRequest{CustomerName: "Hal", ReceiptNumber: "R-5"})

	for name, op := range map[string]func() (View, error){
		"pause": func() (View, error) { return f.manager.Pause(ctx, v.TimerID, false) },
		"reset": func() (View, error) { return f.manager.Reset(ctx, v.TimerID, false) },
		"end":   func() (View, error) { return f.manager.End(ctx, v.TimerID, false) },
	} {
		t.Run(name, func(t *testing.T) {
			got, err := op()
			assert.ErrorIs(t, err, ErrConfirmationRequired)
			assert.Equal(t, "Hal", got.CustomerName)
			assert.Equal(t, "R-5", got.ReceiptNumber)
			assert.Equal(t, models.StateRunning, got.State)
		})
	}

	other, err := f.manager.Create(ctx, CreateTimerRequest{CustomerName: "Ivy"})
	require.NoError(t, err)
	_, err = f.manager.ChangeTime(ctx, other.TimerID, TimeChange{EndAfter: &Offset{Hours: 2}}, false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	got, err := f.manager.ChangeTime(ctx, other.TimerID, TimeChange{EndAfter: &Offset{Hours: 2}}, true)
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, t0.Add(2*time.Hour), *got.EndTime)

	_, err = f.manager.Pause(ctx, "timer_missing", false)
	assert.ErrorIs(t, err, ErrTimerNotFound)
}

func TestManagerPauseResetAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := createStarted(t, f, CreateTimerRequest{CustomerName: "Jo"})
	f.clock.Advance(100 * time.Second)

	paused, err := f.manager.Pause(ctx, v.TimerID, true)
	require.NoError(t, err)
	assert.Equal(t, 1700, paused.RemainingSeconds)
	assert.False(t, f.ticking(v.TimerID))

	f.clock.Advance(time.Hour)
	resumed, err := f.manager.Start(ctx, v.TimerID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1700, resumed.RemainingSeconds)
	assert.True(t, f.ticking(v.TimerID))

	reset, err := f.manager.Reset(ctx, v.TimerID, true)
	require.NoError(t, err)
	assert.Equal(t, 1800, reset.RemainingSeconds)
	assert.True(t, reset.DescriptionEditable)
	assert.False(t, f.ticking(v.TimerID))

	var got []models.Action
	for _, a := range f.repo.Actions() {
		got = append(got, a.Action)
	}
	assert.Equal(t, []models.Action{models.ActionPause, models.ActionPause, models.ActionReset}, got)

	var last events.TimerChangedPayload
	f.publisher.mu.Lock()
	ev := f.publisher.events[len(f.publisher.events)-1]
	f.publisher.mu.Unlock()
	require.Equal(t, events.EventTypeTimerReset, ev.EventType)
	require.NoError(t, json.Unmarshal(ev.Payload, &last))
	assert.Equal(t, "reset", last.Action)
	assert.Equal(t, string(models.StateNotStarted), last.State)
}

func TestManagerPersistenceFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.CreateTimerFunc = func(context.Context, models.TimerRecord) (string, error) {
		return "", errors.New("offline")
	}
	v, err := f.manager.Create(ctx, CreateTimerRequest{CustomerName: "Kim"})
	require.NoError(t, err)
	assert.Contains(t, f.notifier.messages(LevelError), "Could not save timer for Kim")

	// The record is created lazily on the next save.
	f.repo.CreateTimerFunc = nil
	desc := "Ball pit"
	_, err = f.manager.Start(ctx, v.TimerID, &desc)
	require.NoError(t, err)
	creates, updates := f.repo.counts()
	assert.Equal(t, 2, creates)
	assert.Zero(t, updates)

	f.repo.UpdateTimerFunc = func(context.Context, string, models.TimerRecord) error {
		return errors.New("write conflict")
	}
	f.repo.AppendActionFunc = func(context.Context, models.AuditEntry) error {
		return errors.New("write conflict")
	}
	paused, err := f.manager.Pause(ctx, v.TimerID, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, paused.State)

	got, err := f.manager.Get(v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, got.State)

	_, updates = f.repo.counts()
	assert.Equal(t, 1, updates, "failed writes are not retried")
	assert.Len(t, f.notifier.messages(LevelError), 3)
}

func TestManagerCreateThatLandedDespiteErrorIsUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.CreateTimerFunc = func(ctx context.Context, rec models.TimerRecord) (string, error) {
		if _, err := f.repo.Store.CreateTimer(ctx, rec); err != nil {
			return "", err
		}
		return "", context.DeadlineExceeded
	}
	v, err := f.manager.Create(ctx, CreateTimerRequest{CustomerName: "Lou"})
	require.NoError(t, err)
	require.Len(t, f.notifier.messages(LevelError), 1)

	f.repo.CreateTimerFunc = nil
	desc := "Climbing wall"
	_, err = f.manager.Start(ctx, v.TimerID, &desc)
	require.NoError(t, err)

	creates, updates := f.repo.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
	assert.Len(t, f.notifier.messages(LevelError), 1)

	rec, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, rec.Status)
	assert.Equal(t, "Climbing wall", rec.Description)
}

func TestManagerRefreshFromOtherDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := createStarted(t, f, CreateTimerRequest{CustomerName: "Lu"})
	rec, err := f.repo.GetTimer(ctx, v.TimerID)
	require.NoError(t, err)

	endedAt := t0.Add(time.Minute)
	rec.Status = models.StateEnded
	rec.EndTime = &endedAt
	rec.Paused = true
	require.NoError(t, f.repo.Store.UpdateTimer(ctx, rec.ID, *rec))

	require.NoError(t, f.manager.Refresh(ctx, v.TimerID))
	got, err := f.manager.Get(v.TimerID)
	require.NoError(t, err)
	assert.True(t, got.Hidden)
	assert.False(t, f.ticking(v.TimerID))

	assert.ErrorIs(t, f.manager.Refresh(ctx, "timer_unknown"), ErrTimerNotFound)
}

func TestManagerSearchAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.manager.Create(ctx, CreateTimerRequest{CustomerName: "Mia", ReceiptNumber: "R-11"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.manager.Create(ctx, CreateTimerRequest{CustomerName: "Ned", ReceiptNumber: "R-12"})
	require.NoError(t, err)
	_, err = f.manager.UpdateDescription(ctx, a.TimerID, "Birthday party")
	require.NoError(t, err)

	got := f.manager.Search("BIRTHDAY")
	require.Len(t, got, 1)
	assert.Equal(t, a.TimerID, got[0].TimerID)
	assert.Len(t, f.manager.Search(""), 2)
	assert.Equal(t, "Mia", f.manager.List(false)[0].CustomerName)

	s, err := f.manager.Summary(a.TimerID)
	require.NoError(t, err)
	assert.Equal(t, Summary{TimerID: a.TimerID, CustomerName: "Mia", ReceiptNumber: "R-11", Description: "Birthday party"}, s)

	_, err = f.manager.Create(ctx, CreateTimerRequest{})
	assert.ErrorIs(t, err, ErrCustomerNameRequired)
}

func TestManagerConcurrentTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.manager.Create(ctx, CreateTimerRequest{CustomerName: fmt.Sprintf("kid-%d", i)})
			if !assert.NoError(t, err) {
				return
			}
			desc := "Play"
			_, err = f.manager.Start(ctx, v.TimerID, &desc)
			assert.NoError(t, err)
			_, err = f.manager.Pause(ctx, v.TimerID, true)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	views := f.manager.List(false)
	require.Len(t, views, 10)
	for _, v := range views {
		assert.Equal(t, models.StatePaused, v.State)
	}
	assert.Len(t, f.repo.Actions(), 10)
}

func TestManagerCloseStopsTicks(t *testing.T) {
	f := newFixture(t)
	v := createStarted(t, f, CreateTimerRequest{CustomerName: "Oz"})
	require.True(t, f.ticking(v.TimerID))

	f.manager.Close()
	assert.False(t, f.ticking(v.TimerID))
}
