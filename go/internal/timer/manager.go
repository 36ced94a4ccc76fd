package timer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/events"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store"
)

// Repository persists timers and their audit log.
type Repository interface {
	CreateTimer(ctx context.Context, rec models.TimerRecord) (string, error)
	UpdateTimer(ctx context.Context, ref string, rec models.TimerRecord) error
	GetTimer(ctx context.Context, timerID string) (*models.TimerRecord, error)
	ListActiveTimers(ctx context.Context) ([]models.TimerRecord, error)
	AppendAction(ctx context.Context, entry models.AuditEntry) error
}

// Notifier receives redraws and operator notifications.
type Notifier interface {
	TimerUpdated(v View)
	Notify(n Notification)
}

// EventPublisher forwards changes to other devices.
type EventPublisher interface {
	Publish(ctx context.Context, event events.TimerEvent) error
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifiers = append(m.notifiers, n) }
}

func WithPublisher(p EventPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// Manager owns the timers of one session. Operations on the same timer are
// serialized; different timers never block each other.
type Manager struct {
	repo      Repository
	settings  Settings
	clock     clockwork.Clock
	notifiers []Notifier
	publisher EventPublisher

	mu     sync.RWMutex
	timers map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	// opMu serializes mutating operations including their persistence call.
	opMu sync.Mutex
	// mu guards timer and tick.
	mu    sync.Mutex
	timer models.Timer
	tick  *tickTask
	// createFailed is set when a create returned an error; the record may
	// still have been written. Guarded by opMu.
	createFailed bool
}

// NewManager creates a manager with an empty collection.
func NewManager(repo Repository, settings Settings, opts ...Option) *Manager {
	if settings.TickInterval <= 0 {
		settings.TickInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:     repo,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		timers:   make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Settings returns the defaults the manager runs with.
func (m *Manager) Settings() Settings {
	return m.settings
}

// Close stops every tick task and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.mu.RLock()
	for _, e := range m.timers {
		e.mu.Lock()
		m.stopTickLocked(e)
		e.mu.Unlock()
	}
	m.mu.RUnlock()
	m.wg.Wait()
	log.Info().Msg("timer manager stopped")
}

// Create adds a never-started timer and persists it.
func (m *Manager) Create(ctx context.Context, req CreateTimerRequest) (View, error) {
	now := m.clock.Now()
	t, err := NewTimer(newTimerID(now), req, m.settings, now)
	if err != nil {
		return View{}, err
	}

	e := &entry{timer: t}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	m.mu.Lock()
	m.timers[t.TimerID] = e
	m.mu.Unlock()

	log.Info().
		Str("timer_id", t.TimerID).
		Str("customer", t.CustomerName).
		Int("seconds", t.RemainingSeconds).
		Msg("timer created")

	out := Outcome{
		Timer:         t,
		Persist:       true,
		Notifications: []Notification{info(t, now, "Timer created for %s", t.CustomerName)},
	}
	view := Render(t, now)
	m.carryOut(ctx, e, out, view, events.EventTypeTimerCreated)
	return view, nil
}

// Start starts or resumes a timer. A non-nil description replaces the
// current one if the timer has never started.
func (m *Manager) Start(ctx context.Context, id string, description *string) (View, error) {
	return m.mutate(ctx, id, events.EventTypeTimerStarted, func(t models.Timer, now time.Time) (Outcome, error) {
		return Start(t, description, now)
	})
}

// Pause freezes a timer after confirmation.
func (m *Manager) Pause(ctx context.Context, id string, confirmed bool) (View, error) {
	if !confirmed {
		return m.confirmationRequired(id)
	}
	return m.mutate(ctx, id, events.EventTypeTimerPaused, Pause)
}

// Reset restores the default duration after confirmation.
func (m *Manager) Reset(ctx context.Context, id string, confirmed bool) (View, error) {
	if !confirmed {
		return m.confirmationRequired(id)
	}
	return m.mutate(ctx, id, events.EventTypeTimerReset, func(t models.Timer, now time.Time) (Outcome, error) {
		return Reset(t, m.settings, now)
	})
}

// ChangeTime replaces the duration of a never-started timer. Absolute end
// times need confirmation.
func (m *Manager) ChangeTime(ctx context.Context, id string, change TimeChange, confirmed bool) (View, error) {
	if change.EndAfter != nil && !confirmed {
		return m.confirmationRequired(id)
	}
	return m.mutate(ctx, id, events.EventTypeTimeChanged, func(t models.Timer, now time.Time) (Outcome, error) {
		return ChangeTime(t, change, m.settings, now)
	})
}

// End finishes a timer. Without confirmation the current view is returned
// together with ErrConfirmationRequired so the caller can show the summary.
func (m *Manager) End(ctx context.Context, id string, confirmed bool) (View, error) {
	if !confirmed {
		return m.confirmationRequired(id)
	}
	return m.mutate(ctx, id, events.EventTypeTimerEnded, End)
}

// UpdateDescription edits the description of a never-started timer.
func (m *Manager) UpdateDescription(ctx context.Context, id, description string) (View, error) {
	return m.mutate(ctx, id, events.EventTypeDescriptionUpdated, func(t models.Timer, now time.Time) (Outcome, error) {
		return UpdateDescription(t, description, now)
	})
}

// Get renders one timer.
func (m *Manager) Get(id string) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Render(e.timer, m.clock.Now()), nil
}

// Summary returns the identifying fields of a timer.
func (m *Manager) Summary(id string) (Summary, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Summary{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Summarize(e.timer), nil
}

// List renders the timers in creation order.
func (m *Manager) List(includeHidden bool) []View {
	now := m.clock.Now()
	m.mu.RLock()
	views := make([]View, 0, len(m.timers))
	for _, e := range m.timers {
		e.mu.Lock()
		v := Render(e.timer, now)
		e.mu.Unlock()
		if v.Hidden && !includeHidden {
			continue
		}
		views = append(views, v)
	}
	m.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].TimerID < views[j].TimerID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// Search returns the visible timers matching query.
func (m *Manager) Search(query string) []View {
	return Filter(m.List(false), query)
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.timers[id]
	if !ok {
		return nil, ErrTimerNotFound
	}
	return e, nil
}

func (m *Manager) confirmationRequired(id string) (View, error) {
	v, err := m.Get(id)
	if err != nil {
		return View{}, err
	}
	return v, ErrConfirmationRequired
}

// mutate runs a transition on one timer and carries out its effects. A
// rejected transition leaves the timer untouched.
func (m *Manager) mutate(ctx context.Context, id, eventType string, fn func(models.Timer, time.Time) (Outcome, error)) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	now := m.clock.Now()
	out, err := fn(e.timer, now)
	if err != nil {
		view := Render(e.timer, now)
		e.mu.Unlock()
		return view, err
	}
	e.timer = out.Timer
	if out.StopTick {
		m.stopTickLocked(e)
	}
	if out.StartTick {
		m.startTickLocked(id, e)
	}
	view := Render(e.timer, now)
	e.mu.Unlock()

	m.carryOut(ctx, e, out, view, eventType)
	return view, nil
}

// carryOut executes the side effects of an outcome. The caller holds e.opMu.
// Writes use a context detached from the caller so a dropped request cannot
// abort a save halfway.
func (m *Manager) carryOut(ctx context.Context, e *entry, out Outcome, view View, eventType string) {
	ctx = context.WithoutCancel(ctx)
	if out.Persist {
		m.persist(ctx, e)
	}
	for _, a := range out.Audit {
		m.recordAction(ctx, out.Timer, a)
	}
	m.notifyView(view)
	for _, n := range out.Notifications {
		m.notify(n)
	}
	if eventType != "" {
		m.publish(ctx, eventType, out)
	}
}

// persist saves the current state of e. The record is created on the first
// successful save and updated afterwards. Failures keep the in-memory state.
// The caller holds e.opMu.
func (m *Manager) persist(ctx context.Context, e *entry) {
	e.mu.Lock()
	rec := e.timer.Record(m.clock.Now())
	name := e.timer.CustomerName
	e.mu.Unlock()

	if rec.ID == "" && e.createFailed {
		rec.ID = m.adoptRef(ctx, e, rec.TimerID)
	}

	if rec.ID == "" {
		ref, err := m.repo.CreateTimer(ctx, rec)
		if err != nil {
			e.createFailed = true
			m.persistFailed(rec.TimerID, name, err)
			return
		}
		e.createFailed = false
		m.setRef(e, ref)
		return
	}
	if err := m.repo.UpdateTimer(ctx, rec.ID, rec); err != nil {
		m.persistFailed(rec.TimerID, name, err)
	}
}

// adoptRef looks for a record left behind by a create that reported an error
// after it was written. It returns the stored ref, or "" when there is none.
func (m *Manager) adoptRef(ctx context.Context, e *entry, timerID string) string {
	existing, err := m.repo.GetTimer(ctx, timerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("timer_id", timerID).Msg("failed to look up timer after failed create")
		}
		return ""
	}
	if existing.ID == "" {
		return ""
	}
	log.Info().Str("timer_id", timerID).Str("ref", existing.ID).Msg("adopted stored record after failed create")
	e.createFailed = false
	m.setRef(e, existing.ID)
	return existing.ID
}

func (m *Manager) setRef(e *entry, ref string) {
	e.mu.Lock()
	e.timer.StorageRef = ref
	e.mu.Unlock()
}

func (m *Manager) persistFailed(id, name string, err error) {
	log.Error().Err(err).Str("timer_id", id).Msg("failed to save timer")
	m.notify(Notification{
		TimerID: id,
		Level:   LevelError,
		Message: fmt.Sprintf("Could not save timer for %s", name),
		At:      m.clock.Now(),
	})
}

func (m *Manager) recordAction(ctx context.Context, t models.Timer, a models.AuditEntry) {
	if err := m.repo.AppendAction(ctx, a); err != nil {
		log.Error().
			Err(err).
			Str("timer_id", a.TimerID).
			Str("action", string(a.Action)).
			Msg("failed to record timer action")
		m.notify(Notification{
			TimerID: a.TimerID,
			Level:   LevelError,
			Message: fmt.Sprintf("Could not record %s for %s", a.Action, t.CustomerName),
			At:      m.clock.Now(),
		})
		return
	}
	log.Info().
		Str("timer_id", a.TimerID).
		Str("action", string(a.Action)).
		Msg("timer action recorded")
}

func (m *Manager) notifyView(v View) {
	for _, n := range m.notifiers {
		n.TimerUpdated(v)
	}
}

func (m *Manager) notify(n Notification) {
	switch n.Level {
	case LevelAlarm:
		log.Warn().Str("timer_id", n.TimerID).Msg(n.Message)
	case LevelError:
		log.Error().Str("timer_id", n.TimerID).Msg(n.Message)
	default:
		log.Debug().Str("timer_id", n.TimerID).Msg(n.Message)
	}
	for _, nt := range m.notifiers {
		nt.Notify(n)
	}
}

func (m *Manager) publish(ctx context.Context, eventType string, out Outcome) {
	if m.publisher == nil {
		return
	}
	t := out.Timer
	now := m.clock.Now()

	var payload any
	if eventType == events.EventTypeAlarmRaised && len(out.Notifications) > 0 {
		payload = events.AlarmRaisedPayload{
			TimerID:          t.TimerID,
			CustomerName:     t.CustomerName,
			Message:          out.Notifications[0].Message,
			RemainingSeconds: t.RemainingSeconds,
			RaisedAt:         now,
		}
	} else {
		p := events.TimerChangedPayload{
			TimerID:          t.TimerID,
			State:            string(t.State()),
			RemainingSeconds: t.RemainingSeconds,
			StartTime:        t.StartTime,
			EndTime:          t.EndTime,
			ChangedAt:        now,
		}
		if n := len(out.Audit); n > 0 {
			p.Action = string(out.Audit[n-1].Action)
			p.NewTime = out.Audit[n-1].NewTime
		}
		payload = p
	}

	ev, err := events.NewTimerEvent(eventType, t.TimerID, payload, now)
	if err != nil {
		log.Error().Err(err).Str("timer_id", t.TimerID).Msg("failed to build timer event")
		return
	}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("timer_id", t.TimerID).
			Str("event_type", eventType).
			Msg("failed to publish timer event")
	}
}

// Load reconciles every active record from storage into the collection.
func (m *Manager) Load(ctx context.Context) error {
	records, err := m.repo.ListActiveTimers(ctx)
	if err != nil {
		return fmt.Errorf("list active timers: %w", err)
	}
	for _, rec := range records {
		m.reconcile(ctx, rec)
	}
	log.Info().Int("timers", len(records)).Msg("reconciled timers from storage")
	return nil
}

// Refresh re-reads one timer from storage and reconciles it over the
// in-memory copy.
func (m *Manager) Refresh(ctx context.Context, timerID string) error {
	rec, err := m.repo.GetTimer(ctx, timerID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTimerNotFound
	}
	if err != nil {
		return fmt.Errorf("get timer %s: %w", timerID, err)
	}
	m.reconcile(ctx, *rec)
	return nil
}

func (m *Manager) reconcile(ctx context.Context, rec models.TimerRecord) {
	now := m.clock.Now()
	t, repaired := m.fromRecord(rec, now)

	m.mu.Lock()
	e, ok := m.timers[t.TimerID]
	if !ok {
		e = &entry{timer: t}
		m.timers[t.TimerID] = e
	}
	m.mu.Unlock()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	m.stopTickLocked(e)
	out := Reconcile(t, now)
	e.timer = out.Timer
	if out.StartTick {
		m.startTickLocked(t.TimerID, e)
	}
	view := Render(e.timer, now)
	e.mu.Unlock()

	if out.Persist || repaired {
		m.persist(context.WithoutCancel(ctx), e)
	}
	m.notifyView(view)

	log.Debug().
		Str("timer_id", t.TimerID).
		Str("state", string(view.State)).
		Int("remaining", view.RemainingSeconds).
		Msg("timer reconciled")
}

// fromRecord rebuilds a timer from a stored record, filling missing fields
// with defaults. It reports whether a field had to be generated.
func (m *Manager) fromRecord(rec models.TimerRecord, now time.Time) (models.Timer, bool) {
	t := models.Timer{
		TimerID:            rec.TimerID,
		StorageRef:         rec.ID,
		CustomerName:       rec.CustomerName,
		ReceiptNumber:      rec.ReceiptNumber,
		Description:        rec.Description,
		AccumulatedSeconds: rec.Accumulated,
		StartTime:          rec.StartTime,
		EndTime:            rec.EndTime,
		Paused:             rec.Paused,
		AlarmTriggered:     rec.AlarmTriggered,
	}

	repaired := false
	if t.TimerID == "" {
		t.TimerID = newTimerID(now)
		repaired = true
		log.Warn().Str("record_id", rec.ID).Str("timer_id", t.TimerID).Msg("record without timer id, generated one")
	}
	if rec.CreatedAt != nil {
		t.CreatedAt = *rec.CreatedAt
	} else {
		t.CreatedAt = now
		log.Warn().Str("timer_id", t.TimerID).Msg("record without creation time, using now")
	}
	if rec.Time != nil {
		t.RemainingSeconds = *rec.Time
	} else {
		t.RemainingSeconds = m.settings.DefaultSeconds
		log.Warn().Str("timer_id", t.TimerID).Msg("record without time, using default duration")
	}
	t.Unlimited = rec.Unlimited || t.RemainingSeconds == models.UnlimitedSeconds

	switch {
	case rec.DefaultTime != nil:
		t.DefaultSeconds = *rec.DefaultTime
	case t.Unlimited:
		t.DefaultSeconds = models.UnlimitedSeconds
	default:
		t.DefaultSeconds = m.settings.DefaultSeconds
	}

	switch rec.Status {
	case models.StateEnded:
		t.Terminal = models.TerminalEnded
	case models.StateExpired:
		t.Terminal = models.TerminalExpired
	}
	return t, repaired
}

func newTimerID(now time.Time) string {
	return fmt.Sprintf("timer_%d_%s", now.UnixMilli(), uuid.New().String()[:8])
}
