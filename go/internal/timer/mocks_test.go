package timer

import (
	"context"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/events"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store/memory"
)

// MockRepository wraps the memory store; set a *Func to inject failures.
type MockRepository struct {
	*memory.Store

	CreateTimerFunc  func(ctx context.Context, rec models.TimerRecord) (string, error)
	UpdateTimerFunc  func(ctx context.Context, ref string, rec models.TimerRecord) error
	AppendActionFunc func(ctx context.Context, entry models.AuditEntry) error

	mu      sync.Mutex
	creates int
	updates int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{Store: memory.NewStore()}
}

func (m *MockRepository) CreateTimer(ctx context.Context, rec models.TimerRecord) (string, error) {
	m.mu.Lock()
	m.creates++
	m.mu.Unlock()
	if m.CreateTimerFunc != nil {
		return m.CreateTimerFunc(ctx, rec)
	}
	return m.Store.CreateTimer(ctx, rec)
}

func (m *MockRepository) UpdateTimer(ctx context.Context, ref string, rec models.TimerRecord) error {
	m.mu.Lock()
	m.updates++
	m.mu.Unlock()
	if m.UpdateTimerFunc != nil {
		return m.UpdateTimerFunc(ctx, ref, rec)
	}
	return m.Store.UpdateTimer(ctx, ref, rec)
}

func (m *MockRepository) AppendAction(ctx context.Context, entry models.AuditEntry) error {
	if m.AppendActionFunc != nil {
		return m.AppendActionFunc(ctx, entry)
	}
	return m.Store.AppendAction(ctx, entry)
}

func (m *MockRepository) counts() (creates, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.updates
}

type recordingNotifier struct {
	mu    sync.Mutex
	views []View
	notes []Notification
}

func (r *recordingNotifier) TimerUpdated(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) messages(level NotificationLevel) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notes {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TimerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.TimerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType)
	}
	return out
}

type fixture struct {
	manager   *Manager
	clock     *clockwork.FakeClock
	repo      *MockRepository
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:     clockwork.NewFakeClockAt(t0),
		repo:      NewMockRepository(),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	f.manager = NewManager(f.repo, DefaultSettings(),
		WithClock(f.clock),
		WithNotifier(f.notifier),
		WithPublisher(f.publisher),
	)
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) ticking(id string) bool {
	e, err := f.manager.lookup(id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick != nil
}
