package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = model.Date{Year: 2026, Month: time.March, Day: 2}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureSender struct {
	mu    sync.Mutex
	fail  error
	msgs  []notify.Message
	tries int
}

func (s *captureSender) ProviderID() string { return "capture" }

func (s *captureSender) Send(_ context.Context, _ string, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isRecovery(msg.Kind) {
		s.tries++
	}
	if s.fail != nil {
		return s.fail
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func isRecovery(kind notify.Kind) bool {
	return kind == notify.KindRecoveryOffer || kind == notify.KindRecoveryNudge
}

func (s *captureSender) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *captureSender) recovery() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Message
	for _, m := range s.msgs {
		if isRecovery(m.Kind) {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	store       *memory.Store
	clock       *clock
	engine      *availability.Engine
	sender      *captureSender
	coordinator *Coordinator
	manager     *lifecycle.Manager
	service     model.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	svc := &model.Service{TenantID: "t1", Name: "Nail trim", DurationMinutes: 30, Active: true, Pricing: model.Pricing{FixedCents: 1500}}
	require.NoError(t, store.SaveService(ctx, svc))
	for _, wd := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday} {
		require.NoError(t, store.SaveWindow(ctx, &model.AvailabilityWindow{
			TenantID: "t1", Weekday: wd, Start: model.NewTimeOfDay(9, 0), End: model.NewTimeOfDay(12, 0), Capacity: 1, Active: true,
		}))
	}

	clk := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	engine := availability.New(store, availability.Config{Now: clk.Now}, nil)
	sender := &captureSender{}
	coordinator := NewCoordinator(store, engine, sender, nil, nil, Config{Now: clk.Now})
	manager := lifecycle.NewManager(lifecycle.Deps{
		Store:    store,
		Engine:   engine,
		Recovery: coordinator,
		Sender:   sender,
		Now:      clk.Now,
	})
	return &fixture{store: store, clock: clk, engine: engine, sender: sender, coordinator: coordinator, manager: manager, service: *svc}
}

func (f *fixture) bookAndCancel(t *testing.T) model.Appointment {
	t.Helper()
	ctx := context.Background()
	appt, err := f.manager.Create(ctx, lifecycle.CreateRequest{
		TenantID: "t1", CustomerID: "c1", ServiceID: f.service.ID, Date: monday, Start: model.NewTimeOfDay(9, 0),
	})
	require.NoError(t, err)
	_, err = f.manager.Cancel(ctx, "t1", appt.ID, "vet visit", model.ActorCustomer)
	require.NoError(t, err)
	return appt
}

func TestRecovery_SendsExactlyTwoMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.bookAndCancel(t)

	rec, err := f.store.GetRecovery(ctx, "t1", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecoveryScheduled, rec.Status)
	assert.Equal(t, 2, rec.MaxAttempts)

	n, err := f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	msgs := f.sender.recovery()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindRecoveryOffer, msgs[0].Kind)
	require.Len(t, msgs[0].Slots, 3)
	assert.Equal(t, monday, msgs[0].Slots[0].Date)

	// Nothing is due until the delay has passed.
	n, err = f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(DefaultDelay)
	n, err = f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for i := 0; i < 3; i++ {
		f.clock.Advance(DefaultDelay)
		n, err = f.coordinator.ProcessDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	msgs = f.sender.recovery()
	require.Len(t, msgs, 2)
	assert.Equal(t, notify.KindRecoveryNudge, msgs[1].Kind)

	rec, err = f.store.GetRecovery(ctx, "t1", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecoveryExhausted, rec.Status)
	assert.Equal(t, 2, rec.Attempts)

	var recoveryEvents int
	for _, e := range f.store.DrainEvents() {
		if e.EventType == outbox.RecoveryMessage {
			recoveryEvents++
		}
	}
	assert.Equal(t, 2, recoveryEvents)
}

func TestRecovery_RebookStopsNudge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.bookAndCancel(t)

	_, err := f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)

	rebooked, err := f.manager.Create(ctx, lifecycle.CreateRequest{
		TenantID: "t1", CustomerID: "c1", ServiceID: f.service.ID, Date: monday, Start: model.NewTimeOfDay(10, 0), RebookOf: appt.ID,
	})
	require.NoError(t, err)

	rec, err := f.store.GetRecovery(ctx, "t1", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecoveryRescheduled, rec.Status)
	assert.Equal(t, rebooked.ID, rec.RescheduledTo)

	f.clock.Advance(DefaultDelay)
	n, err := f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.sender.recovery(), 1)
}

func TestRecovery_ReplyStopsNudge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.bookAndCancel(t)

	var marked bool
	require.NoError(t, f.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		marked, err = f.coordinator.MarkResponded(ctx, tx, "t1", appt.ID, time.Time{})
		return err
	}))
	assert.True(t, marked)

	n, err := f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.sender.recovery())

	require.NoError(t, f.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		marked, err = f.coordinator.MarkResponded(ctx, tx, "t1", "unknown", time.Time{})
		return err
	}))
	assert.False(t, marked)
}

func TestRecovery_SendFailureBacksOffWithoutConsumingAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.bookAndCancel(t)

	f.sender.failWith(errors.New("provider down"))
	n, err := f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := f.store.GetRecovery(ctx, "t1", appt.ID)
	require.NoError(t, err)
	assert.Zero(t, rec.Attempts)
	assert.Equal(t, "provider down", rec.LastError)
	assert.Equal(t, model.RecoveryScheduled, rec.Status)

	f.sender.failWith(nil)
	n, err = f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "retry waits for the backoff")

	f.clock.Advance(time.Minute)
	n, err = f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err = f.store.GetRecovery(ctx, "t1", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 1, rec.Failures)
	assert.Empty(t, rec.LastError)
}

func TestRecovery_ScheduleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.bookAndCancel(t)

	require.NoError(t, f.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return f.coordinator.Schedule(ctx, tx, appt)
	}))
	n, err := f.coordinator.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// flakyStore fails one chosen call inside its transactions.
type flakyStore struct {
	*memory.Store
	mu         sync.Mutex
	failUpdate int // fail the nth UpdateRecovery
	failEnq    int // fail the nth Enqueue
	updates    int
	enqueues   int
}

func (s *flakyStore) InTx(ctx context.Context, fn storage.TxFunc) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, &flakyTx{Tx: tx, store: s})
	})
}

type flakyTx struct {
	storage.Tx
	store *flakyStore
}

var errHiccup = errors.New("db hiccup")

func (t *flakyTx) UpdateRecovery(ctx context.Context, rec model.RecoveryAttempt) error {
	t.store.mu.Lock()
	t.store.updates++
	fail := t.store.updates == t.store.failUpdate
	t.store.mu.Unlock()
	if fail {
		return errHiccup
	}
	return t.Tx.UpdateRecovery(ctx, rec)
}

func (t *flakyTx) Enqueue(ctx context.Context, evt outbox.Event) error {
	t.store.mu.Lock()
	t.store.enqueues++
	fail := t.store.enqueues == t.store.failEnq
	t.store.mu.Unlock()
	if fail {
		return errHiccup
	}
	return t.Tx.Enqueue(ctx, evt)
}

func countEvents(events []outbox.Event, eventType string) int {
	n := 0
	for _, e := range events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func TestRecovery_FailedBatchSendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.bookAndCancel(t)
	second := f.bookAndCancel(t)

	flaky := &flakyStore{Store: f.store, failUpdate: 2}
	c := NewCoordinator(flaky, f.engine, f.sender, nil, nil, Config{Now: f.clock.Now})

	n, err := c.ProcessDue(ctx)
	require.ErrorIs(t, err, errHiccup)
	assert.Zero(t, n)
	assert.Empty(t, f.sender.recovery(), "nothing is sent before the claim commits")

	n, err = c.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f.clock.Advance(time.Minute)
	n, err = c.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	msgs := f.sender.recovery()
	require.Len(t, msgs, 2)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{msgs[0].AppointmentID, msgs[1].AppointmentID})
}

func TestRecovery_DeliveredMessageIsNotResent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.bookAndCancel(t)
	f.store.DrainEvents()

	flaky := &flakyStore{Store: f.store, failEnq: 1}
	c := NewCoordinator(flaky, f.engine, f.sender, nil, nil, Config{Now: f.clock.Now})

	n, err := c.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Minute)
		n, err = c.ProcessDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Len(t, f.sender.recovery(), 1)

	rec, err := f.store.GetRecovery(ctx, "t1", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, model.RecoveryScheduled, rec.Status)
	assert.Zero(t, countEvents(f.store.DrainEvents(), outbox.RecoveryMessage))
}

func TestRecovery_RepeatedSendFailuresExhaustRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.bookAndCancel(t)
	f.store.DrainEvents()
	f.sender.failWith(errors.New("provider down"))

	for i := 0; i < 50; i++ {
		_, err := f.coordinator.ProcessDue(ctx)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)
	}

	rec, err := f.store.GetRecovery(ctx, "t1", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecoveryExhausted, rec.Status)
	assert.Equal(t, DefaultMaxFailures, rec.Failures)
	assert.Zero(t, rec.Attempts)
	assert.Equal(t, "provider down", rec.LastError)

	f.sender.mu.Lock()
	tries := f.sender.tries
	f.sender.mu.Unlock()
	assert.Equal(t, DefaultMaxFailures, tries)

	events := f.store.DrainEvents()
	assert.Equal(t, 1, countEvents(events, outbox.RecoveryFailed))
	assert.Zero(t, countEvents(events, outbox.RecoveryMessage))
}
