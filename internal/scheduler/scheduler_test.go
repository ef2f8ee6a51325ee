package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/scriptyard/scriptyard/internal/logger"

	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/queue"
)

type fakeEnqueuer struct {
	mu   sync.Mutex
	reqs []queue.RunRequest
	full bool
}

func (f *fakeEnqueuer) Enqueue(req queue.RunRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return queue.ErrQueueFull
	}
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeBus struct {
	mu     sync.Mutex
	events []models.Event
}

func (b *fakeBus) Publish(e models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type fakeTriggerStore struct {
	mu       sync.Mutex
	triggers map[int64]*models.Trigger
	fired    []int64
}

func newFakeTriggerStore(triggers ...*models.Trigger) *fakeTriggerStore {
	m := make(map[int64]*models.Trigger)
	for _, t := range triggers {
		m[t.ID] = t
	}
	return &fakeTriggerStore{triggers: m}
}

func (f *fakeTriggerStore) ListEnabledTriggers(_ context.Context) ([]*models.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Trigger
	for _, t := range f.triggers {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTriggerStore) GetTrigger(_ context.Context, id int64) (*models.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.triggers[id]
	if !ok {
		return nil, errNotFound
	}
	return t, nil
}

func (f *fakeTriggerStore) RecordFiring(_ context.Context, triggerID int64, firedAt time.Time, nextFireAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.triggers[triggerID]
	if !ok {
		return errNotFound
	}
	t.LastFiredAt = &firedAt
	t.NextFireAt = nextFireAt
	f.fired = append(f.fired, triggerID)
	return nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound = notFoundError{}

func TestStartEnqueuesStartupTrigger(t *testing.T) {
	startup := &models.Trigger{ID: 1, ScriptID: 10, Kind: models.TriggerStartup, Enabled: true}
	ts := newFakeTriggerStore(startup)
	eq := &fakeEnqueuer{}
	s := New(ts, eq, &fakeBus{}, logger.NewLogger(logger.WithQuiet()))

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 1, eq.count())
	require.EqualValues(t, models.TriggeredByStartup, eq.reqs[0].TriggeredBy)
}

func TestIntervalTriggerFiresAndRearms(t *testing.T) {
	next := time.Now().Add(20 * time.Millisecond)
	trigger := &models.Trigger{ID: 2, ScriptID: 20, Kind: models.TriggerInterval, IntervalSecs: 1, Enabled: true, NextFireAt: &next}
	ts := newFakeTriggerStore(trigger)
	eq := &fakeEnqueuer{}
	s := New(ts, eq, &fakeBus{}, logger.NewLogger(logger.WithQuiet()))
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return eq.count() == 1 }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, models.TriggeredBySchedule, eq.reqs[0].TriggeredBy)
	require.NotNil(t, trigger.NextFireAt)
}

func TestFireOnFullQueueEmitsOverrun(t *testing.T) {
	next := time.Now().Add(10 * time.Millisecond)
	trigger := &models.Trigger{ID: 3, ScriptID: 30, Kind: models.TriggerInterval, IntervalSecs: 60, Enabled: true, NextFireAt: &next}
	ts := newFakeTriggerStore(trigger)
	eq := &fakeEnqueuer{full: true}
	bus := &fakeBus{}
	s := New(ts, eq, bus, logger.NewLogger(logger.WithQuiet()))
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return bus.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, models.EventTriggerOverrun, bus.events[0].Type)
	// last_fired_at still advances even though nothing was enqueued.
	require.NotNil(t, trigger.LastFiredAt)
}

func TestOnTriggerChangedRearms(t *testing.T) {
	next := time.Now().Add(time.Hour)
	trigger := &models.Trigger{ID: 4, ScriptID: 40, Kind: models.TriggerInterval, IntervalSecs: 3600, Enabled: true, NextFireAt: &next}
	ts := newFakeTriggerStore(trigger)
	eq := &fakeEnqueuer{}
	s := New(ts, eq, &fakeBus{}, logger.NewLogger(logger.WithQuiet()))
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	soon := time.Now().Add(15 * time.Millisecond)
	trigger.NextFireAt = &soon
	s.OnTriggerChanged(trigger)

	require.Eventually(t, func() bool { return eq.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestValidateAndPreview(t *testing.T) {
	result := ValidateAndPreview("*/5 * * * *", "UTC")
	require.True(t, result.Valid)
	require.Len(t, result.NextRuns, 5)

	bad := ValidateAndPreview("not a cron expr", "UTC")
	require.False(t, bad.Valid)
	require.NotEmpty(t, bad.Error)
}

func TestNextFireInterval(t *testing.T) {
	trig := &models.Trigger{Kind: models.TriggerInterval, IntervalSecs: 30}
	now := time.Now()
	next, err := NextFire(trig, now)
	require.NoError(t, err)
	require.WithinDuration(t, now.Add(30*time.Second), next, time.Second)
}
