package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scriptyard/scriptyard/internal/logger"

	"github.com/scriptyard/scriptyard/internal/metrics"
	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/queue"
	"github.com/scriptyard/scriptyard/internal/store"
)

// Enqueuer is the subset of *queue.Queue the Scheduler needs, kept as an
// interface so tests can substitute a fake that records RunRequests.
type Enqueuer interface {
	Enqueue(req queue.RunRequest) error
}

// EventPublisher is the subset of *fanout.Bus the Scheduler needs.
type EventPublisher interface {
	Publish(e models.Event)
}

// TriggerStore is the subset of *store.Store the Scheduler reads and
// writes trigger state through.
type TriggerStore interface {
	ListEnabledTriggers(ctx context.Context) ([]*models.Trigger, error)
	GetTrigger(ctx context.Context, id int64) (*models.Trigger, error)
	RecordFiring(ctx context.Context, triggerID int64, firedAt time.Time, nextFireAt *time.Time) error
}

var _ TriggerStore = (*store.Store)(nil)

// Scheduler maintains one armed timer per enabled, non-manual trigger.
type Scheduler struct {
	store     TriggerStore
	queue     Enqueuer
	bus       EventPublisher
	log       logger.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	timers map[int64]*time.Timer
	closed bool
}

// Option customizes a new Scheduler.
type Option func(*Scheduler)

// WithMetrics reports every trigger firing and overrun to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler. Call Start to load triggers and arm timers.
func New(st TriggerStore, q Enqueuer, bus EventPublisher, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  st,
		queue:  q,
		bus:    bus,
		log:    log,
		timers: make(map[int64]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads every enabled trigger from the Store, immediately enqueues
// startup triggers, and arms a timer for every cron/interval trigger, per
// spec.md §4.4's boot sequence.
func (s *Scheduler) Start(ctx context.Context) error {
	triggers, err := s.store.ListEnabledTriggers(ctx)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		switch t.Kind {
		case models.TriggerStartup:
			s.enqueue(t, models.TriggeredByStartup)
		case models.TriggerCron, models.TriggerInterval:
			s.arm(t)
		}
	}
	return nil
}

// Stop cancels every armed timer. The Scheduler cannot be restarted after
// Stop; construct a new one.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// arm computes next_fire_at (if unset) and schedules a timer that calls
// fire when it elapses.
func (s *Scheduler) arm(t *models.Trigger) {
	next := t.NextFireAt
	if next == nil {
		computed, err := NextFire(t, time.Now())
		if err != nil {
			s.log.Warn("failed to compute next fire", "trigger_id", t.ID, "error", err)
			return
		}
		next = &computed
	}
	s.armAt(t.ID, *next)
}

func (s *Scheduler) armAt(triggerID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[triggerID]; ok {
		existing.Stop()
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.timers[triggerID] = time.AfterFunc(d, func() { s.fire(triggerID) })
}

// fire implements spec.md §4.4's firing protocol: reread enabled, enqueue,
// record the firing, rearm.
func (s *Scheduler) fire(triggerID int64) {
	ctx := context.Background()
	t, err := s.store.GetTrigger(ctx, triggerID)
	if err != nil {
		if s.log != nil {
			s.log.Warn("trigger disappeared before firing", "trigger_id", triggerID, "error", err)
		}
		return
	}
	if !t.Enabled {
		return
	}

	now := time.Now().UTC()
	next, err := NextFire(t, now)
	var nextPtr *time.Time
	if err == nil {
		nextPtr = &next
	}

	err = s.queue.Enqueue(queue.RunRequest{ScriptID: t.ScriptID, TriggerID: &t.ID, TriggeredBy: models.TriggeredBySchedule})
	if err != nil {
		if s.bus != nil {
			s.bus.Publish(models.Event{Type: models.EventTriggerOverrun, ScriptID: t.ScriptID, RunID: 0, Timestamp: now})
		}
		if s.metrics != nil {
			s.metrics.TriggerOverruns.Inc()
		}
		if s.log != nil {
			s.log.Warn("run queue full, dropping fire", "trigger_id", triggerID, "error", err)
		}
	} else if s.metrics != nil {
		s.metrics.SchedulerFires.WithLabelValues(string(t.Kind)).Inc()
	}

	if recErr := s.store.RecordFiring(ctx, triggerID, now, nextPtr); recErr != nil && s.log != nil {
		s.log.Error("failed to record firing", "trigger_id", triggerID, "error", recErr)
	}

	if nextPtr != nil {
		s.armAt(triggerID, *nextPtr)
	}
}

func (s *Scheduler) enqueue(t *models.Trigger, triggeredBy models.TriggeredBy) {
	if err := s.queue.Enqueue(queue.RunRequest{ScriptID: t.ScriptID, TriggerID: &t.ID, TriggeredBy: triggeredBy}); err != nil && s.log != nil {
		s.log.Warn("failed to enqueue startup trigger", "trigger_id", t.ID, "error", err)
	}
}

// OnTriggerChanged cancels any armed timer for t.ID and re-arms it
// according to the new state, per spec.md §4.4's mutation hooks. A nil
// trigger is ignored; call OnTriggerDeleted after a delete.
func (s *Scheduler) OnTriggerChanged(t *models.Trigger) {
	if t == nil {
		return
	}
	s.cancelTimer(t.ID)
	if !t.Enabled {
		return
	}
	switch t.Kind {
	case models.TriggerCron, models.TriggerInterval:
		s.arm(t)
	}
}

// OnTriggerDeleted cancels any armed timer for triggerID.
func (s *Scheduler) OnTriggerDeleted(triggerID int64) {
	s.cancelTimer(triggerID)
}

func (s *Scheduler) cancelTimer(triggerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[triggerID]; ok {
		timer.Stop()
		delete(s.timers, triggerID)
	}
}

// ErrScheduleStopped names the stopped state of a Scheduler. No Scheduler
// method returns it.
var ErrScheduleStopped = errors.New("scheduler: stopped")
