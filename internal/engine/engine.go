// Package engine implements the Execution Engine (spec.md §4.2): it turns a
// RunRequest into a finalized ExecutionRecord while streaming live output,
// grounded on the teacher's agent.Run lifecycle
// (setupGraph → checkPreconditions → checkIsRunning → setupDatabase → run)
// narrowed from "one DAG of steps" to "one interpreter subprocess per run".
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scriptyard/scriptyard/internal/logger"

	"github.com/scriptyard/scriptyard/internal/environment"
	"github.com/scriptyard/scriptyard/internal/fanout"
	"github.com/scriptyard/scriptyard/internal/mailer"
	"github.com/scriptyard/scriptyard/internal/metrics"
	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/queue"
	"github.com/scriptyard/scriptyard/internal/store"
)

// Notifier delivers a completion email. Satisfied by *mailer.Mailer; kept as
// an interface so tests can substitute a recording fake.
type Notifier interface {
	Send(ctx context.Context, from string, to []string, subject, body string, attachments []mailer.Attachment) error
}

// ErrAlreadyRunning is returned when a RunRequest targets a Script that
// already has an ExecutionRecord with status=running, per spec.md §4.2's
// concurrency policy (neither queued nor coalesced; simply rejected).
var ErrAlreadyRunning = errors.New("already_running")

// DefaultTimeout bounds the RUNNING state when a Script sets no per-script
// timeout and none is configured.
const DefaultTimeout = 5 * time.Minute

// DefaultGracePeriod is how long the engine waits after a graceful
// termination signal before forcefully killing a timed-out or canceled run.
const DefaultGracePeriod = 10 * time.Second

// DefaultOutputByteBudget caps each of stdout/stderr before truncation, per
// DESIGN.md's Open Question 3.
const DefaultOutputByteBudget = 1 << 20 // 1 MiB

const truncationMarker = "\n...[truncated]"

// Engine turns RunRequests into finalized ExecutionRecords.
type Engine struct {
	store            *store.Store
	env              *environment.Manager
	bus              *fanout.Bus
	log              logger.Logger
	notifier         Notifier
	notifyFrom       string
	outputByteBudget int64
	defaultTimeout   time.Duration
	gracePeriod      time.Duration
	metrics          *metrics.Metrics

	mu      sync.Mutex
	running map[int64]bool // scriptID -> has an in-flight run
}

// Option customizes a new Engine.
type Option func(*Engine)

// WithOutputByteBudget overrides DefaultOutputByteBudget.
func WithOutputByteBudget(n int64) Option {
	return func(e *Engine) { e.outputByteBudget = n }
}

// WithDefaultTimeout overrides DefaultTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Engine) { e.gracePeriod = d }
}

// WithNotifier wires a completion-email sender. from is used as the
// envelope/From address for every notification the Engine sends.
func WithNotifier(n Notifier, from string) Option {
	return func(e *Engine) {
		e.notifier = n
		e.notifyFrom = from
	}
}

// WithMetrics reports every finalized run's status and duration to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine backed by st and env, publishing lifecycle and
// output events on bus.
func New(st *store.Store, env *environment.Manager, bus *fanout.Bus, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:            st,
		env:              env,
		bus:              bus,
		log:              log,
		outputByteBudget: DefaultOutputByteBudget,
		defaultTimeout:   DefaultTimeout,
		gracePeriod:      DefaultGracePeriod,
		running:          make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle implements queue.Handler: it runs one RunRequest to completion.
// Errors are not returned to the caller (the worker pool is fire-and-forget
// per spec.md §4.5); they are logged and reflected in the ExecutionRecord.
// A request rejected with ErrAlreadyRunning creates no ExecutionRecord and
// is logged as a warning.
func (e *Engine) Handle(ctx context.Context, req queue.RunRequest) {
	err := e.Run(ctx, req)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		e.log.Warn("run skipped: script already running", "script_id", req.ScriptID)
	case err != nil:
		e.log.Error("run failed", "script_id", req.ScriptID, "error", err)
	}
}

// Run executes req synchronously through QUEUED → PREPARING → RUNNING →
// FINALIZING → TERMINAL. Returns ErrAlreadyRunning if the Script already has
// a run in flight.
func (e *Engine) Run(ctx context.Context, req queue.RunRequest) error {
	if !e.claim(req.ScriptID) {
		return ErrAlreadyRunning
	}
	defer e.release(req.ScriptID)

	sc, err := e.store.GetScript(ctx, req.ScriptID)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}

	// PREPARING
	var triggerID *int64
	if req.TriggerID != nil {
		triggerID = req.TriggerID
	}
	startedAt := time.Now().UTC()
	var recOpts []models.ExecutionRecordOption
	if triggerID != nil {
		recOpts = append(recOpts, models.WithTriggerID(*triggerID))
	}
	rec := models.NewExecutionRecordBuilder(sc.ID).Create(req.TriggeredBy, startedAt, recOpts...)
	if err := e.store.CreateExecutionRecord(ctx, rec); err != nil {
		return fmt.Errorf("create execution record: %w", err)
	}
	e.publish(models.Event{Type: models.EventRunStarted, ScriptID: sc.ID, RunID: rec.ID, Timestamp: startedAt})

	scriptDir, err := e.env.ScriptDir(sc.ID, sc.Slug)
	if err != nil {
		return e.finalizeFailure(ctx, sc, rec, startedAt, fmt.Sprintf("environment error: %v", err))
	}
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		return e.finalizeFailure(ctx, sc, rec, startedAt, fmt.Sprintf("environment error: %v", err))
	}

	interpreterName := sc.InterpreterVersion
	if interpreterName == "" {
		interpreterName = "python3"
	}
	if err := e.env.Provision(ctx, sc.ID, sc.Slug, interpreterName, sc.Requirements); err != nil {
		e.publish(models.Event{Type: models.EventEnvFailed, ScriptID: sc.ID, RunID: rec.ID, Timestamp: time.Now().UTC()})
		return e.finalizeFailure(ctx, sc, rec, startedAt, fmt.Sprintf("environment preparation failed: %v", err))
	}
	e.publish(models.Event{Type: models.EventEnvReady, ScriptID: sc.ID, RunID: rec.ID, Timestamp: time.Now().UTC()})

	sourcePath := filepath.Join(scriptDir, sc.Slug+".py")
	if err := os.WriteFile(sourcePath, []byte(sc.Content), 0o644); err != nil {
		return e.finalizeFailure(ctx, sc, rec, startedAt, fmt.Sprintf("write source: %v", err))
	}

	interp, err := e.env.Interpreter(interpreterName)
	if err != nil {
		return e.finalizeFailure(ctx, sc, rec, startedAt, fmt.Sprintf("environment error: %v", err))
	}

	timeout := e.defaultTimeout
	if sc.TimeoutSeconds != nil {
		timeout = time.Duration(*sc.TimeoutSeconds) * time.Second
	}

	// RUNNING
	result := e.runProcess(ctx, interp, scriptDir, sourcePath, envOverlay(sc.Environment), timeout, sc.ID, rec.ID)

	// FINALIZING
	return e.finalize(ctx, sc, rec, startedAt, result)
}

func (e *Engine) claim(scriptID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[scriptID] {
		return false
	}
	e.running[scriptID] = true
	return true
}

func (e *Engine) release(scriptID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, scriptID)
}

func (e *Engine) publish(ev models.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func envOverlay(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

func (e *Engine) finalizeFailure(ctx context.Context, sc *models.Script, rec *models.ExecutionRecord, startedAt time.Time, stderr string) error {
	return e.finalize(ctx, sc, rec, startedAt, &processResult{
		status: models.RunFailed,
		stderr: stderr,
	})
}

func (e *Engine) finalize(ctx context.Context, sc *models.Script, rec *models.ExecutionRecord, startedAt time.Time, result *processResult) error {
	finishedAt := time.Now().UTC()
	durationMs := finishedAt.Sub(startedAt).Milliseconds()

	rec.FinishedAt = &finishedAt
	rec.DurationMs = &durationMs
	rec.Status = result.status
	rec.ExitCode = result.exitCode
	rec.Stdout, rec.StdoutTruncated = truncate(result.stdout, e.outputByteBudget)
	rec.Stderr, rec.StderrTruncated = truncate(result.stderr, e.outputByteBudget)
	rec.MemoryMB = result.memoryMB
	rec.CPUPercent = result.cpuPercent

	if err := e.store.FinishExecutionRecord(ctx, rec); err != nil {
		return fmt.Errorf("finish execution record: %w", err)
	}
	if err := e.store.BumpRunCounters(ctx, sc.ID, rec.Status == models.RunSuccess, finishedAt); err != nil {
		return fmt.Errorf("bump run counters: %w", err)
	}

	e.publish(models.Event{
		Type:      models.EventRunFinished,
		ScriptID:  sc.ID,
		RunID:     rec.ID,
		Timestamp: finishedAt,
		Payload:   rec,
	})

	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(string(rec.Status)).Inc()
		e.metrics.RunDuration.WithLabelValues(string(rec.Status)).Observe(float64(durationMs) / 1000)
	}

	e.notifyCompletion(sc, rec)
	return nil
}

// notifyCompletion sends the completion email a Script has opted into.
// Delivery happens on a detached goroutine: a slow or down mail server must
// never hold up the worker that ran this script.
func (e *Engine) notifyCompletion(sc *models.Script, rec *models.ExecutionRecord) {
	if e.notifier == nil || !sc.EmailOnCompletion || len(sc.EmailRecipients) == 0 {
		return
	}
	subject := fmt.Sprintf("[scriptyard] %s finished: %s", sc.Name, rec.Status)
	body := fmt.Sprintf("Script: %s\nStatus: %s\nStarted: %s\nFinished: %s\n\nStdout:\n%s\n\nStderr:\n%s\n",
		sc.Name, rec.Status, rec.StartedAt.Format(time.RFC3339), rec.FinishedAt.Format(time.RFC3339), rec.Stdout, rec.Stderr)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.notifier.Send(ctx, e.notifyFrom, sc.EmailRecipients, subject, body, nil); err != nil {
			e.log.Warn("completion email failed", "script_id", sc.ID, "run_id", rec.ID, "error", err)
		}
	}()
}

func truncate(s string, budget int64) (string, bool) {
	if budget <= 0 || int64(len(s)) <= budget {
		return s, false
	}
	cut := budget - int64(len(truncationMarker))
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncationMarker, true
}
