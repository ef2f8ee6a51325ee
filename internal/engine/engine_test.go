package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/scriptyard/scriptyard/internal/logger"

	"github.com/scriptyard/scriptyard/internal/environment"
	"github.com/scriptyard/scriptyard/internal/fanout"
	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/queue"
	"github.com/scriptyard/scriptyard/internal/store"
)

// shellInterpreter runs the materialized script file directly with /bin/sh,
// letting tests exercise the engine's process lifecycle without depending
// on a real Python toolchain being installed.
type shellInterpreter struct{}

func (shellInterpreter) Name() string { return "shell" }

func (shellInterpreter) Provision(_ context.Context, _ string, _ string) error { return nil }

func (shellInterpreter) Command(_ context.Context, _ string, scriptPath string, extraEnv []string) (string, []string, []string) {
	return "/bin/sh", []string{scriptPath}, extraEnv
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := environment.NewManager(t.TempDir(), logger.NewLogger(logger.WithQuiet()))
	env.Register(shellInterpreter{})

	bus := fanout.New(16)
	return New(st, env, bus, logger.NewLogger(logger.WithQuiet()), opts...), st
}

func createScript(t *testing.T, st *store.Store, content string) *models.Script {
	t.Helper()
	sc := &models.Script{
		Name:               "t",
		Slug:               "t",
		Content:            content,
		InterpreterVersion: "shell",
		Enabled:            true,
		AutoSave:           true,
	}
	require.NoError(t, st.CreateScript(context.Background(), sc))
	return sc
}

func TestRunSuccess(t *testing.T) {
	e, st := newTestEngine(t)
	sc := createScript(t, st, "echo hello\nexit 0\n")

	err := e.Run(context.Background(), queue.RunRequest{ScriptID: sc.ID, TriggeredBy: models.TriggeredByManual})
	require.NoError(t, err)

	records, err := st.ListExecutionRecords(context.Background(), store.ListExecutionRecordsOptions{ScriptID: &sc.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, models.RunSuccess, records[0].Status)
	require.Contains(t, records[0].Stdout, "hello")
	require.Equal(t, 0, *records[0].ExitCode)
}

func TestRunFailureExitCode(t *testing.T) {
	e, st := newTestEngine(t)
	sc := createScript(t, st, "echo oops 1>&2\nexit 3\n")

	err := e.Run(context.Background(), queue.RunRequest{ScriptID: sc.ID, TriggeredBy: models.TriggeredByManual})
	require.NoError(t, err)

	records, err := st.ListExecutionRecords(context.Background(), store.ListExecutionRecordsOptions{ScriptID: &sc.ID})
	require.NoError(t, err)
	require.Equal(t, models.RunFailed, records[0].Status)
	require.Equal(t, 3, *records[0].ExitCode)
	require.Contains(t, records[0].Stderr, "oops")
}

func TestRunTimeout(t *testing.T) {
	e, st := newTestEngine(t, WithDefaultTimeout(100*time.Millisecond), WithGracePeriod(50*time.Millisecond))
	sc := createScript(t, st, "sleep 5\n")

	err := e.Run(context.Background(), queue.RunRequest{ScriptID: sc.ID, TriggeredBy: models.TriggeredByManual})
	require.NoError(t, err)

	records, err := st.ListExecutionRecords(context.Background(), store.ListExecutionRecordsOptions{ScriptID: &sc.ID})
	require.NoError(t, err)
	require.Equal(t, models.RunTimeout, records[0].Status)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	e, st := newTestEngine(t)
	sc := createScript(t, st, "sleep 1\n")

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background(), queue.RunRequest{ScriptID: sc.ID, TriggeredBy: models.TriggeredByManual})
	}()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.running[sc.ID]
	}, time.Second, time.Millisecond)

	err := e.Run(context.Background(), queue.RunRequest{ScriptID: sc.ID, TriggeredBy: models.TriggeredByManual})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	<-done
}

func TestRunBumpsScriptCounters(t *testing.T) {
	e, st := newTestEngine(t)
	sc := createScript(t, st, "exit 0\n")

	require.NoError(t, e.Run(context.Background(), queue.RunRequest{ScriptID: sc.ID, TriggeredBy: models.TriggeredByManual}))

	got, err := st.GetScript(context.Background(), sc.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.RunTotal)
	require.EqualValues(t, 1, got.RunSuccess)
}
