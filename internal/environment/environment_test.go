package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/scriptyard/scriptyard/internal/logger"
)

type fakeInterpreter struct {
	name         string
	provisionErr error
	calls        int
}

func (f *fakeInterpreter) Name() string { return f.name }

func (f *fakeInterpreter) Provision(_ context.Context, _ string, _ string) error {
	f.calls++
	return f.provisionErr
}

func (f *fakeInterpreter) Command(_ context.Context, dir, scriptPath string, extraEnv []string) (string, []string, []string) {
	return "fake", []string{scriptPath}, extraEnv
}

func TestManagerProvisionSkipsUnchangedRequirements(t *testing.T) {
	m := NewManager(t.TempDir(), logger.NewLogger(logger.WithQuiet()))
	fi := &fakeInterpreter{name: "fake"}
	m.Register(fi)

	require.NoError(t, m.Provision(context.Background(), 1, "hello-world", "fake", "requests==2.31.0"))
	require.Equal(t, 1, fi.calls)

	require.NoError(t, m.Provision(context.Background(), 1, "hello-world", "fake", "requests==2.31.0"))
	require.Equal(t, 1, fi.calls, "unchanged requirements must not re-provision")

	require.NoError(t, m.Provision(context.Background(), 1, "hello-world", "fake", "requests==2.32.0"))
	require.Equal(t, 2, fi.calls, "changed requirements must re-provision")
}

func TestManagerUnknownInterpreter(t *testing.T) {
	m := NewManager(t.TempDir(), logger.NewLogger(logger.WithQuiet()))
	err := m.Provision(context.Background(), 1, "hello-world", "missing", "")
	require.ErrorIs(t, err, ErrUnknownInterpreter)
}

func TestManagerCleanup(t *testing.T) {
	m := NewManager(t.TempDir(), logger.NewLogger(logger.WithQuiet()))
	fi := &fakeInterpreter{name: "fake"}
	m.Register(fi)
	require.NoError(t, m.Provision(context.Background(), 7, "nightly-backup", "fake", ""))

	dir, err := m.ScriptDir(7, "nightly-backup")
	require.NoError(t, err)
	require.DirExists(t, dir)

	require.NoError(t, m.Cleanup(7, "nightly-backup"))
	require.NoDirExists(t, dir)
}

func TestScriptDirStaysWithinDataRoot(t *testing.T) {
	m := NewManager(t.TempDir(), logger.NewLogger(logger.WithQuiet()))
	dir, err := m.ScriptDir(42, "some-slug")
	require.NoError(t, err)
	require.Contains(t, dir, "42")
}
