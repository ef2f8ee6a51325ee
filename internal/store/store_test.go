package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scriptyard/scriptyard/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetScript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := &models.Script{
		Name:         "Hello",
		Slug:         "hello",
		Content:      "print('hi')",
		Requirements: "",
		Environment:  map[string]string{"FOO": "bar"},
		Enabled:      true,
		AutoSave:     true,
	}
	require.NoError(t, s.CreateScript(ctx, sc))
	require.NotZero(t, sc.ID)

	got, err := s.GetScript(ctx, sc.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Slug)
	require.Equal(t, "bar", got.Environment["FOO"])

	bySlug, err := s.GetScriptBySlug(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, sc.ID, bySlug.ID)
}

func TestCreateScriptDuplicateSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Script{Name: "A", Slug: "dup"}
	require.NoError(t, s.CreateScript(ctx, first))

	second := &models.Script{Name: "B", Slug: "dup"}
	err := s.CreateScript(ctx, second)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUpdateScriptNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateScript(context.Background(), &models.Script{ID: 999, Slug: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBumpRunCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := &models.Script{Name: "Counters", Slug: "counters"}
	require.NoError(t, s.CreateScript(ctx, sc))

	now := time.Now().UTC()
	require.NoError(t, s.BumpRunCounters(ctx, sc.ID, true, now))
	require.NoError(t, s.BumpRunCounters(ctx, sc.ID, false, now))

	got, err := s.GetScript(ctx, sc.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.RunTotal)
	require.EqualValues(t, 1, got.RunSuccess)
	require.NotNil(t, got.LastRunAt)
}

func TestTriggerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := &models.Script{Name: "Cron", Slug: "cron-script"}
	require.NoError(t, s.CreateScript(ctx, sc))

	next := time.Now().Add(time.Minute).UTC()
	tr := &models.Trigger{
		ScriptID:   sc.ID,
		Kind:       models.TriggerCron,
		CronExpr:   "*/5 * * * *",
		Enabled:    true,
		NextFireAt: &next,
	}
	require.NoError(t, s.CreateTrigger(ctx, tr))

	fired := time.Now().UTC()
	newNext := fired.Add(5 * time.Minute)
	require.NoError(t, s.RecordFiring(ctx, tr.ID, fired, &newNext))

	got, err := s.GetTrigger(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastFiredAt)
	require.WithinDuration(t, newNext, *got.NextFireAt, time.Second)

	enabled, err := s.ListEnabledTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
}

func TestExecutionRecordLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := &models.Script{Name: "Run", Slug: "run-script"}
	require.NoError(t, s.CreateScript(ctx, sc))

	rec := models.NewExecutionRecordBuilder(sc.ID).Create(models.TriggeredByManual, time.Now().UTC())
	require.NoError(t, s.CreateExecutionRecord(ctx, rec))
	require.NotZero(t, rec.ID)

	finishedAt := time.Now().UTC()
	durationMs := int64(250)
	exitCode := 0
	rec.FinishedAt = &finishedAt
	rec.DurationMs = &durationMs
	rec.Status = models.RunSuccess
	rec.ExitCode = &exitCode
	rec.Stdout = "ok"
	require.NoError(t, s.FinishExecutionRecord(ctx, rec))

	got, err := s.GetExecutionRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.IsTerminal())
	require.Equal(t, "ok", got.Stdout)
	require.Equal(t, 0, *got.ExitCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, models.SettingsKeyAPIKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetSetting(ctx, models.SettingsKeyAPIKey, "secret"))
	v, err := s.GetSetting(ctx, models.SettingsKeyAPIKey)
	require.NoError(t, err)
	require.Equal(t, "secret", v)

	require.NoError(t, s.SetSetting(ctx, models.SettingsKeyAPIKey, "rotated"))
	v, err = s.GetSetting(ctx, models.SettingsKeyAPIKey)
	require.NoError(t, err)
	require.Equal(t, "rotated", v)
}

func TestUserStoreImplementsAuthInterface(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash", IsAdmin: true, Theme: "dark", Timezone: "UTC"}
	require.NoError(t, s.Create(ctx, u))

	got, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, got.IsAdmin)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestPendingTaskReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := &models.Script{Name: "Pending", Slug: "pending-script"}
	require.NoError(t, s.CreateScript(ctx, sc))

	id, err := s.EnqueuePendingTask(ctx, sc.ID, nil, models.TriggeredByManual)
	require.NoError(t, err)

	pending, err := s.ListPendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, sc.ID, pending[0].ScriptID)

	require.NoError(t, s.CompletePendingTask(ctx, id))
	pending, err = s.ListPendingTasks(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}
