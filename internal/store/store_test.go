package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheet-enricher/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRun(id string, started time.Time) *model.Run {
	return &model.Run{ID: id, Source: "sheets:file-1/Leads", Status: model.RunStatusRunning, RowStart: 1, RowEnd: 1, StartedAt: started}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	run := testRun("run-1", started)
	require.NoError(t, s.BeginRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.True(t, started.Equal(got.StartedAt))

	finished := started.Add(10 * time.Minute)
	run.Status = model.RunStatusRecovered
	run.RowEnd = 11
	run.Cycles = 2
	run.Error = "context canceled"
	run.FinishedAt = &finished
	require.NoError(t, s.FinishRun(ctx, run))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRecovered, got.Status)
	assert.Equal(t, 11, got.RowEnd)
	assert.Equal(t, 2, got.Cycles)
	assert.Equal(t, "context canceled", got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
}

func TestSQLite_RunNotFound(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.FinishRun(ctx, testRun("missing", time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		r := testRun(id, base.Add(time.Duration(i)*time.Hour))
		if id == "b" {
			r.Status = model.RunStatusFailed
		}
		require.NoError(t, s.BeginRun(ctx, r))
	}

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID, "newest first")

	runs, err = s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)

	runs, err = s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)

	runs, err = s.ListRuns(ctx, RunFilter{Source: "xlsx:other.xlsx"})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSQLite_Cycles(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.BeginRun(ctx, testRun("run-1", base)))

	for i, start := range []int{1, 6} {
		require.NoError(t, s.RecordCycle(ctx, &model.CycleRecord{
			ID:       "cycle-" + string(rune('a'+i)),
			RunID:    "run-1",
			RowStart: start,
			RowEnd:   start + 5,
			Items: []model.ItemOutcome{
				{Name: "Acme", Status: model.ItemFound, Result: model.EnrichmentResult{ProfileURL: "u", Size: "11-50", Industry: "Retail"}, Duration: 3 * time.Second},
				{Name: "Globex", Status: model.ItemTimeout, Result: model.Partial{}.Merge()},
			},
			RowsWritten: 2,
			Flushed:     i == 0,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			FinishedAt:  base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}))
	}

	cycles, err := s.ListCycles(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, 1, cycles[0].RowStart)
	assert.True(t, cycles[0].Flushed)
	assert.False(t, cycles[1].Flushed)
	require.Len(t, cycles[0].Items, 2)
	assert.Equal(t, 3*time.Second, cycles[0].Items[0].Duration)
	assert.Equal(t, 1, cycles[0].Count(model.ItemTimeout))

	none, err := s.ListCycles(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_LookupCache(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	data, err := s.GetCachedLookup(ctx, "profile:acme")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.SetCachedLookup(ctx, "profile:acme", []byte(`"https://www.linkedin.com/company/acme"`), time.Hour))
	require.NoError(t, s.SetCachedLookup(ctx, "profile:acme", []byte(`"https://www.linkedin.com/company/acme-inc"`), time.Hour))
	require.NoError(t, s.SetCachedLookup(ctx, "profile:stale", []byte(`"x"`), time.Minute))

	data, err = s.GetCachedLookup(ctx, "profile:acme")
	require.NoError(t, err)
	assert.Contains(t, string(data), "acme-inc", "upsert replaces")

	now = now.Add(30 * time.Minute)
	data, err = s.GetCachedLookup(ctx, "profile:stale")
	require.NoError(t, err)
	assert.Nil(t, data, "expired entries are not returned")

	n, err := s.DeleteExpiredLookups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err = s.GetCachedLookup(ctx, "profile:acme")
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestNewSQLite_InvalidPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(ctx, Config{Driver: "mysql"})
	assert.ErrorContains(t, err, "unknown driver")

	_, err = Open(ctx, Config{Driver: DriverPostgres})
	assert.ErrorContains(t, err, "dsn is required")

	s, err = Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "enricher.db")})
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
