package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgforge/migrate/internal/ledger"
	"github.com/pgforge/migrate/internal/migration"
)

// mockLock implements lockReleaser for testing.
type mockLock struct {
	released bool
}

func (m *mockLock) Release(_ context.Context) error {
	m.released = true
	return nil
}

// mockLedger implements Ledger for testing.
type mockLedger struct {
	ensureErr error
	listErr   error
	recordErr error
	entries   []ledger.Entry
	recorded  []ledger.Entry
}

func (m *mockLedger) EnsureTable(_ context.Context) error {
	return m.ensureErr
}

func (m *mockLedger) ListApplied(_ context.Context) ([]ledger.Entry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	return m.entries, nil
}

func (m *mockLedger) RecordApplied(_ context.Context, _ pgx.Tx, e ledger.Entry) error {
	if m.recordErr != nil {
		return m.recordErr
	}

	m.recorded = append(m.recorded, e)

	return nil
}

func testScript(version int64, sql string) migration.Script {
	return migration.Script{
		Version:     version,
		Description: "test",
		SQL:         sql,
		Checksum:    migration.ComputeChecksum(sql),
		FilePath:    "migrations/v1-test.sql",
	}
}

func appliedEntry(s migration.Script) ledger.Entry {
	return ledger.Entry{Version: s.Version, Description: s.Description, Checksum: s.Checksum}
}

func noopLockFn(_ context.Context) (lockReleaser, error) {
	return &mockLock{}, nil
}

// recordingApplyFn simulates a successful apply by writing to the ledger,
// like the real applyOne does inside its transaction.
func recordingApplyFn(ml *mockLedger) applyFunc {
	return func(ctx context.Context, s *migration.Script) (time.Duration, error) {
		err := ml.RecordApplied(ctx, nil, ledger.Entry{
			Version:     s.Version,
			Description: s.Description,
			Checksum:    s.Checksum,
		})

		return time.Millisecond, err
	}
}

func newTestRunner(ml *mockLedger, opts ...Option) *Runner {
	r := New(nil, ml, opts...)
	r.acquireLock = noopLockFn
	r.applyScript = recordingApplyFn(ml)

	return r
}

func recordedVersions(ml *mockLedger) []int64 {
	vs := make([]int64, len(ml.recorded))
	for i, e := range ml.recorded {
		vs[i] = e.Version
	}

	return vs
}

// --- Run happy paths ---

func TestRun_emptyLedger_appliesAllInOrder(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	r := newTestRunner(ml)

	scripts := []migration.Script{
		testScript(1, "CREATE TABLE a (id INT);"),
		testScript(2, "CREATE TABLE b (id INT);"),
		testScript(3, "CREATE TABLE c (id INT);"),
	}

	res := r.Run(context.Background(), scripts)

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.FinalState)
	assert.Equal(t, []int64{1, 2, 3}, res.AppliedVersions)
	assert.Equal(t, []int64{1, 2, 3}, recordedVersions(ml))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", res.RunID.String())
}

func TestRun_secondPass_appliesNothing(t *testing.T) {
	t.Parallel()

	s1 := testScript(1, "CREATE TABLE a (id INT);")
	s2 := testScript(2, "CREATE TABLE b (id INT);")
	ml := &mockLedger{entries: []ledger.Entry{appliedEntry(s1), appliedEntry(s2)}}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), []migration.Script{s1, s2})

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.FinalState)
	assert.Empty(t, res.AppliedVersions)
	assert.Empty(t, ml.recorded)
}

func TestRun_partiallyApplied_resumesFromFirstPending(t *testing.T) {
	t.Parallel()

	s1 := testScript(1, "CREATE TABLE a (id INT);")
	s2 := testScript(2, "CREATE TABLE b (id INT);")
	s3 := testScript(3, "CREATE TABLE c (id INT);")
	ml := &mockLedger{entries: []ledger.Entry{appliedEntry(s1)}}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), []migration.Script{s1, s2, s3})

	require.NoError(t, res.Err)
	assert.Equal(t, []int64{2, 3}, res.AppliedVersions)
}

func TestRun_noScripts_reachesDone(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), nil)

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.FinalState)
	assert.Empty(t, res.AppliedVersions)
}

// --- Failure transitions ---

func TestRun_lockError_failsBeforeTouchingLedger(t *testing.T) {
	t.Parallel()

	lockErr := errors.New("lock timeout")
	ml := &mockLedger{}
	r := New(nil, ml)
	r.acquireLock = func(_ context.Context) (lockReleaser, error) { return nil, lockErr }

	res := r.Run(context.Background(), []migration.Script{testScript(1, "SELECT 1;")})

	require.ErrorIs(t, res.Err, lockErr)
	assert.Equal(t, StateFailed, res.FinalState)
	assert.Contains(t, res.Err.Error(), "acquiring migration lock")
	assert.Empty(t, ml.recorded)
}

func TestRun_ensureTableError_fails(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{ensureErr: errors.New("create table failed")}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), nil)

	require.Error(t, res.Err)
	assert.Equal(t, StateFailed, res.FinalState)
}

func TestRun_listAppliedError_fails(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{listErr: errors.New("query failed")}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), nil)

	require.Error(t, res.Err)
	assert.Equal(t, StateFailed, res.FinalState)
}

func TestRun_drift_failsWithoutApplyingAnything(t *testing.T) {
	t.Parallel()

	s1 := testScript(1, "CREATE TABLE a (id INT);")
	s2 := testScript(2, "CREATE TABLE b (id INT);")
	ml := &mockLedger{entries: []ledger.Entry{
		{Version: 1, Description: "test", Checksum: "tampered"},
	}}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), []migration.Script{s1, s2})

	require.ErrorIs(t, res.Err, ErrChecksumMismatch)
	assert.Equal(t, StateFailed, res.FinalState)
	assert.Empty(t, res.AppliedVersions)
	assert.Empty(t, ml.recorded)
}

func TestRun_gap_failsWithoutApplyingAnything(t *testing.T) {
	t.Parallel()

	s1 := testScript(1, "CREATE TABLE a (id INT);")
	s3 := testScript(3, "CREATE TABLE c (id INT);")
	ml := &mockLedger{entries: []ledger.Entry{appliedEntry(s1)}}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), []migration.Script{s1, s3})

	require.ErrorIs(t, res.Err, ErrMissingMigration)
	assert.Equal(t, StateFailed, res.FinalState)
	assert.Empty(t, ml.recorded)
}

func TestRun_midSequenceFailure_keepsEarlierCommits(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	execErr := errors.New("syntax error")
	r := New(nil, ml)
	r.acquireLock = noopLockFn
	r.applyScript = func(ctx context.Context, s *migration.Script) (time.Duration, error) {
		if s.Version == 3 {
			return time.Millisecond, execErr
		}

		return recordingApplyFn(ml)(ctx, s)
	}

	scripts := []migration.Script{
		testScript(2, "CREATE TABLE b (id INT);"),
		testScript(3, "CREATE TABLE broken (;"),
		testScript(4, "CREATE TABLE d (id INT);"),
	}

	res := r.Run(context.Background(), scripts)

	require.ErrorIs(t, res.Err, ErrExecution)
	require.ErrorIs(t, res.Err, execErr)
	assert.Equal(t, StateFailed, res.FinalState)
	assert.Contains(t, res.Err.Error(), "version 3")
	assert.Equal(t, []int64{2}, res.AppliedVersions, "v2 committed before the failure must be reported")
	assert.Equal(t, []int64{2}, recordedVersions(ml))
}

func TestRun_ledgerWriteConflict_notWrappedAsExecution(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{recordErr: ledger.ErrWriteConflict}
	r := newTestRunner(ml)

	res := r.Run(context.Background(), []migration.Script{testScript(1, "SELECT 1;")})

	require.ErrorIs(t, res.Err, ledger.ErrWriteConflict)
	assert.NotErrorIs(t, res.Err, ErrExecution)
	assert.Equal(t, StateFailed, res.FinalState)
}

// --- Lock release ---

func TestRun_lockReleased_onSuccess(t *testing.T) {
	t.Parallel()

	lock := &mockLock{}
	ml := &mockLedger{}
	r := New(nil, ml)
	r.acquireLock = func(_ context.Context) (lockReleaser, error) { return lock, nil }
	r.applyScript = recordingApplyFn(ml)

	res := r.Run(context.Background(), []migration.Script{testScript(1, "SELECT 1;")})

	require.NoError(t, res.Err)
	assert.True(t, lock.released)
}

func TestRun_lockReleased_onFailure(t *testing.T) {
	t.Parallel()

	lock := &mockLock{}
	ml := &mockLedger{ensureErr: errors.New("boom")}
	r := New(nil, ml)
	r.acquireLock = func(_ context.Context) (lockReleaser, error) { return lock, nil }

	res := r.Run(context.Background(), nil)

	require.Error(t, res.Err)
	assert.True(t, lock.released)
}

// --- Dry run ---

func TestRun_dryRun_reportsPendingWithoutApplying(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}

	var events []ProgressEvent

	r := New(nil, ml,
		WithDryRun(true),
		WithProgressCallback(func(ev ProgressEvent) { events = append(events, ev) }),
	)
	r.acquireLock = noopLockFn
	r.applyScript = recordingApplyFn(ml)

	scripts := []migration.Script{
		testScript(1, "CREATE TABLE a (id INT);"),
		testScript(2, "CREATE TABLE b (id INT);"),
	}

	res := r.Run(context.Background(), scripts)

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.FinalState)
	assert.Empty(t, res.AppliedVersions)
	assert.Empty(t, ml.recorded)

	require.Len(t, events, 2)
	assert.Equal(t, StatusPending, events[0].Status)
	assert.Equal(t, StatusPending, events[1].Status)
}

// --- Progress events ---

func TestRun_progressEvents_successPath(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}

	var events []ProgressEvent

	r := New(nil, ml,
		WithProgressCallback(func(ev ProgressEvent) { events = append(events, ev) }),
	)
	r.acquireLock = noopLockFn
	r.applyScript = recordingApplyFn(ml)

	scripts := []migration.Script{
		testScript(1, "CREATE TABLE a (id INT);"),
		testScript(2, "CREATE TABLE b (id INT);"),
	}

	res := r.Run(context.Background(), scripts)
	require.NoError(t, res.Err)

	// 2 starting + 2 applied = 4 events.
	require.Len(t, events, 4)
	assert.Equal(t, StatusStarting, events[0].Status)
	assert.Equal(t, StatusApplied, events[1].Status)
	assert.Equal(t, StatusStarting, events[2].Status)
	assert.Equal(t, StatusApplied, events[3].Status)
	assert.Equal(t, int64(1), events[0].Script.Version)
	assert.Equal(t, int64(2), events[2].Script.Version)
}

func TestRun_progressEvents_failurePath(t *testing.T) {
	t.Parallel()

	ml := &mockLedger{}
	execErr := errors.New("boom")

	var events []ProgressEvent

	r := New(nil, ml,
		WithProgressCallback(func(ev ProgressEvent) { events = append(events, ev) }),
	)
	r.acquireLock = noopLockFn
	r.applyScript = func(_ context.Context, _ *migration.Script) (time.Duration, error) {
		return 0, execErr
	}

	res := r.Run(context.Background(), []migration.Script{testScript(1, "SELECT 1;")})
	require.Error(t, res.Err)

	require.Len(t, events, 2)
	assert.Equal(t, StatusStarting, events[0].Status)
	assert.Equal(t, StatusFailed, events[1].Status)
	assert.ErrorIs(t, events[1].Error, execErr)
}

func TestFireProgress_nilCallback_noPanic(t *testing.T) {
	t.Parallel()

	r := &Runner{}
	s := testScript(1, "SELECT 1;")

	assert.NotPanics(t, func() {
		r.fireProgress(ProgressEvent{Script: &s, Status: StatusApplied})
	})
}

// --- requiresNonTransactional ---

func TestRequiresNonTransactional(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sql     string
		want    bool
		wantErr bool
	}{
		{
			name: "plain DDL is transactional",
			sql:  "CREATE TABLE t (id INT);",
			want: false,
		},
		{
			name: "concurrent index is not transactional",
			sql:  "CREATE INDEX CONCURRENTLY idx_t_id ON t (id);",
			want: true,
		},
		{
			name: "plain index is transactional",
			sql:  "CREATE INDEX idx_t_id ON t (id);",
			want: false,
		},
		{
			name: "concurrent index among other statements",
			sql:  "CREATE TABLE t (id INT); CREATE INDEX CONCURRENTLY idx_t_id ON t (id);",
			want: true,
		},
		{
			name: "empty input",
			sql:  "",
			want: false,
		},
		{
			name:    "invalid SQL returns error",
			sql:     "CREATE TABLE (;",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt // capture range variable for parallel subtests (go1.21 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := requiresNonTransactional(tt.sql)

			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
