package persist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/physio-scribe/internal/backup"
	"github.com/raphaelgruber/physio-scribe/internal/metrics"
	"github.com/raphaelgruber/physio-scribe/internal/models"
)

// fakeStore fails the first failN calls to SaveNote.
type fakeStore struct {
	mu     sync.Mutex
	failN  int
	calls  int
	saved  []models.StructuredNote
	notes  []models.StoredNote
	getErr error
}

func (f *fakeStore) SaveNote(_ context.Context, note models.StructuredNote, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return "", fmt.Errorf("store unavailable (call %d)", f.calls)
	}
	f.saved = append(f.saved, note)
	return fmt.Sprintf("note-%d", len(f.saved)), nil
}

func (f *fakeStore) GetAllNotes(context.Context) ([]models.StoredNote, error) {
	return f.notes, f.getErr
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func validNote() models.StructuredNote {
	return models.StructuredNote{
		Subjective: "Neck pain after long drive.",
		Objective:  "Cervical rotation reduced 20 degrees right.",
		Assessment: "Mechanical neck pain.",
		Plan:       "Chin tucks, posture advice.",
	}
}

func newTestManager(t *testing.T, store NoteStore, opts ...ManagerOption) (*Manager, *backup.Store, *recordedSleeps) {
	t.Helper()
	b, err := backup.Open(filepath.Join(t.TempDir(), "backups.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	sleeps := &recordedSleeps{}
	opts = append([]ManagerOption{WithSleeper(sleeps.sleep)}, opts...)
	return NewManager(store, b, nil, opts...), b, sleeps
}

func TestSaveRejectsEmptyPlan(t *testing.T) {
	store := &fakeStore{}
	m, b, sleeps := newTestManager(t, store)

	note := validNote()
	note.Plan = "  "
	res := m.Save(context.Background(), note, "p", "s")

	assert.False(t, res.Success)
	assert.Zero(t, res.Retries)
	assert.False(t, res.UsedBackup)
	assert.Contains(t, res.Error, ErrInvalidNote.Error())
	assert.Contains(t, res.Error, "plan")
	assert.Zero(t, store.calls)
	assert.Empty(t, sleeps.delays)

	pending, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSaveWithoutValidationAcceptsEmptyPlan(t *testing.T) {
	store := &fakeStore{}
	m, _, _ := newTestManager(t, store)

	note := validNote()
	note.Plan = ""
	res := m.Save(context.Background(), note, "p", "s", WithoutValidation())
	assert.True(t, res.Success)
}

func TestSaveFirstAttempt(t *testing.T) {
	store := &fakeStore{}
	collector := metrics.NewCollector()
	m, _, sleeps := newTestManager(t, store, WithCollector(collector))

	res := m.Save(context.Background(), validNote(), "p", "s")
	assert.True(t, res.Success)
	assert.Equal(t, "note-1", res.NoteID)
	assert.Zero(t, res.Retries)
	assert.False(t, res.UsedBackup)
	assert.Empty(t, sleeps.delays)

	pending, err := m.GetPendingBackups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.Counters[metrics.CounterBackupsWritten])
	require.NotNil(t, snap.Persist)
}

func TestSaveSucceedsOnSecondAttempt(t *testing.T) {
	store := &fakeStore{failN: 1}
	m, _, sleeps := newTestManager(t, store)

	res := m.Save(context.Background(), validNote(), "p", "s", WithRetryDelay(100*time.Millisecond))
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Retries)
	assert.False(t, res.UsedBackup)
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, sleeps.delays)

	pending, err := m.GetPendingBackups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSaveExhaustsRetries(t *testing.T) {
	store := &fakeStore{failN: 100}
	collector := metrics.NewCollector()
	m, _, sleeps := newTestManager(t, store, WithCollector(collector))

	res := m.Save(context.Background(), validNote(), "patient-9", "session-9",
		WithMaxRetries(3), WithRetryDelay(time.Second))

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Retries)
	assert.True(t, res.UsedBackup)
	assert.Contains(t, res.Error, "call 4")
	assert.Equal(t, 4, store.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps.delays)
	assert.Equal(t, int64(1), collector.Snapshot().Counters[metrics.CounterSaveFailures])

	pending, err := m.GetPendingBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "patient-9", pending[0].PatientID)
	assert.Equal(t, "session-9", pending[0].SessionID)
	assert.Equal(t, validNote(), pending[0].SOAPData)
}

func TestSaveWithoutBackup(t *testing.T) {
	store := &fakeStore{failN: 100}
	m, _, _ := newTestManager(t, store)

	res := m.Save(context.Background(), validNote(), "p", "s", WithoutBackup(), WithMaxRetries(0))
	assert.False(t, res.Success)
	assert.False(t, res.UsedBackup)
	assert.Zero(t, res.Retries)

	pending, err := m.GetPendingBackups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSaveRetentionPrunesOldest(t *testing.T) {
	store := &fakeStore{failN: 100}
	m, _, _ := newTestManager(t, store, WithRetention(2))

	for i := 0; i < 4; i++ {
		note := validNote()
		note.Plan = fmt.Sprintf("plan %d", i)
		m.Save(context.Background(), note, "p", fmt.Sprintf("s%d", i), WithMaxRetries(0))
	}

	pending, err := m.GetPendingBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "s2", pending[0].SessionID)
	assert.Equal(t, "s3", pending[1].SessionID)
}

func TestSaveCancelledKeepsBackup(t *testing.T) {
	store := &fakeStore{failN: 100}
	b, err := backup.Open(filepath.Join(t.TempDir(), "backups.db"))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	m := NewManager(store, b, nil, WithSleeper(sleeper))

	res := m.Save(ctx, validNote(), "p", "s")
	assert.False(t, res.Success)
	assert.True(t, res.UsedBackup)
	assert.Equal(t, 1, store.calls)

	pending, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSaveWithoutStore(t *testing.T) {
	m := NewManager(nil, nil, nil)
	res := m.Save(context.Background(), validNote(), "p", "s")
	assert.False(t, res.Success)
	assert.Equal(t, ErrNoStore.Error(), res.Error)
}

func TestRestoreAllBackups(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{failN: 100}
	m, b, _ := newTestManager(t, store)

	for i := 0; i < 3; i++ {
		m.Save(ctx, validNote(), "p", fmt.Sprintf("s%d", i), WithMaxRetries(0))
	}
	require.Equal(t, 3, store.calls)

	// Store recovers except for one more failing call pair.
	store.mu.Lock()
	store.failN = store.calls + 2
	store.mu.Unlock()

	var progress []int
	summary, err := m.RestoreAllBackups(ctx, func(done, total int, _ RestoreRecord) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Restored)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []int{1, 2, 3}, progress)
	require.Len(t, summary.Results, 3)
	assert.False(t, summary.Results[0].Result.Success)
	assert.Equal(t, 1, summary.Results[0].Result.Retries)
	assert.True(t, summary.Results[0].Result.UsedBackup)
	assert.True(t, summary.Results[1].Result.Success)

	pending, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "s0", pending[0].SessionID)
}

func TestRestoreAllBackupsEmpty(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeStore{})
	summary, err := m.RestoreAllBackups(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.NotNil(t, summary.Results)
}

func TestAuditIntegrity(t *testing.T) {
	created := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	good := validNote()
	missingPlan := validNote()
	missingPlan.Plan = ""

	notes := []models.StoredNote{
		{ID: surrealmodels.RecordID{Table: "clinical_note", ID: "ok"}, SOAP: &good, EncryptedPayload: "enc:v1:abc", Created: created},
		{ID: surrealmodels.RecordID{Table: "clinical_note", ID: "clear"}, SOAP: &good, Created: created},
		{ID: surrealmodels.RecordID{Table: "clinical_note", ID: "plain"}, SOAP: &missingPlan, Created: created},
		{ID: surrealmodels.RecordID{Table: "clinical_note", ID: 42}, EncryptedPayload: "enc:v1:abc"},
	}

	tests := []struct {
		name string
		opts []ManagerOption
		want []IntegrityIssue
	}{
		{
			name: "without encryption key",
			want: []IntegrityIssue{
				{NoteID: "plain", Issue: "mandatory section plan is empty"},
				{NoteID: "unknown", Issue: "missing note identifier"},
				{NoteID: "unknown", Issue: "missing note payload"},
				{NoteID: "unknown", Issue: "missing creation timestamp"},
			},
		},
		{
			name: "with encryption required",
			opts: []ManagerOption{WithEncryptionRequired(true)},
			want: []IntegrityIssue{
				{NoteID: "clear", Issue: "missing encrypted payload"},
				{NoteID: "plain", Issue: "mandatory section plan is empty"},
				{NoteID: "plain", Issue: "missing encrypted payload"},
				{NoteID: "unknown", Issue: "missing note identifier"},
				{NoteID: "unknown", Issue: "missing note payload"},
				{NoteID: "unknown", Issue: "missing creation timestamp"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{notes: notes}
			m := NewManager(store, nil, nil, tt.opts...)

			issues, err := m.AuditIntegrity(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, issues)

			// Read-only.
			assert.Zero(t, store.calls)
		})
	}
}

func TestAuditIntegrityStoreError(t *testing.T) {
	m := NewManager(&fakeStore{getErr: errors.New("down")}, nil, nil)
	_, err := m.AuditIntegrity(context.Background())
	assert.ErrorContains(t, err, "down")
}

func TestRestoreAllBackupsStopsOnCancel(t *testing.T) {
	store := &fakeStore{failN: 3}
	m, b, _ := newTestManager(t, store)

	for i := 0; i < 3; i++ {
		m.Save(context.Background(), validNote(), "p", fmt.Sprintf("s%d", i), WithMaxRetries(0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	summary, err := m.RestoreAllBackups(ctx, func(done, _ int, _ RestoreRecord) {
		if done == 1 {
			cancel()
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Restored)
	require.Len(t, summary.Results, 1)

	pending, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
