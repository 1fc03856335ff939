// Package persist saves notes to the primary store with validation, a
// local backup snapshot and exponential-backoff retries.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/physio-scribe/internal/config"
	"github.com/raphaelgruber/physio-scribe/internal/metrics"
	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/retry"
	"github.com/raphaelgruber/physio-scribe/internal/seal"
)

// DefaultRetention is how many backups are kept after each snapshot.
const DefaultRetention = 10

var (
	// ErrInvalidNote is reported when a mandatory section is empty.
	ErrInvalidNote = errors.New("invalid note")
	// ErrNoStore is reported when no primary store is configured.
	ErrNoStore = errors.New("no primary note store configured")
)

// NoteStore is the primary store boundary.
type NoteStore interface {
	SaveNote(ctx context.Context, note models.StructuredNote, patientID, sessionID string) (string, error)
	GetAllNotes(ctx context.Context) ([]models.StoredNote, error)
}

// BackupStore is the local backup boundary.
type BackupStore interface {
	Create(ctx context.Context, note models.StructuredNote, patientID, sessionID string) (models.BackupRecord, error)
	List(ctx context.Context) ([]models.BackupRecord, error)
	Delete(ctx context.Context, key string) error
	PruneOldest(ctx context.Context, keep int) (int, error)
}

// SaveOptions controls one Save call.
type SaveOptions struct {
	MaxRetries         int
	RetryDelay         time.Duration
	EnableBackup       bool
	ValidateBeforeSave bool
}

// SaveOption modifies SaveOptions.
type SaveOption func(*SaveOptions)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) SaveOption {
	return func(o *SaveOptions) { o.MaxRetries = n }
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) SaveOption {
	return func(o *SaveOptions) { o.RetryDelay = d }
}

// WithoutBackup skips the local snapshot.
func WithoutBackup() SaveOption {
	return func(o *SaveOptions) { o.EnableBackup = false }
}

// WithoutValidation skips the mandatory-section check.
func WithoutValidation() SaveOption {
	return func(o *SaveOptions) { o.ValidateBeforeSave = false }
}

// Manager coordinates the primary store and the backup store.
type Manager struct {
	store     NoteStore
	backups   BackupStore
	logger    *slog.Logger
	collector *metrics.Collector
	sleep     retry.Sleeper
	retention int
	defaults  SaveOptions

	// requireSealed makes the audit flag notes stored without ciphertext.
	requireSealed bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s retry.Sleeper) ManagerOption {
	return func(m *Manager) { m.sleep = s }
}

// WithRetention sets how many backups survive pruning.
func WithRetention(n int) ManagerOption {
	return func(m *Manager) { m.retention = n }
}

// WithCollector records persist timings and counters.
func WithCollector(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.collector = c }
}

// WithEncryptionRequired makes AuditIntegrity report notes that carry no
// encrypted payload. Set it when an encryption key is configured.
func WithEncryptionRequired(required bool) ManagerOption {
	return func(m *Manager) { m.requireSealed = required }
}

// WithDefaults sets the retry defaults applied before per-call options.
func WithDefaults(maxRetries int, delay time.Duration) ManagerOption {
	return func(m *Manager) {
		m.defaults.MaxRetries = maxRetries
		m.defaults.RetryDelay = delay
	}
}

// NewManager creates a Manager. backups may be nil to disable snapshots.
func NewManager(store NoteStore, backups BackupStore, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		backups:   backups,
		logger:    config.Component(logger, "persist"),
		sleep:     retry.Sleep,
		retention: DefaultRetention,
		defaults: SaveOptions{
			MaxRetries:         3,
			RetryDelay:         time.Second,
			EnableBackup:       true,
			ValidateBeforeSave: true,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save validates, snapshots and writes a note. Failures are reported in
// the result, never as a panic or error return.
func (m *Manager) Save(ctx context.Context, note models.StructuredNote, patientID, sessionID string, opts ...SaveOption) models.PersistenceResult {
	o := m.defaults
	for _, opt := range opts {
		opt(&o)
	}
	defer m.collector.Timer(metrics.OpPersist)()

	res := m.save(ctx, note, patientID, sessionID, o)
	if !res.Success {
		m.collector.Inc(metrics.CounterSaveFailures)
	}
	return res
}

func (m *Manager) save(ctx context.Context, note models.StructuredNote, patientID, sessionID string, o SaveOptions) models.PersistenceResult {
	if o.ValidateBeforeSave {
		if missing := note.MissingMandatory(); len(missing) > 0 {
			err := fmt.Errorf("%w: empty mandatory sections: %s", ErrInvalidNote, strings.Join(missing, ", "))
			m.logger.Warn("note rejected before save", "session_id", sessionID, "missing", missing)
			return models.PersistenceResult{Error: err.Error()}
		}
	}
	if m.store == nil {
		return models.PersistenceResult{Error: ErrNoStore.Error()}
	}

	backupKey := ""
	if o.EnableBackup && m.backups != nil {
		backupKey = m.snapshot(ctx, note, patientID, sessionID)
	}

	var noteID string
	policy := retry.Policy{MaxRetries: o.MaxRetries, BaseDelay: o.RetryDelay}
	out := retry.Do(ctx, policy, m.sleep, func(attempt int) error {
		id, err := m.store.SaveNote(ctx, note, patientID, sessionID)
		if err != nil {
			m.logger.Warn("save attempt failed", "session_id", sessionID, "attempt", attempt+1,
				"max_attempts", o.MaxRetries+1, "error", err)
			return err
		}
		noteID = id
		return nil
	})

	if out.Succeeded {
		if backupKey != "" {
			if err := m.backups.Delete(ctx, backupKey); err != nil {
				m.logger.Warn("failed to delete backup after save", "backup_key", backupKey, "error", err)
			}
		}
		m.logger.Info("note saved", "note_id", noteID, "session_id", sessionID, "retries", out.Retries)
		return models.PersistenceResult{Success: true, NoteID: noteID, Retries: out.Retries}
	}

	msg := "save failed"
	if out.LastErr != nil {
		msg = out.LastErr.Error()
	}
	m.logger.Error("note save exhausted retries", "session_id", sessionID, "attempts", out.Attempts,
		"backup_key", backupKey, "error", msg)
	return models.PersistenceResult{
		Error:      msg,
		Retries:    out.Retries,
		UsedBackup: backupKey != "",
	}
}

// snapshot writes a backup and prunes old ones. It returns the new key,
// or "" when the snapshot could not be written.
func (m *Manager) snapshot(ctx context.Context, note models.StructuredNote, patientID, sessionID string) string {
	rec, err := m.backups.Create(ctx, note, patientID, sessionID)
	if err != nil {
		m.logger.Warn("backup snapshot failed, saving without backup", "session_id", sessionID, "error", err)
		return ""
	}
	m.collector.Inc(metrics.CounterBackupsWritten)

	removed, err := m.backups.PruneOldest(ctx, m.retention)
	if err != nil {
		m.logger.Warn("backup prune failed", "error", err)
	} else if removed > 0 {
		m.logger.Info("pruned old backups", "removed", removed, "retention", m.retention)
	}
	return rec.Key
}

// GetPendingBackups lists backups awaiting a successful save, oldest first.
func (m *Manager) GetPendingBackups(ctx context.Context) ([]models.BackupRecord, error) {
	if m.backups == nil {
		return []models.BackupRecord{}, nil
	}
	return m.backups.List(ctx)
}

// RestoreRecord is the outcome for one backup during restoration.
type RestoreRecord struct {
	Key       string                   `json:"key"`
	PatientID string                   `json:"patient_id"`
	SessionID string                   `json:"session_id"`
	Result    models.PersistenceResult `json:"result"`
}

// RestoreSummary aggregates a RestoreAllBackups run.
type RestoreSummary struct {
	Total    int             `json:"total"`
	Restored int             `json:"restored"`
	Failed   int             `json:"failed"`
	Results  []RestoreRecord `json:"results"`
}

// RestoreProgress is called after each backup is processed.
type RestoreProgress func(done, total int, rec RestoreRecord)

// RestoreAllBackups retries every pending backup once without creating new
// snapshots and deletes each backup that saves successfully.
func (m *Manager) RestoreAllBackups(ctx context.Context, progress RestoreProgress) (RestoreSummary, error) {
	summary := RestoreSummary{Results: []RestoreRecord{}}
	records, err := m.GetPendingBackups(ctx)
	if err != nil {
		return summary, fmt.Errorf("list backups: %w", err)
	}
	summary.Total = len(records)

	o := m.defaults
	o.MaxRetries = 1
	o.EnableBackup = false

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			m.logger.Warn("backup restoration interrupted", "processed", i, "total", summary.Total)
			return summary, fmt.Errorf("restore interrupted: %w", err)
		}
		res := m.save(ctx, rec.SOAPData, rec.PatientID, rec.SessionID, o)
		if res.Success {
			if err := m.backups.Delete(ctx, rec.Key); err != nil {
				m.logger.Warn("restored note but failed to delete backup", "backup_key", rec.Key, "error", err)
			}
			summary.Restored++
		} else {
			res.UsedBackup = true
			summary.Failed++
		}

		entry := RestoreRecord{Key: rec.Key, PatientID: rec.PatientID, SessionID: rec.SessionID, Result: res}
		summary.Results = append(summary.Results, entry)
		if progress != nil {
			progress(i+1, summary.Total, entry)
		}
	}

	m.logger.Info("backup restoration finished", "total", summary.Total,
		"restored", summary.Restored, "failed", summary.Failed)
	return summary, nil
}

// IntegrityIssue is one problem found by AuditIntegrity.
type IntegrityIssue struct {
	NoteID string `json:"note_id"`
	Issue  string `json:"issue"`
}

// unknownNoteID labels issues for records without a usable ID.
const unknownNoteID = "unknown"

// AuditIntegrity checks every persisted note without modifying anything.
func (m *Manager) AuditIntegrity(ctx context.Context) ([]IntegrityIssue, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	notes, err := m.store.GetAllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}

	issues := []IntegrityIssue{}
	for _, n := range notes {
		issues = append(issues, auditNote(n, m.requireSealed)...)
	}
	m.logger.Info("integrity audit finished", "notes", len(notes), "issues", len(issues),
		"encryption_required", m.requireSealed)
	return issues, nil
}

func auditNote(n models.StoredNote, requireSealed bool) []IntegrityIssue {
	id := n.NoteID()
	var issues []IntegrityIssue
	add := func(format string, args ...any) {
		label := id
		if label == "" {
			label = unknownNoteID
		}
		issues = append(issues, IntegrityIssue{NoteID: label, Issue: fmt.Sprintf(format, args...)})
	}

	if id == "" {
		add("missing note identifier")
	}
	if n.SOAP == nil {
		add("missing note payload")
	} else {
		for _, name := range n.SOAP.MissingMandatory() {
			add("mandatory section %s is empty", name)
		}
	}
	if requireSealed && !seal.IsSealed(n.EncryptedPayload) {
		add("missing encrypted payload")
	}
	if n.Created.IsZero() {
		add("missing creation timestamp")
	}
	return issues
}
