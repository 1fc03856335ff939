package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/physio-scribe/internal/backup"
	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/persist"
)

// setupEnv points the config at a temp backup file and log file.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "backups.db")
	t.Setenv("SCRIBE_BACKUP_PATH", backupPath)
	t.Setenv("SCRIBE_LOG_FILE", filepath.Join(dir, "scribe.log"))
	t.Setenv("SCRIBE_ENCRYPTION_KEY", "")
	t.Setenv("SCRIBE_VOCAB_FILE", "")
	return backupPath
}

// run executes the root command with args and stdin, resetting global flags.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	verbose, jsonOutput, redactAudit, restorePlain = false, false, false, false
	classifySpecialty = ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		closeApp()
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRedactCommand(t *testing.T) {
	setupEnv(t)

	transcript := "Patient name: Maria Lopez, phone 416-555-0123. Pain at L4-L5, 90/60 supine."
	stdout, stderr, err := run(t, transcript, "redact")
	require.NoError(t, err)

	assert.NotContains(t, stdout, "Maria Lopez")
	assert.NotContains(t, stdout, "416-555-0123")
	assert.Contains(t, stdout, "[NAME_1]")
	assert.Contains(t, stdout, "[PHONE_1]")
	assert.Contains(t, stdout, "L4-L5")
	assert.Contains(t, stdout, "90/60")
	assert.Contains(t, stderr, "2 identifiers redacted")
}

func TestRedactCommandJSONNeverIncludesMap(t *testing.T) {
	setupEnv(t)

	stdout, _, err := run(t, "Contact: jane.doe@example.com", "redact", "--json", "--audit")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "jane.doe@example.com")

	var out redactOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 1, out.RemovedCount)
	assert.Contains(t, out.DeidentifiedText, "[EMAIL_1]")
	assert.Empty(t, out.Remaining)
}

func TestClassifyCommand(t *testing.T) {
	setupEnv(t)

	stdout, _, err := run(t,
		"Patient reports saddle anaesthesia and new bladder retention since yesterday.",
		"classify", "--json")
	require.NoError(t, err)

	var out classifyOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, models.UrgencyHigh, out.Analysis.Urgency)
	assert.Len(t, out.Analysis.RedFlags, 2)
	assert.Equal(t, models.TierAdvanced, out.Selection.ModelTier)
	assert.Positive(t, out.EstimatedTokens)
}

func TestClassifyCommandRejectsEmptyInput(t *testing.T) {
	setupEnv(t)
	_, _, err := run(t, "   \n", "classify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestBackupsListCommand(t *testing.T) {
	backupPath := setupEnv(t)

	t.Run("empty", func(t *testing.T) {
		stdout, _, err := run(t, "", "backups", "list")
		require.NoError(t, err)
		assert.Contains(t, stdout, "No pending backups.")
	})

	t.Run("pending", func(t *testing.T) {
		store, err := backup.Open(backupPath)
		require.NoError(t, err)
		rec, err := store.Create(context.Background(), models.StructuredNote{
			Subjective: "s", Objective: "o", Assessment: "a", Plan: "p",
		}, "patient-7", "session-2")
		require.NoError(t, err)
		require.NoError(t, store.Close())

		stdout, _, err := run(t, "", "backups", "list")
		require.NoError(t, err)
		assert.Contains(t, stdout, rec.Key)
		assert.Contains(t, stdout, "patient-7")
		assert.Contains(t, stdout, "1 pending")

		stdout, _, err = run(t, "", "backups", "list", "--json")
		require.NoError(t, err)
		var records []models.BackupRecord
		require.NoError(t, json.Unmarshal([]byte(stdout), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "session-2", records[0].SessionID)
	})
}

func TestNoteCommandPersistNeedsIdentifiers(t *testing.T) {
	notePersist, notePatient, noteSession = true, "", ""
	t.Cleanup(func() { notePersist = false })

	// The check runs before the pipeline is touched.
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("Knee pain for two weeks."))
	err := runNote(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--patient and --session")
}

func TestNeeds(t *testing.T) {
	assert.True(t, needs(noteCmd, needsCompletion))
	assert.False(t, needs(noteCmd, needsDB))
	assert.True(t, needs(auditCmd, needsDB))
	assert.True(t, needs(backupsRestoreCmd, needsDB))
	assert.False(t, needs(backupsListCmd, needsDB))
	assert.False(t, needs(redactCmd, needsDB))
}

func TestNeedsBackups(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		want bool
	}{
		{name: "note", cmd: noteCmd, want: true},
		{name: "backups list", cmd: backupsListCmd, want: true},
		{name: "backups restore", cmd: backupsRestoreCmd, want: true},
		{name: "redact", cmd: redactCmd, want: false},
		{name: "classify", cmd: classifyCmd, want: false},
		{name: "audit", cmd: auditCmd, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needs(tt.cmd, needsBackups))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestPrintNoteSkipsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	printNote(&buf, models.StructuredNote{Subjective: "S", Objective: "O", Assessment: "A", Plan: "P", FollowUp: "2 weeks"})
	out := buf.String()
	assert.Contains(t, out, "## Subjective\nS")
	assert.Contains(t, out, "## Follow-up\n2 weeks")
	assert.NotContains(t, out, "Precautions")
}

type fakeRestorer struct {
	summary persist.RestoreSummary
	err     error
}

func (f fakeRestorer) RestoreAllBackups(_ context.Context, progress persist.RestoreProgress) (persist.RestoreSummary, error) {
	for i, r := range f.summary.Results {
		progress(i+1, f.summary.Total, r)
	}
	return f.summary, f.err
}

func TestRestoreModel(t *testing.T) {
	summary := persist.RestoreSummary{
		Total: 2, Restored: 1, Failed: 1,
		Results: []persist.RestoreRecord{
			{Key: "backup_1_aaaa", Result: models.PersistenceResult{Success: true, NoteID: "n1"}},
			{Key: "backup_2_bbbb", Result: models.PersistenceResult{Error: "store unavailable"}},
		},
	}
	events := startRestore(context.Background(), fakeRestorer{summary: summary})

	m := newRestoreModel(events, func() {})
	for msg := range events {
		next, _ := m.Update(msg)
		m = next.(restoreModel)
		if step, ok := msg.(restoreStepMsg); ok && step.done == 1 {
			content := m.renderContent()
			assert.Contains(t, content, "1/2 backups")
			assert.Contains(t, content, "backup_1_aaaa")
		}
	}

	final := m
	assert.True(t, final.finished)
	require.NoError(t, final.err)
	out := final.renderContent()
	assert.Contains(t, out, "Restored: 1")
	assert.Contains(t, out, "backup_2_bbbb: store unavailable")
}

func TestRestoreModelError(t *testing.T) {
	events := startRestore(context.Background(), fakeRestorer{err: errors.New("list backups: disk gone")})

	m := newRestoreModel(events, func() {})
	for msg := range events {
		next, _ := m.Update(msg)
		m = next.(restoreModel)
	}
	assert.ErrorContains(t, m.err, "disk gone")
	assert.Contains(t, m.renderContent(), "Restore failed")
}
