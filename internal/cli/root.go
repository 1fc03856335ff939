// Package cli provides the scribe command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/physio-scribe/internal/app"
	"github.com/raphaelgruber/physio-scribe/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	jsonOutput bool

	// Wired per invocation in PersistentPreRunE.
	cfg        config.Config
	scribe     *app.App
	logCleanup func() error
)

// Command annotations declaring which external services a command needs.
const (
	needsKey        = "needs"
	needsDB         = "db"
	needsCompletion = "completion"
	needsBackups    = "backups"
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Turn physiotherapy session transcripts into SOAP notes",
	Long: `Scribe turns a session transcript into a structured SOAP note.

Identifiers are redacted before the transcript is sent to the completion
service and restored in the final note. Notes are validated, saved to
SurrealDB with retries, and backed up locally until the save succeeds.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		level, stderrLevel := cfg.LogLevel, slog.LevelWarn
		if verbose {
			level, stderrLevel = slog.LevelDebug, slog.LevelDebug
		}
		var logger *slog.Logger
		logger, logCleanup = config.SetupSplitLogger(cfg.LogFile, level, stderrLevel)

		var err error
		scribe, err = app.New(cmd.Context(), cfg, logger, app.Options{
			ConnectDB:  needs(cmd, needsDB) || (cmd == noteCmd && notePersist),
			Completion: needs(cmd, needsCompletion),
			Backups:    needs(cmd, needsBackups),
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeApp()
	},
}

// Execute runs the root command. Resources are released even when the
// command fails, since cobra skips PersistentPostRun on error.
func Execute(ctx context.Context) error {
	defer closeApp()
	return rootCmd.ExecuteContext(ctx)
}

func closeApp() {
	if scribe != nil {
		if err := scribe.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close resources: %v\n", err)
		}
		scribe = nil
	}
	if logCleanup != nil {
		_ = logCleanup()
		logCleanup = nil
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(redactCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(auditCmd)
}

func needs(cmd *cobra.Command, what string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		for _, n := range strings.Split(c.Annotations[needsKey], ",") {
			if n == what {
				return true
			}
		}
	}
	return false
}

// readInput reads the transcript from the file argument, or stdin when it
// is absent or "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}
