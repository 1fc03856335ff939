// Package app wires configuration into the scribe components shared by the
// CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/physio-scribe/internal/backup"
	"github.com/raphaelgruber/physio-scribe/internal/config"
	"github.com/raphaelgruber/physio-scribe/internal/db"
	"github.com/raphaelgruber/physio-scribe/internal/llm"
	"github.com/raphaelgruber/physio-scribe/internal/metrics"
	"github.com/raphaelgruber/physio-scribe/internal/notegen"
	"github.com/raphaelgruber/physio-scribe/internal/persist"
	"github.com/raphaelgruber/physio-scribe/internal/pipeline"
	"github.com/raphaelgruber/physio-scribe/internal/redact"
	"github.com/raphaelgruber/physio-scribe/internal/router"
	"github.com/raphaelgruber/physio-scribe/internal/seal"
	"github.com/raphaelgruber/physio-scribe/internal/validate"
	"github.com/raphaelgruber/physio-scribe/internal/vocab"
)

// Options select which external dependencies are opened.
type Options struct {
	// ConnectDB connects to SurrealDB for persistence and audits.
	ConnectDB bool
	// Completion builds the completion-service tiers and the pipeline.
	Completion bool
	// Backups opens the local backup store. Without it saves are not
	// snapshotted and there are no pending backups to list or restore.
	Backups bool
}

// App holds every wired component. Fields for dependencies that were not
// requested are nil.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Vocabulary *vocab.Vocabulary
	Redactor   *redact.Redactor
	Classifier *router.Classifier
	Validator  *validate.Validator
	Collector  *metrics.Collector
	Sealer     *seal.Sealer
	Backups    *backup.Store
	DB         *db.Client
	Manager    *persist.Manager
	Pipeline   *pipeline.Pipeline
}

// New builds the components requested by opts. Partially opened resources
// are closed on error.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Collector: metrics.NewCollector()}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	a.Vocabulary, err = vocab.Load(cfg.VocabularyFile, vocab.WithDefaultSpecialty(cfg.DefaultSpecialty))
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	logger.Info("vocabulary loaded", "version", a.Vocabulary.Version, "default_specialty", a.Vocabulary.DefaultSpecialty)

	a.Redactor = redact.Default()
	a.Classifier = router.New(a.Vocabulary, router.TierTableFromConfig(cfg), logger)
	a.Validator = validate.New(a.Vocabulary)

	var backupOpts []backup.Option
	if cfg.EncryptionKey != "" {
		a.Sealer, err = seal.New(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		backupOpts = append(backupOpts, backup.WithSealer(a.Sealer))
	} else {
		logger.Warn("SCRIBE_ENCRYPTION_KEY is not set, notes and backups are stored unencrypted")
	}

	var backups persist.BackupStore
	if opts.Backups {
		backupOpts = append(backupOpts, backup.WithLogger(config.Component(logger, "backup")))
		a.Backups, err = backup.Open(cfg.BackupPath, backupOpts...)
		if err != nil {
			return nil, err
		}
		backups = a.Backups
	}

	var store persist.NoteStore
	if opts.ConnectDB {
		var dbOpts []db.ClientOption
		if a.Sealer != nil {
			dbOpts = append(dbOpts, db.WithSealer(a.Sealer))
		}
		a.DB, err = db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger, dbOpts...)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err = a.DB.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		store = a.DB
	}

	a.Manager = persist.NewManager(store, backups, logger,
		persist.WithRetention(cfg.BackupRetention),
		persist.WithDefaults(cfg.SaveMaxRetries, cfg.SaveRetryDelay),
		persist.WithCollector(a.Collector),
		persist.WithEncryptionRequired(a.Sealer != nil),
	)

	if opts.Completion {
		tiers, terr := llm.NewTiers(ctx, cfg, logger)
		if terr != nil {
			return nil, fmt.Errorf("init completion tiers: %w", terr)
		}
		a.Pipeline = pipeline.New(pipeline.Deps{
			Redactor:           a.Redactor,
			Classifier:         a.Classifier,
			Generator:          notegen.New(tiers, logger, a.Collector),
			Validator:          a.Validator,
			Persister:          a.Manager,
			Collector:          a.Collector,
			Logger:             logger,
			MaxTranscriptChars: cfg.MaxTranscriptChars,
		})
	}

	return a, nil
}

// Close releases the database connection and the backup file.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close(ctx))
		a.DB = nil
	}
	if a.Backups != nil {
		errs = append(errs, a.Backups.Close())
		a.Backups = nil
	}
	return errors.Join(errs...)
}
