// Package backup is the durable local backup store for notes awaiting a
// successful save to the primary store. It behaves like a bounded
// write-ahead log: records are appended, listed, deleted once saved, and
// evicted oldest first.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/seal"
)

var bucketBackups = []byte("backups")

// lockTimeout bounds how long an operation waits for another process
// holding the file lock.
const lockTimeout = 5 * time.Second

var (
	// ErrNotFound is returned by Get for an unknown key.
	ErrNotFound = errors.New("backup not found")
	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("backup store is closed")
)

// Store is a bbolt-backed key to JSON blob store. Safe for concurrent use.
//
// The database file is opened for the duration of each operation only, so
// several processes (the CLI and a running MCP server) can share one file.
// Reads take a shared lock, writes an exclusive one.
type Store struct {
	path   string
	sealer *seal.Sealer
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts every stored blob.
func WithSealer(s *seal.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// WithClock overrides the timestamp source used by Create.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithLogger sets the logger used to report unreadable records.
func WithLogger(l *slog.Logger) Option {
	return func(st *Store) {
		if l != nil {
			st.logger = l
		}
	}
}

// Open creates the backup database at path if needed and returns a Store
// for it. No file lock is held between operations.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
	}

	s := &Store{path: path, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	err := s.update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBackups)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create backup bucket: %w", err)
	}
	return s, nil
}

// view runs fn in a read-only transaction under a shared file lock.
func (s *Store) view(fn func(*bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.withDB(true, func(db *bbolt.DB) error { return db.View(fn) })
}

// update runs fn in a read-write transaction under an exclusive file lock.
func (s *Store) update(fn func(*bbolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withDB(false, func(db *bbolt.DB) error { return db.Update(fn) })
}

func (s *Store) withDB(readOnly bool, fn func(*bbolt.DB) error) (err error) {
	if s.closed {
		return ErrClosed
	}
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: lockTimeout, ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("open backup db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close backup db: %w", cerr)
		}
	}()
	return fn(db)
}

// NewKey returns a unique backup key of the form backup_<unixnanos>_<uuid8>.
func NewKey(ts time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("backup_%d_%s", ts.UnixNano(), id[:8])
}

// Create snapshots a note under a fresh key and returns the stored record.
func (s *Store) Create(ctx context.Context, note models.StructuredNote, patientID, sessionID string) (models.BackupRecord, error) {
	ts := s.now().UTC()
	rec := models.BackupRecord{
		Key:       NewKey(ts),
		SOAPData:  note,
		PatientID: patientID,
		SessionID: sessionID,
		Timestamp: ts,
	}
	if err := s.Put(ctx, rec); err != nil {
		return models.BackupRecord{}, err
	}
	return rec, nil
}

// Put writes rec under rec.Key, replacing any existing record.
func (s *Store) Put(ctx context.Context, rec models.BackupRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Key == "" {
		return errors.New("backup key is empty")
	}

	data, err := s.encode(rec)
	if err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBackups).Put([]byte(rec.Key), data)
	})
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (models.BackupRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.BackupRecord{}, err
	}

	var rec models.BackupRecord
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBackups).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		var err error
		rec, err = s.decode(data)
		return err
	})
	return rec, err
}

// List returns every readable record, oldest first. Records that cannot
// be decoded are logged and skipped; see Unreadable.
func (s *Store) List(ctx context.Context) ([]models.BackupRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []models.BackupRecord
	err := s.view(func(tx *bbolt.Tx) error {
		var err error
		records, _, err = s.scan(tx.Bucket(bucketBackups))
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Unreadable returns the keys of records that cannot be decoded, for
// example because they were written with a different encryption key.
func (s *Store) Unreadable(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bad []string
	err := s.view(func(tx *bbolt.Tx) error {
		var err error
		_, bad, err = s.scan(tx.Bucket(bucketBackups))
		return err
	})
	return bad, err
}

// scan decodes every record in b. Readable records are returned oldest
// first, the keys of the rest in key order.
func (s *Store) scan(b *bbolt.Bucket) ([]models.BackupRecord, []string, error) {
	records := []models.BackupRecord{}
	var bad []string
	err := b.ForEach(func(k, v []byte) error {
		rec, err := s.decode(v)
		if err != nil {
			s.logger.Warn("skipping unreadable backup", "backup_key", string(k), "error", err)
			bad = append(bad, string(k))
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sortOldestFirst(records)
	return records, bad, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBackups).Delete([]byte(key))
	})
}

// PruneOldest keeps the newest keep readable records and deletes the rest.
// Unreadable records are never evicted, since they may be the only copy of
// a note that a different key can still recover.
func (s *Store) PruneOldest(ctx context.Context, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}

	removed := 0
	err := s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBackups)
		records, _, err := s.scan(b)
		if err != nil {
			return err
		}
		if len(records) <= keep {
			return nil
		}
		for _, rec := range records[:len(records)-keep] {
			if err := b.Delete([]byte(rec.Key)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune backups: %w", err)
	}
	return removed, nil
}

// Close marks the store closed. Later operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) encode(rec models.BackupRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}
	if s.sealer == nil {
		return data, nil
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("seal backup: %w", err)
	}
	return []byte(sealed), nil
}

func (s *Store) decode(data []byte) (models.BackupRecord, error) {
	if seal.IsSealed(string(data)) {
		if s.sealer == nil {
			return models.BackupRecord{}, errors.New("backup is encrypted but no key is configured")
		}
		plain, err := s.sealer.Open(string(data))
		if err != nil {
			return models.BackupRecord{}, err
		}
		data = plain
	}

	var rec models.BackupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.BackupRecord{}, err
	}
	return rec, nil
}

func sortOldestFirst(records []models.BackupRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].Key < records[j].Key
	})
}
