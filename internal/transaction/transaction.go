package transaction

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"CatalogTx/internal/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Status int

const (
	Idle Status = iota
	Active
	Committed
	RolledBack
)

// DefaultBackupDir is used when a store is created with an empty backup directory.
const DefaultBackupDir = ".transaction_backup"

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Transaction is one all-or-nothing group of file mutations. It is created by
// Store.Begin and driven through the Store; a finished Transaction is never reused.
type Transaction struct {
	ID        string
	StartedAt time.Time

	mu      sync.RWMutex
	status  Status
	touched map[string]string // original path → backup artifact
	created map[string]struct{}
	names   map[string]struct{} // artifact names in use
}

func newTransaction(id string) *Transaction {
	return &Transaction{
		ID:        id,
		StartedAt: time.Now(),
		status:    Active,
		touched:   make(map[string]string),
		created:   make(map[string]struct{}),
		names:     make(map[string]struct{}),
	}
}

func (tx *Transaction) Status() Status {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.status
}

// Touched returns the pre-existing paths backed up so far, sorted.
func (tx *Transaction) Touched() []string {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return sortedKeys(tx.touched)
}

// Created returns the paths that did not exist when first touched, sorted.
func (tx *Transaction) Created() []string {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return sortedKeys(tx.created)
}

// Artifact returns the backup artifact recorded for path.
func (tx *Transaction) Artifact(path string) (string, bool) {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	a, ok := tx.touched[path]
	return a, ok
}

func (tx *Transaction) tracks(path string) bool {
	if _, ok := tx.touched[path]; ok {
		return true
	}
	_, ok := tx.created[path]
	return ok
}

func (tx *Transaction) finish(status Status) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.status = status
	tx.touched = make(map[string]string)
	tx.created = make(map[string]struct{})
	tx.names = make(map[string]struct{})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store intercepts file mutations made during a transaction, backing up
// pre-existing content on first touch so a rollback can restore it.
// A Store runs at most one transaction at a time.
type Store struct {
	mu        sync.Mutex
	fs        afero.Fs
	backupDir string
	logger    *logger.Logger
	newID     func() string
	tx        *Transaction
}

type Option func(*Store)

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator overrides the random transaction ids. Generated ids must
// still parse as UUIDs so ListOrphans can find their artifacts.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func NewStore(fs afero.Fs, backupDir string, opts ...Option) *Store {
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}
	s := &Store{
		fs:        fs,
		backupDir: backupDir,
		logger:    logger.Discard(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Fs() afero.Fs { return s.fs }

func (s *Store) BackupDir() string { return s.backupDir }

// Active returns the in-flight transaction, or nil.
func (s *Store) Active() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

func (s *Store) IsActive() bool {
	return s.Active() != nil
}

// Status is Idle when no transaction is in flight.
func (s *Store) Status() Status {
	if tx := s.Active(); tx != nil {
		return tx.Status()
	}
	return Idle
}

// Begin starts a transaction and makes sure the backup directory exists.
func (s *Store) Begin() (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		recordBegin(false)
		return nil, fmt.Errorf("begin: %w (id %s)", ErrAlreadyActive, s.tx.ID)
	}

	if err := s.fs.MkdirAll(s.backupDir, 0755); err != nil {
		recordBegin(false)
		return nil, &IOError{Op: "mkdir", Path: s.backupDir, Err: err}
	}

	id := s.newID()
	if _, err := uuid.Parse(id); err != nil {
		recordBegin(false)
		return nil, fmt.Errorf("begin: transaction id %q: %w", id, err)
	}

	tx := newTransaction(id)
	s.tx = tx
	recordBegin(true)

	s.logger.WithField("tx", tx.ID).Info("transaction started")
	return tx, nil
}

func (s *Store) requireActive(op string) error {
	if s.tx == nil {
		return fmt.Errorf("%s: %w", op, ErrNotActive)
	}
	return nil
}

// Commit makes every write of the transaction permanent and discards the
// backups. Failure to delete an artifact is logged and reported as a
// *CommitCleanupError; the transaction is committed either way.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive("commit"); err != nil {
		return err
	}
	tx := s.tx
	log := s.logger.WithField("tx", tx.ID)

	var errs []error
	for _, path := range sortedKeys(tx.touched) {
		artifact := tx.touched[path]
		if err := s.fs.Remove(artifact); err != nil && !os.IsNotExist(err) {
			log.WithField("artifact", artifact).WithError(err).Error("failed to remove backup artifact")
			errs = append(errs, &IOError{Op: "remove", Path: artifact, Err: err})
			continue
		}
		log.WithField("artifact", artifact).Debug("backup artifact removed")
	}

	files := len(tx.touched) + len(tx.created)
	tx.finish(Committed)
	s.tx = nil
	recordCommit(time.Since(tx.StartedAt), files, len(errs) == 0)

	log.WithField("files", files).Info("transaction committed")
	if len(errs) > 0 {
		return &CommitCleanupError{TransactionID: tx.ID, Err: errors.Join(errs...)}
	}
	return nil
}

// Rollback restores every touched file from its backup and deletes the files
// the transaction created. It is a no-op without an active transaction.
// Failures are logged and restoration continues; they are returned joined.
func (s *Store) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		s.logger.Debug("rollback requested with no active transaction")
		return nil
	}
	tx := s.tx
	log := s.logger.WithField("tx", tx.ID)
	log.Info("rolling back transaction")

	var errs []error
	for _, path := range sortedKeys(tx.touched) {
		if err := s.restore(path, tx.touched[path], log); err != nil {
			errs = append(errs, err)
		}
	}

	for _, path := range sortedKeys(tx.created) {
		if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithField("path", path).WithError(err).Error("failed to remove created file")
			errs = append(errs, &IOError{Op: "remove", Path: path, Err: err})
			continue
		}
		log.WithField("path", path).Debug("created file removed")
	}

	files := len(tx.touched) + len(tx.created)
	tx.finish(RolledBack)
	s.tx = nil
	recordRollback(time.Since(tx.StartedAt), files, len(errs) == 0)

	log.WithField("files", files).Info("transaction rolled back")
	return errors.Join(errs...)
}

// restore copies artifact back over path and then drops the artifact. An
// artifact whose restore failed is kept on disk.
func (s *Store) restore(path, artifact string, log *logrus.Entry) error {
	if err := copyFile(s.fs, artifact, path); err != nil {
		log.WithField("path", path).WithError(err).Error("failed to restore file from backup")
		return &IOError{Op: "restore", Path: path, Err: err}
	}
	log.WithField("path", path).Debug("file restored")

	if err := s.fs.Remove(artifact); err != nil && !os.IsNotExist(err) {
		log.WithField("artifact", artifact).WithError(err).Error("failed to remove backup artifact")
		return &IOError{Op: "remove", Path: artifact, Err: err}
	}
	return nil
}
