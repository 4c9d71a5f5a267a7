package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/logger"
	"codeberg.org/mutker/templogger/internal/recorder"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteStore buffers samples and inserts them in batches. A partial batch
// is written when BatchTimeout elapses, on Flush, and on Close.
type sqliteStore struct {
	db       *sql.DB
	log      logger.Logger
	endpoint string
	batch    int

	mu      sync.Mutex
	pending []recorder.Sample
	closed  bool

	stop    chan struct{}
	stopped chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	db, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		_ = db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err).WithData("schema_version")
	}

	s := &sqliteStore{
		db:       db,
		log:      log,
		endpoint: cfg.Endpoint,
		batch:    max(cfg.BatchSize, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.pending = make([]recorder.Sample, 0, s.batch)

	if s.batch > 1 && cfg.BatchTimeout > 0 {
		go s.flushEvery(cfg.BatchTimeout)
	} else {
		close(s.stopped)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("batch_size", s.batch).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Sample database ready")

	return s, nil
}

// openDB creates the parent directory and opens the database in WAL mode.
func openDB(path string) (*sql.DB, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err).WithData("create_directory")
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_auto_vacuum=2")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err).WithData("open_database")
	}

	return db, nil
}

func (s *sqliteStore) Record(sample recorder.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New().New(ErrClosed)
	}
	s.pending = append(s.pending, sample)
	if len(s.pending) < s.batch {
		return nil
	}

	return s.writePending()
}

func (s *sqliteStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writePending()
}

// Close writes what is still pending, checkpoints the WAL and closes the
// database. Samples that cannot be written are reported in the error.
func (s *sqliteStore) Close() error {
	errFactory := errors.New()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.stopped

	s.mu.Lock()
	lost := len(s.pending)
	writeErr := s.writePending()
	s.mu.Unlock()
	if writeErr != nil {
		s.log.Error().Err(writeErr).Int("samples", lost).Msg("Samples lost on close")
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		_ = s.db.Close()
		return errFactory.Wrap(ErrStorageClose, err).WithData("checkpoint_wal")
	}
	if err := s.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err).WithData("close_database")
	}
	s.log.Debug().Msg("Sample database closed")

	return writeErr
}

func (s *sqliteStore) flushEvery(d time.Duration) {
	defer close(s.stopped)

	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.log.Error().Err(err).Msg("Timed flush failed")
			}
		}
	}
}

// writePending inserts the buffer in one transaction. Callers hold mu. The
// buffer is kept if the transaction fails.
func (s *sqliteStore) writePending() error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.insert(s.pending); err != nil {
		s.log.Error().Err(err).Int("samples", len(s.pending)).Msg("Failed to write samples")
		return errors.New().Wrap(ErrTransactionFailed, err)
	}
	s.log.Debug().Int("samples", len(s.pending)).Msg("Samples written")
	s.pending = s.pending[:0]

	return nil
}

func (s *sqliteStore) insert(samples []recorder.Sample) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err = stmt.Exec(sample.Timestamp.UnixMilli(), sample.Value, s.endpoint); err != nil {
			return err
		}
	}

	return tx.Commit()
}
