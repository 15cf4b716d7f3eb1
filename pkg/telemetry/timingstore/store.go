package timingstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/telemetry"
	"github.com/tauraamui/xerror"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	vendorName       = "tacusci"
	appName          = "edgecam"
	databaseFileName = "timings.db"
	flushEvery       = 64
)

var uc = os.UserCacheDir
var fs = afero.NewOsFs()

// Store persists every timing it observes under the session it was
// opened for. Rows are written in batches, Close writes what is left.
type Store struct {
	sessionUUID string
	db          GormWrapper
	repo        FrameTimingRepository

	mu      sync.Mutex
	pending []FrameTiming
	failed  uint64
}

// Open connects to the database at path, or the default location when
// path is empty, creating the file and its tables if needed.
func Open(path string) (*Store, error) {
	path, err := resolveDBPath(path, uc)
	if err != nil {
		return nil, err
	}

	if err := fs.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm); err != nil {
		return nil, xerror.Errorf("unable to create timings database directory: %w", err)
	}

	log.Debug("Connecting to timings DB: %s", path)
	db, err := openDBConnection(path)
	if err != nil {
		return nil, xerror.Errorf("unable to open timings db connection: %w", err)
	}

	s := &Store{
		sessionUUID: uuid.NewString(),
		db:          db,
		repo:        FrameTimingRepository{DB: db},
	}
	return s, nil
}

// Destroy deletes the database file at path, or the default location
// when path is empty.
func Destroy(path string) error {
	path, err := resolveDBPath(path, uc)
	if err != nil {
		return xerror.Errorf("unable to delete timings database file: %w", err)
	}

	return fs.Remove(path)
}

var openDBConnection = func(path string) (GormWrapper, error) {
	logger := logger.New(nil, logger.Config{LogLevel: logger.Silent})
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := autoMigrate(db); err != nil {
		return nil, xerror.Errorf("unable to run automigrations: %w", err)
	}
	return Wrap(db), nil
}

func resolveDBPath(configured string, uc func() (string, error)) (string, error) {
	if len(configured) > 0 {
		return configured, nil
	}

	databasePath := os.Getenv("EDGECAM_TIMINGS_DB")
	if len(databasePath) > 0 {
		return databasePath, nil
	}

	databaseParentDir, err := uc()
	if err != nil {
		return "", xerror.Errorf("unable to resolve %s database file location: %w", databaseFileName, err)
	}

	return filepath.Join(
		databaseParentDir,
		vendorName,
		appName,
		databaseFileName), nil
}

func (s *Store) SessionUUID() string {
	return s.sessionUUID
}

func (s *Store) Observe(t telemetry.Timing) {
	row := FrameTiming{
		SessionUUID:    s.sessionUUID,
		Seq:            t.Seq,
		CapturedAt:     t.Captured,
		DurationMicros: t.Duration.Microseconds(),
		Mode:           t.Mode.String(),
		Published:      t.Published,
	}
	if t.Err != nil {
		row.Error = t.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, row)
	if len(s.pending) >= flushEvery {
		s.flush()
	}
}

func (s *Store) flush() {
	if err := s.repo.CreateAll(s.pending); err != nil {
		s.failed += uint64(len(s.pending))
		log.Error("Unable to store %d frame timings: %v", len(s.pending), err)
	}
	s.pending = nil
}

// Timings returns every stored timing of this store's session.
func (s *Store) Timings() ([]FrameTiming, error) {
	s.mu.Lock()
	s.flush()
	s.mu.Unlock()
	return s.repo.FindBySession(s.sessionUUID)
}

func (s *Store) Failed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.flush()
	s.mu.Unlock()
	return s.db.Close()
}
