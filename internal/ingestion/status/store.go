package status

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/agentcloud/vector-db-proxy/internal/platform/envutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrUnknownDriver = errors.New("unknown status driver")

type Config struct {
	Driver string
	DSN    string
}

// ResolveConfigFromEnv reads STATUS_DRIVER and STATUS_DSN. For postgres without a DSN
// the POSTGRES_* variables are used.
func ResolveConfigFromEnv() Config {
	cfg := Config{
		Driver: strings.ToLower(envutil.String("STATUS_DRIVER", DriverNone)),
		DSN:    envutil.String("STATUS_DSN", ""),
	}
	if cfg.DSN == "" {
		switch cfg.Driver {
		case DriverPostgres:
			cfg.DSN = fmt.Sprintf(
				"postgres://%s:%s@%s:%s/%s?sslmode=disable",
				envutil.String("POSTGRES_USER", "postgres"),
				envutil.String("POSTGRES_PASSWORD", ""),
				envutil.String("POSTGRES_HOST", "localhost"),
				envutil.String("POSTGRES_PORT", "5432"),
				envutil.String("POSTGRES_NAME", "vector_db_proxy"),
			)
		case DriverSQLite:
			cfg.DSN = "vector-db-proxy-status.db"
		}
	}
	return cfg
}

// Store is a gorm-backed Recorder.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open returns Nop for the "none" driver, otherwise a migrated Store.
func Open(logg *logger.Logger, cfg Config) (Recorder, error) {
	if logg == nil {
		logg = logger.NewNop()
	}
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", DriverNone:
		return Nop{}, nil
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open %s status store: %w", cfg.Driver, err)
	}
	return NewStore(logg, db)
}

// NewStore migrates the status table on db.
func NewStore(log *logger.Logger, db *gorm.DB) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := db.AutoMigrate(&FileIngestion{}); err != nil {
		return nil, fmt.Errorf("migrate file_ingestion: %w", err)
	}
	return &Store{db: db, log: log.With("service", "StatusStore")}, nil
}

func (s *Store) Record(ctx context.Context, row *FileIngestion) error {
	if row == nil {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert file_ingestion: %w", err)
	}
	return nil
}

// ByDataSource lists the newest rows first.
func (s *Store) ByDataSource(ctx context.Context, dataSourceID string, limit int) ([]FileIngestion, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []FileIngestion
	err := s.db.WithContext(ctx).
		Where("datasource_id = ?", dataSourceID).
		Order("finished_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
