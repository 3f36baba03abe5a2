package discordia

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sqliteExecPragma = []string{
	"pragma journal_mode=WAL;",
	"pragma synchronous = normal;",
	"pragma temp_store = memory;",
	"pragma foreign_keys = ON;",
}

// CreateDB initializes the archive database connection and migrates the
// entity tables.
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
	handler slog.Handler,
	slowThreshold time.Duration,
) (*gorm.DB, error) {
	gormLogger := newGORMLogger(handler, slowThreshold)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&Category{},
		&Channel{},
		&User{},
		&Message{},
	)
	if err != nil {
		return db, err
	}

	if commitErr := txn.Commit().Error; commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

// getDB initializes and returns a GORM database connection based on the
// specified database type.
//
// Parameters:
//   - databaseType: Must be 'sqlite' or 'postgres'
//   - database: Database connection string, or SQLite file path.
//   - gormLogger: A pointer to a gormStructuredLogger instance for
//     logging database operations.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0o755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		db, err := gorm.Open(
			sqlite.Open(database),
			&gorm.Config{Logger: gormLogger},
		)
		if err != nil {
			return nil, err
		}
		for _, pragma := range sqliteExecPragma {
			if err = db.Exec(pragma).Error; err != nil {
				return nil, err
			}
		}
		return db, nil
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database),
			&gorm.Config{Logger: gormLogger},
		)
	default:
		return nil, errors.New("invalid database type")
	}
}

// Archive persists entities to the configured database. Like the JSONL
// backup, archive writes are bookkeeping: failures are the caller's to
// log, never to propagate.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
}

func newArchive(db *gorm.DB, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		db:     db,
		logger: logger.With(loggerNameKey, "archive"),
	}
}

// upsert inserts or overwrites a record keyed by primary key.
func (a *Archive) upsert(ctx context.Context, entity any) error {
	return a.db.WithContext(ctx).Clauses(
		clause.OnConflict{UpdateAll: true},
	).Create(entity).Error
}

func (a *Archive) SaveCategory(ctx context.Context, category Category) error {
	return a.upsert(ctx, &category)
}

func (a *Archive) SaveChannel(ctx context.Context, channel Channel) error {
	return a.upsert(ctx, &channel)
}

func (a *Archive) SaveUser(ctx context.Context, user User) error {
	return a.upsert(ctx, &user)
}

func (a *Archive) SaveMessage(ctx context.Context, message Message) error {
	return a.upsert(ctx, &message)
}
