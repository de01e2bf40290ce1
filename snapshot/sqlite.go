package snapshot

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

type SQLiteConfig struct {
	Name string `json:"name"`
}

// SQLiteStorage keeps records in a snapshots table keyed by name. Each
// write is a single upsert statement.
type SQLiteStorage struct {
	db     *sql.DB
	logger types.Logger
	name   string
}

func NewSQLiteStorage(ctx context.Context, logger types.Logger, config *types.SnapshotConfig) (*SQLiteStorage, error) {
	if config.Path == "" {
		return nil, types.Errorf(types.ErrStorageConfigInvalid, "sqlite storage requires a path")
	}

	sqliteConfig := &SQLiteConfig{Name: "cache"}
	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, sqliteConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite snapshot config")
		}
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open SQLite database")
	}
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{
		db:     db,
		logger: logger,
		name:   sqliteConfig.Name,
	}

	if err := storage.initDatabase(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close database during cleanup", zap.Error(closeErr))
		}
		return nil, types.WrapError(err, "failed to initialize database")
	}

	logger.Info("SQLite snapshot storage opened", zap.String("path", config.Path))

	return storage, nil
}

func (s *SQLiteStorage) initDatabase(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteStorage) Read(ctx context.Context) ([]byte, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE name = ?`, s.name).Scan(&data)
	if err != nil {
		if types.IsError(err, sql.ErrNoRows) {
			return nil, types.Errorf(types.ErrSnapshotNotFound, "name: %s", s.name)
		}
		return nil, err
	}

	return data, nil
}

func (s *SQLiteStorage) Write(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.name, data, time.Now().UnixNano())

	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
