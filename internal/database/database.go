package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/logger"

	_ "github.com/lib/pq"
)

// DB оборачивает *sql.DB подключения к PostgreSQL.
type DB struct {
	*sql.DB
}

// schema создаёт таблицы кодов и журнала выигрышей; выполняется идемпотентно.
const schema = `
CREATE TABLE IF NOT EXISTS codes (
	id           BIGSERIAL PRIMARY KEY,
	code         VARCHAR(32) NOT NULL UNIQUE,
	uses_allowed INTEGER NOT NULL DEFAULT 1 CHECK (uses_allowed > 0),
	uses_count   INTEGER NOT NULL DEFAULT 0 CHECK (uses_count >= 0 AND uses_count <= uses_allowed),
	prize_label  TEXT,
	prize_value  NUMERIC(12, 2),
	revoked      BOOLEAN NOT NULL DEFAULT FALSE,
	revoked_at   TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS redemption_log (
	id          BIGSERIAL PRIMARY KEY,
	code_id     BIGINT NOT NULL REFERENCES codes(id),
	code        VARCHAR(32) NOT NULL,
	player      TEXT NOT NULL,
	prize_label TEXT NOT NULL,
	prize_value NUMERIC(12, 2) NOT NULL,
	chest_index INTEGER,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_redemption_log_created_at ON redemption_log(created_at);
CREATE INDEX IF NOT EXISTS idx_redemption_log_code_id ON redemption_log(code_id);
`

// Connect открывает пул соединений и проверяет доступность базы.
func Connect(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"host": cfg.Host,
		"db":   cfg.DBName,
	}).Info("Successfully connected to database")

	return &DB{DB: sqlDB}, nil
}

// Migrate применяет схему.
func (db *DB) Migrate(ctx context.Context) error {
	if db == nil || db.DB == nil {
		return errors.New("database is not initialized")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Health проверяет соединение с базой.
func (db *DB) Health() error {
	if db == nil || db.DB == nil {
		return errors.New("database is not initialized")
	}
	return db.Ping()
}

// Close закрывает пул; безопасен для nil.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}
