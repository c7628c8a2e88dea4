package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"anonchat/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const (
	eventKindMessage = "message"
	eventKindStart   = "start"
)

// SQLBackend persists the snapshot into users and chat_events tables.
type SQLBackend struct {
	db *sql.DB
}

func openSQL(dbType string, cfg *config.Config) (*SQLBackend, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(db, dbType); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLBackend{db: db}, nil
}

// migrate ensures the required tables are present.
func migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY
			)`,
			`CREATE TABLE IF NOT EXISTS chat_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				kind TEXT NOT NULL,
				occurred_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_events_kind ON chat_events(kind)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_events (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				kind VARCHAR(16) NOT NULL,
				occurred_at VARCHAR(40) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_chat_events_kind (kind)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

// Save replaces the stored snapshot inside one transaction.
func (b *SQLBackend) Save(ctx context.Context, snap Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_events`); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	for _, id := range snap.Users {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("insert user %d: %w", id, err)
		}
	}
	if err := insertEvents(ctx, tx, eventKindMessage, snap.MessageEvents); err != nil {
		return err
	}
	if err := insertEvents(ctx, tx, eventKindStart, snap.StartEvents); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, kind string, events []time.Time) error {
	for _, t := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_events (kind, occurred_at) VALUES (?, ?)`,
			kind, t.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("insert %s event: %w", kind, err)
		}
	}
	return nil
}

// Load reads the stored snapshot; any failure yields an empty one.
func (b *SQLBackend) Load(ctx context.Context) Snapshot {
	var snap Snapshot

	rows, err := b.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return Snapshot{}
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		snap.Users = append(snap.Users, id)
	}
	rows.Close()

	rows, err = b.db.QueryContext(ctx, `SELECT kind, occurred_at FROM chat_events ORDER BY id`)
	if err != nil {
		return Snapshot{}
	}
	defer rows.Close()
	for rows.Next() {
		var kind, raw string
		if err := rows.Scan(&kind, &raw); err != nil {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		switch kind {
		case eventKindMessage:
			snap.MessageEvents = append(snap.MessageEvents, t.UTC())
		case eventKindStart:
			snap.StartEvents = append(snap.StartEvents, t.UTC())
		}
	}
	return snap
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
