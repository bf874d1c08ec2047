package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS conversations (
	id          INTEGER PRIMARY KEY,
	logged_at   TIMESTAMP NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL,
	temperature REAL NOT NULL DEFAULT 0,
	messages    TEXT NOT NULL,
	response    TEXT NOT NULL
)`

// Postgres wants an explicit serial type; SQLite's INTEGER PRIMARY KEY
// autoincrements on its own.
const schemaPG = `CREATE TABLE IF NOT EXISTS conversations (
	id          BIGSERIAL PRIMARY KEY,
	logged_at   TIMESTAMPTZ NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL,
	temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
	messages    TEXT NOT NULL,
	response    TEXT NOT NULL
)`

const insertStmt = `INSERT INTO conversations
	(logged_at, session_id, model, temperature, messages, response)
	VALUES (:logged_at, :session_id, :model, :temperature, :messages, :response)`

// sqlSink inserts one row per conversation. Only the async pump
// goroutine calls write.
type sqlSink struct {
	db *sqlx.DB
}

type conversationRow struct {
	LoggedAt    time.Time `db:"logged_at"`
	SessionID   string    `db:"session_id"`
	Model       string    `db:"model"`
	Temperature float64   `db:"temperature"`
	Messages    string    `db:"messages"`
	Response    string    `db:"response"`
}

func openSQL(driver, dsn string) (*sqlSink, error) {
	if driver == "sqlite" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open chat log db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping chat log db: %w", err)
	}

	ddl := schema
	if driver == "pgx" {
		ddl = schemaPG
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate chat log db: %w", err)
	}

	slog.Info("chat log db opened", "driver", driver)
	return &sqlSink{db: db}, nil
}

func (s *sqlSink) write(e Entry) {
	msgs, err := json.Marshal(e.Messages)
	if err != nil {
		slog.Warn("chatlog: marshal messages failed", "error", err)
		return
	}
	row := conversationRow{
		LoggedAt:    e.Timestamp,
		SessionID:   e.SessionID,
		Model:       e.Model,
		Temperature: e.Temperature,
		Messages:    string(msgs),
		Response:    e.Response,
	}
	if _, err := s.db.NamedExec(insertStmt, row); err != nil {
		slog.Warn("chatlog: insert failed", "error", err)
	}
}

func (s *sqlSink) Close() error {
	return s.db.Close()
}
