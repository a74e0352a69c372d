// Package actionlog keeps an append-only audit trail of operator actions.
package actionlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/vanguard/go/internal/models"
)

const defaultBuffer = 1024

// SQLiteLog writes entries from a single goroutine so recording never
// blocks a transition. Entries are dropped when the buffer is full.
type SQLiteLog struct {
	db *sql.DB

	ch chan models.ActionEntry
	wg sync.WaitGroup

	// mu orders sends on ch against close.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func OpenSQLite(path string) (*SQLiteLog, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &SQLiteLog{db: db, ch: make(chan models.ActionEntry, defaultBuffer)}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop()
	}()
	return l, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			type TEXT NOT NULL,
			student_id TEXT,
			student_name TEXT,
			vanguard TEXT,
			price INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Record queues an entry for writing.
func (l *SQLiteLog) Record(e models.ActionEntry) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- e:
	default:
		n := l.dropped.Add(1)
		log.Warn().Str("type", string(e.Type)).Int64("dropped", n).Msg("Action log is behind, dropping entry")
	}
}

func (l *SQLiteLog) loop() {
	for e := range l.ch {
		if err := l.insert(e); err != nil {
			log.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to write action log entry")
		}
	}
}

func (l *SQLiteLog) insert(e models.ActionEntry) error {
	var price sql.NullInt64
	if e.Price != nil {
		price = sql.NullInt64{Int64: int64(*e.Price), Valid: true}
	}
	_, err := l.db.Exec(
		`INSERT INTO actions (ts, type, student_id, student_name, vanguard, price) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.Type), e.StudentID, e.StudentName, e.Vanguard, price,
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (l *SQLiteLog) Recent(ctx context.Context, limit int) ([]models.ActionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, type, student_id, student_name, vanguard, price FROM actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []models.ActionEntry
	for rows.Next() {
		var (
			e                         models.ActionEntry
			ts, typ                   string
			studentID, name, vanguard sql.NullString
			price                     sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &ts, &typ, &studentID, &name, &vanguard, &price); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Type = models.ActionType(typ)
		e.StudentID = studentID.String
		e.StudentName = name.String
		e.Vanguard = vanguard.String
		if price.Valid {
			p := int(price.Int64)
			e.Price = &p
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Close drains pending entries and closes the database.
func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	l.wg.Wait()
	return l.db.Close()
}
