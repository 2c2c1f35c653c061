// Package store keeps a local history of finished queries in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HexSleeves/turnbridge/internal/bus"
	"github.com/HexSleeves/turnbridge/internal/job"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        TEXT NOT NULL,
	mode          TEXT NOT NULL,
	turn          INTEGER,
	status        TEXT NOT NULL,
	prompt        TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	response      TEXT NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	status_code   INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
`

// Exchange is one recorded prompt and its outcome.
type Exchange struct {
	ID           int64
	JobID        string
	Mode         string
	Turn         *int
	Status       string
	Prompt       string
	SystemPrompt string
	Response     string
	ErrorKind    string
	StatusCode   int
	CreatedAt    time.Time
	Duration     time.Duration
}

// IsError reports whether the exchange ended in an error.
func (e Exchange) IsError() bool { return e.ErrorKind != "" }

// FromJob converts a finished job into an Exchange.
func FromJob(j job.Job) Exchange {
	ex := Exchange{
		JobID:        j.ID,
		Mode:         string(j.Mode),
		Status:       string(j.Status),
		Prompt:       j.Prompt,
		SystemPrompt: j.SystemPrompt,
		Response:     j.Response.String(),
		ErrorKind:    string(j.Response.Kind),
		StatusCode:   j.Response.StatusCode,
		CreatedAt:    j.CreatedAt,
		Duration:     j.Duration(),
	}
	if j.Gated {
		turn := j.Turn
		ex.Turn = &turn
	}
	return ex
}

type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open opens (creating if needed) the history database at path. ":memory:"
// gives a throwaway store.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history path cannot be empty")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create history directory: %w", err)
			}
		}
		if err := ensurePrivateFile(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// One connection keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func ensurePrivateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat history: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create history: %w", err)
	}
	return f.Close()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Insert records ex and returns its row id.
func (s *Store) Insert(ex Exchange) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	var turn sql.NullInt64
	if ex.Turn != nil {
		turn = sql.NullInt64{Int64: int64(*ex.Turn), Valid: true}
	}
	res, err := s.db.Exec(`INSERT INTO exchanges
		(job_id, mode, turn, status, prompt, system_prompt, response, error_kind, status_code, created_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.JobID, ex.Mode, turn, ex.Status, ex.Prompt, ex.SystemPrompt, ex.Response,
		ex.ErrorKind, ex.StatusCode, ex.CreatedAt.UnixNano(), ex.Duration.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("insert exchange: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit exchanges, newest first. limit <= 0 returns all.
func (s *Store) Recent(limit int) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, job_id, mode, turn, status, prompt, system_prompt,
		response, error_kind, status_code, created_at, duration_ms
		FROM exchanges ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var (
			ex      Exchange
			turn    sql.NullInt64
			created int64
			durMS   int64
		)
		if err := rows.Scan(&ex.ID, &ex.JobID, &ex.Mode, &turn, &ex.Status, &ex.Prompt,
			&ex.SystemPrompt, &ex.Response, &ex.ErrorKind, &ex.StatusCode, &created, &durMS); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		if turn.Valid {
			t := int(turn.Int64)
			ex.Turn = &t
		}
		ex.CreatedAt = time.Unix(0, created)
		ex.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM exchanges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exchanges: %w", err)
	}
	return n, nil
}

// Attach records every finished job published on b. onErr, if non-nil,
// receives insert failures. Call Unsubscribe on the result to stop.
func (s *Store) Attach(b *bus.MessageBus, onErr func(error)) *bus.Subscription {
	return b.SubscribeAll(func(msg bus.Message) {
		if msg.Type != bus.MsgQueryCompleted && msg.Type != bus.MsgQueryRejected {
			return
		}
		j, ok := msg.Payload.(job.Job)
		if !ok {
			return
		}
		if _, err := s.Insert(FromJob(j)); err != nil && onErr != nil {
			onErr(err)
		}
	})
}
