// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errlog persists terminal request failures to a local SQLite
// database so they can be reviewed after the command that hit them exits.
package errlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/reviewdesk/pkg/apierror"
	"github.com/tombee/reviewdesk/pkg/notify"
)

const (
	// DefaultMaxEntries bounds the stored log.
	DefaultMaxEntries = 100

	defaultBuffer = 64
)

// Config configures a Store.
type Config struct {
	// Path is the database file. Empty uses the user config directory.
	Path string
	// MaxEntries bounds the log; the oldest rows are pruned. Default: 100.
	MaxEntries int
	// Buffer is the capacity of the write queue. Default: 64.
	Buffer int
	Logger *slog.Logger
}

// Store is a notify.Sink that writes records in the background. Notify
// never blocks; when the queue is full the record is dropped.
type Store struct {
	db     *sql.DB
	max    int
	logger *slog.Logger

	queue chan op
	wg    sync.WaitGroup

	// mu guards closed; Close takes the write lock before closing queue.
	mu     sync.RWMutex
	closed bool
}

// op is either a record to write or a flush marker.
type op struct {
	entry *notify.Entry
	done  chan struct{}
}

// DefaultPath returns the database location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "reviewdesk", "errors.db"), nil
}

// Open opens or creates the database and starts the writer.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.Path = p
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create error log directory: %w", err)
	}

	connStr := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to error log: %w", err)
	}

	s := &Store{
		db:     db,
		max:    cfg.MaxEntries,
		logger: cfg.Logger,
		queue:  make(chan op, cfg.Buffer),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s.wg.Add(1)
	go s.writer()
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TEXT NOT NULL,
			code TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			http_status INTEGER,
			retryable INTEGER NOT NULL DEFAULT 0,
			user_message TEXT NOT NULL,
			technical_message TEXT,
			request_id TEXT,
			method TEXT,
			endpoint TEXT,
			field_errors_json TEXT,
			route TEXT,
			action TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_recorded_at ON errors(recorded_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Notify implements notify.Sink.
func (s *Store) Notify(_ context.Context, ev notify.Event) {
	if ev.Err == nil {
		return
	}
	entry := notify.Entry{Record: ev.Err.Record(), Route: ev.Context.Route, Action: ev.Context.Action}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- op{entry: &entry}:
	default:
		s.logger.Warn("error log queue full, dropping record", "code", entry.Code)
	}
}

// Flush blocks until every record queued before the call is written.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.queue <- op{done: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) writer() {
	defer s.wg.Done()
	for o := range s.queue {
		if o.done != nil {
			close(o.done)
			continue
		}
		if err := s.insert(context.Background(), o.entry); err != nil {
			s.logger.Warn("failed to persist error record", "error", err)
		}
	}
}

func (s *Store) insert(ctx context.Context, e *notify.Entry) error {
	var fields []byte
	if len(e.FieldErrors) > 0 {
		b, err := json.Marshal(e.FieldErrors)
		if err != nil {
			return fmt.Errorf("failed to encode field errors: %w", err)
		}
		fields = b
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO errors
		(recorded_at, code, category, severity, http_status, retryable, user_message,
		 technical_message, request_id, method, endpoint, field_errors_json, route, action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano),
		string(e.Code),
		string(e.Category),
		e.Severity.String(),
		e.HTTPStatus,
		boolToInt(e.Retryable),
		e.UserMessage,
		e.TechnicalMessage,
		e.RequestID,
		e.Method,
		e.Endpoint,
		nullString(string(fields)),
		e.Route,
		e.Action,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM errors WHERE id NOT IN (SELECT id FROM errors ORDER BY id DESC LIMIT ?)`, s.max)
	if err != nil {
		return fmt.Errorf("failed to prune error log: %w", err)
	}
	return tx.Commit()
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything stored.
func (s *Store) List(ctx context.Context, limit int) ([]notify.Entry, error) {
	if limit <= 0 {
		limit = s.max
	}
	rows, err := s.db.QueryContext(ctx, `SELECT recorded_at, code, category, severity, http_status,
		retryable, user_message, technical_message, request_id, method, endpoint,
		field_errors_json, route, action
		FROM errors ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error log: %w", err)
	}
	defer rows.Close()

	var entries []notify.Entry
	for rows.Next() {
		var (
			e                                      notify.Entry
			recordedAt, code, category, severity   string
			retryable                              int
			technical, requestID, method, endpoint sql.NullString
			fields, route, action                  sql.NullString
			status                                 sql.NullInt64
		)
		if err := rows.Scan(&recordedAt, &code, &category, &severity, &status, &retryable,
			&e.UserMessage, &technical, &requestID, &method, &endpoint, &fields, &route, &action); err != nil {
			return nil, fmt.Errorf("failed to scan error record: %w", err)
		}

		e.Timestamp, _ = time.Parse(time.RFC3339Nano, recordedAt)
		e.Code = apierror.Code(code)
		e.Category = apierror.Category(category)
		e.Severity = apierror.ParseSeverity(severity)
		e.HTTPStatus = int(status.Int64)
		e.Retryable = retryable != 0
		e.TechnicalMessage = technical.String
		e.RequestID = requestID.String
		e.Method = method.String
		e.Endpoint = endpoint.String
		e.Route = route.String
		e.Action = action.String
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &e.FieldErrors); err != nil {
				s.logger.Debug("ignoring malformed field errors", "error", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read error log: %w", err)
	}
	return entries, nil
}

// Summary groups every stored entry.
func (s *Store) Summary(ctx context.Context) (notify.Summary, error) {
	entries, err := s.List(ctx, 0)
	if err != nil {
		return notify.Summary{}, err
	}
	// List is newest first; Summarize expects oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return notify.Summarize(entries), nil
}

// Clear deletes every stored entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM errors`); err != nil {
		return fmt.Errorf("failed to clear error log: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
