// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/aamcrae/postcard/feeder"

	_ "modernc.org/sqlite"
)

// Kinds of history record.
const (
	KindTransition = "transition"
	KindCapture    = "capture"
)

const listenerTimeout = 2 * time.Second

// Record is a single history entry.
type Record struct {
	ID   int64     `json:"id"`
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	From string    `json:"from,omitempty"`
	To   string    `json:"to,omitempty"`
	Size int64     `json:"size,omitempty"`
}

// History is an SQLite log of feeder transitions and captures.
type History struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewHistory creates a history stored in the SQLite database at path. Call Init before use.
func NewHistory(path string) *History {
	return &History{path: path}
}

// Init opens the database and creates the schema.
func (h *History) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.path == "" {
		return errors.New("history: sqlite path is required")
	}
	if h.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", h.path)
	if err != nil {
		return err
	}
	// One writer at a time; the listener and the sink may race.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	h.db = db
	return nil
}

// RecordTransition logs a feeder position change.
func (h *History) RecordTransition(ctx context.Context, ev feeder.Event) error {
	db, err := h.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO events (at, kind, from_pos, to_pos, size)
		VALUES (?, ?, ?, ?, 0)
	`, ev.Time.UnixNano(), KindTransition, ev.From.String(), ev.To.String())
	return err
}

// RecordCapture logs a stored postcard image of size bytes.
func (h *History) RecordCapture(ctx context.Context, at time.Time, size int64) error {
	db, err := h.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO events (at, kind, from_pos, to_pos, size)
		VALUES (?, ?, '', '', ?)
	`, at.UnixNano(), KindCapture, size)
	return err
}

// Recent returns up to limit records, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Record, error) {
	db, err := h.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, at, kind, from_pos, to_pos, size
		FROM events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var at int64
		if err := rows.Scan(&r.ID, &at, &r.Kind, &r.From, &r.To, &r.Size); err != nil {
			return nil, err
		}
		r.Time = time.Unix(0, at)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Count returns the number of records of the given kind.
func (h *History) Count(ctx context.Context, kind string) (int, error) {
	db, err := h.getDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind = ?`, kind).Scan(&n)
	return n, err
}

// Listener returns a feeder listener that records every transition.
// Failures are logged and otherwise ignored.
func (h *History) Listener() func(feeder.Event) {
	return func(ev feeder.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), listenerTimeout)
		defer cancel()
		if err := h.RecordTransition(ctx, ev); err != nil {
			log.Printf("history: %s -> %s: %v", ev.From, ev.To, err)
		}
	}
}

// Close closes the database. The history may be initialised again afterwards.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

func (h *History) getDB() (*sql.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.db == nil {
		return nil, errors.New("history is not initialized")
	}
	return h.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			from_pos TEXT NOT NULL,
			to_pos TEXT NOT NULL,
			size INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS events_kind ON events (kind);
	`)
	return err
}
