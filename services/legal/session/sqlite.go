// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	session_id  TEXT NOT NULL,
	revision    INTEGER NOT NULL,
	contract_id TEXT NOT NULL,
	state_json  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (session_id, revision)
);

CREATE TABLE IF NOT EXISTS turn_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	intent     TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	verdict    TEXT NOT NULL DEFAULT '',
	rule_ids   TEXT NOT NULL DEFAULT '',
	revision   INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_log_session ON turn_log (session_id, id);
`

// SQLiteSnapshotStore keeps every committed revision and the turn log in a
// SQLite file.
//
// # Thread Safety
//
// Safe for concurrent use. The pool holds one connection, so writes are
// serialized by database/sql.
type SQLiteSnapshotStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ SnapshotStore = (*SQLiteSnapshotStore)(nil)

type snapshotRow struct {
	SessionID  string `db:"session_id"`
	Revision   int64  `db:"revision"`
	ContractID string `db:"contract_id"`
	StateJSON  string `db:"state_json"`
	CreatedAt  string `db:"created_at"`
}

type turnRow struct {
	SessionID string `db:"session_id"`
	Intent    string `db:"intent"`
	Outcome   string `db:"outcome"`
	Verdict   string `db:"verdict"`
	RuleIDs   string `db:"rule_ids"`
	Revision  int64  `db:"revision"`
	LatencyMS int64  `db:"latency_ms"`
	CreatedAt string `db:"created_at"`
}

// OpenSQLite opens (creating if needed) the database at path. Use
// ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLiteSnapshotStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSnapshotStore{db: db, now: time.Now}, nil
}

// Save implements SnapshotStore.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, sessionID string, state *contract.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO snapshots (session_id, revision, contract_id, state_json, created_at)
		 VALUES (:session_id, :revision, :contract_id, :state_json, :created_at)`,
		snapshotRow{
			SessionID:  sessionID,
			Revision:   state.Revision,
			ContractID: state.ID,
			StateJSON:  string(raw),
			CreatedAt:  s.now().UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Load implements SnapshotStore.
func (s *SQLiteSnapshotStore) Load(ctx context.Context, sessionID string) (*contract.State, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row,
		`SELECT session_id, revision, contract_id, state_json, created_at
		 FROM snapshots WHERE session_id = ? ORDER BY revision DESC LIMIT 1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	var state contract.State
	if err := json.Unmarshal([]byte(row.StateJSON), &state); err != nil {
		return nil, fmt.Errorf("decode snapshot %s@%d: %w", sessionID, row.Revision, err)
	}
	return &state, nil
}

// Delete implements SnapshotStore. The turn log is kept.
func (s *SQLiteSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

// AppendTurn implements SnapshotStore.
func (s *SQLiteSnapshotStore) AppendTurn(ctx context.Context, rec TurnRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO turn_log (session_id, intent, outcome, verdict, rule_ids, revision, latency_ms, created_at)
		 VALUES (:session_id, :intent, :outcome, :verdict, :rule_ids, :revision, :latency_ms, :created_at)`,
		turnRow{
			SessionID: rec.SessionID,
			Intent:    rec.Intent,
			Outcome:   rec.Outcome,
			Verdict:   rec.Verdict,
			RuleIDs:   strings.Join(rec.RuleIDs, ","),
			Revision:  rec.Revision,
			LatencyMS: rec.Latency.Milliseconds(),
			CreatedAt: created.UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Turns implements SnapshotStore.
func (s *SQLiteSnapshotStore) Turns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	var rows []turnRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT session_id, intent, outcome, verdict, rule_ids, revision, latency_ms, created_at
		 FROM turn_log WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}

	out := make([]TurnRecord, 0, len(rows))
	for _, r := range rows {
		rec := TurnRecord{
			SessionID: r.SessionID,
			Intent:    r.Intent,
			Outcome:   r.Outcome,
			Verdict:   r.Verdict,
			Revision:  r.Revision,
			Latency:   time.Duration(r.LatencyMS) * time.Millisecond,
		}
		if r.RuleIDs != "" {
			rec.RuleIDs = strings.Split(r.RuleIDs, ",")
		}
		if t, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, nil
}

// Revisions returns the stored revisions of sessionID in ascending order.
func (s *SQLiteSnapshotStore) Revisions(ctx context.Context, sessionID string) ([]int64, error) {
	var revs []int64
	if err := s.db.SelectContext(ctx, &revs,
		`SELECT revision FROM snapshots WHERE session_id = ? ORDER BY revision`, sessionID); err != nil {
		return nil, fmt.Errorf("select revisions: %w", err)
	}
	return revs, nil
}

// Ping implements SnapshotStore.
func (s *SQLiteSnapshotStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements SnapshotStore.
func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}
