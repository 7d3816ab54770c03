// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session keeps the committed contract of each conversation.
//
// # Description
//
// A Store maps session IDs to their latest committed contract.State. Turns
// in one session are serialized by a per-session lock held through a Scope;
// different sessions share nothing mutable. Commits are written through to
// a SnapshotStore when one is configured, so sessions evicted from memory,
// or lost to a restart, are rehydrated from their latest snapshot.
package session

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
)

var (
	// ErrNotFound is returned by a SnapshotStore with no snapshot for a
	// session.
	ErrNotFound = errors.New("session not found")

	// ErrStaleRevision is returned when a commit does not advance the
	// revision.
	ErrStaleRevision = errors.New("revision does not advance the committed state")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session store is closed")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// ValidID reports whether id can name a session.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// TurnRecord is one row of the turn audit log.
type TurnRecord struct {
	SessionID string        `json:"session_id"`
	Intent    string        `json:"intent"`
	Outcome   string        `json:"outcome"`
	Verdict   string        `json:"verdict,omitempty"`
	RuleIDs   []string      `json:"rule_ids,omitempty"`
	Revision  int64         `json:"revision"`
	Latency   time.Duration `json:"latency"`
	CreatedAt time.Time     `json:"created_at"`
}

// SnapshotStore persists committed states and the turn log.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Save stores s as the latest snapshot of sessionID.
	Save(ctx context.Context, sessionID string, s *contract.State) error

	// Load returns the latest snapshot, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*contract.State, error)

	// Delete removes every snapshot of sessionID.
	Delete(ctx context.Context, sessionID string) error

	// AppendTurn adds one row to the turn log.
	AppendTurn(ctx context.Context, rec TurnRecord) error

	// Turns returns the turn log of sessionID, oldest first.
	Turns(ctx context.Context, sessionID string) ([]TurnRecord, error)

	// Ping checks the backing database.
	Ping(ctx context.Context) error

	Close() error
}
