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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
)

var tracer = otel.Tracer("leasecore.legal.session")

// Config controls memory residency.
type Config struct {
	// IdleTTL is how long an unused session stays in memory. Default: 30m
	IdleTTL time.Duration

	// JanitorInterval is how often idle sessions are evicted. Default: 1m
	JanitorInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		IdleTTL:         30 * time.Minute,
		JanitorInterval: time.Minute,
	}
}

// entry is one resident session. lock is a one-slot channel so waiters can
// give up when their context ends.
type entry struct {
	lock     chan struct{}
	state    *contract.State
	loaded   bool
	evicted  bool
	lastUsed time.Time
}

func newEntry() *entry {
	return &entry{lock: make(chan struct{}, 1)}
}

// Store holds the committed state of every resident session.
//
// # Thread Safety
//
// Safe for concurrent use. The map is guarded by mu; each entry's state is
// only written while its lock is held and read under mu.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	snapshots SnapshotStore
	cfg       Config
	now       func() time.Time

	done    chan struct{}
	running bool
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store. snapshots may be nil, in which case sessions
// live only in memory and eviction discards them.
func NewStore(snapshots SnapshotStore, cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = def.JanitorInterval
	}
	s := &Store{
		sessions:  make(map[string]*entry),
		snapshots: snapshots,
		cfg:       cfg,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Scope
// =============================================================================

// Scope is exclusive access to one session for the duration of a turn.
// It implements the composer's Committer.
type Scope struct {
	store    *Store
	id       string
	e        *entry
	released bool
}

// Acquire locks sessionID, waiting in arrival order until the lock is free
// or ctx ends.
//
// # Description
//
// The session is created on first use. When it is not resident, its latest
// snapshot is loaded once the lock is held.
//
// # Outputs
//
//   - *Scope: Must be released with Release.
//   - error: ctx.Err() when the wait was abandoned, or a snapshot load
//     failure.
func (s *Store) Acquire(ctx context.Context, sessionID string) (*Scope, error) {
	ctx, span := tracer.Start(ctx, "Store.Acquire")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		e, ok := s.sessions[sessionID]
		if !ok {
			e = newEntry()
			s.sessions[sessionID] = e
		}
		s.mu.Unlock()

		select {
		case e.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		s.mu.Lock()
		if e.evicted {
			s.mu.Unlock()
			<-e.lock
			continue
		}
		e.lastUsed = s.now()
		loaded := e.loaded
		s.mu.Unlock()

		scope := &Scope{store: s, id: sessionID, e: e}
		if !loaded {
			if err := s.rehydrate(ctx, sessionID, e); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "rehydrate failed")
				scope.Release()
				return nil, err
			}
		}
		return scope, nil
	}
}

func (s *Store) rehydrate(ctx context.Context, sessionID string, e *entry) error {
	var state *contract.State
	if s.snapshots != nil {
		loaded, err := s.snapshots.Load(ctx, sessionID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return fmt.Errorf("load snapshot for %s: %w", sessionID, err)
		default:
			state = loaded
			slog.Info("Rehydrated session from snapshot", "session_id", sessionID, "revision", loaded.Revision)
		}
	}
	s.mu.Lock()
	e.state = state
	e.loaded = true
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the committed state, nil when the session has
// no contract.
func (sc *Scope) Current() *contract.State {
	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()
	return sc.e.state.Clone()
}

// Commit replaces the committed state.
//
// # Description
//
// next.Revision must exceed the committed revision. The snapshot is written
// before the in-memory state changes, so a failed write leaves the session
// as it was.
func (sc *Scope) Commit(ctx context.Context, next *contract.State) error {
	if sc.released {
		return errors.New("commit on a released session scope")
	}
	if next == nil {
		return errors.New("commit of a nil state")
	}
	sc.store.mu.Lock()
	cur := sc.e.state
	sc.store.mu.Unlock()
	if cur != nil && next.Revision <= cur.Revision {
		return fmt.Errorf("%w: %d after %d", ErrStaleRevision, next.Revision, cur.Revision)
	}

	committed := next.Clone()
	if sc.store.snapshots != nil {
		if err := sc.store.snapshots.Save(ctx, sc.id, committed); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}

	sc.store.mu.Lock()
	sc.e.state = committed
	sc.e.lastUsed = sc.store.now()
	sc.store.mu.Unlock()
	return nil
}

// Release frees the session for the next turn. Safe to call more than once.
func (sc *Scope) Release() {
	if sc.released {
		return
	}
	sc.released = true
	sc.store.mu.Lock()
	sc.e.lastUsed = sc.store.now()
	sc.store.mu.Unlock()
	<-sc.e.lock
}

// =============================================================================
// Reads
// =============================================================================

// Get returns a copy of the committed state of sessionID without waiting
// for an in-flight turn. A session that is not resident is read from its
// snapshot but not made resident.
func (s *Store) Get(ctx context.Context, sessionID string) (*contract.State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := s.sessions[sessionID]; ok && e.loaded {
		state := e.state.Clone()
		s.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()

	if s.snapshots == nil {
		return nil, nil
	}
	state, err := s.snapshots.Load(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", sessionID, err)
	}
	return state, nil
}

// Clear drops sessionID and its snapshots. It waits for an in-flight turn.
// The result reports whether the session had a contract.
func (s *Store) Clear(ctx context.Context, sessionID string) (bool, error) {
	scope, err := s.Acquire(ctx, sessionID)
	if err != nil {
		return false, err
	}
	had := scope.e.state != nil

	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, sessionID); err != nil {
			scope.Release()
			return false, fmt.Errorf("delete snapshots: %w", err)
		}
	}

	s.mu.Lock()
	scope.e.evicted = true
	scope.e.state = nil
	if s.sessions[sessionID] == scope.e {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	scope.Release()

	slog.Info("Cleared session", "session_id", sessionID, "had_contract", had)
	return had, nil
}

// Len returns the number of resident sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// LogTurn appends rec to the turn log when a snapshot store is configured.
func (s *Store) LogTurn(ctx context.Context, rec TurnRecord) error {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots.AppendTurn(ctx, rec)
}

// Ping checks the snapshot store. A memory-only store is always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots.Ping(ctx)
}

// =============================================================================
// Eviction
// =============================================================================

// EvictIdle removes sessions unused for longer than IdleTTL. Sessions with
// a turn in flight are skipped. Returns the number evicted.
func (s *Store) EvictIdle() int {
	cutoff := s.now().Add(-s.cfg.IdleTTL)
	evicted := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		if e.lastUsed.After(cutoff) {
			continue
		}
		select {
		case e.lock <- struct{}{}:
		default:
			continue
		}
		e.evicted = true
		delete(s.sessions, id)
		<-e.lock
		evicted++
	}
	if evicted > 0 {
		slog.Info("Evicted idle sessions", "count", evicted, "resident", len(s.sessions))
	}
	return evicted
}

// StartJanitor runs EvictIdle every JanitorInterval until Stop or ctx ends.
func (s *Store) StartJanitor(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session janitor is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	slog.Info("Session janitor starting", "interval", s.cfg.JanitorInterval.String(), "idle_ttl", s.cfg.IdleTTL.String())
	go func() {
		ticker := time.NewTicker(s.cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.EvictIdle()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop halts the janitor. Safe to call more than once.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.done)
	s.running = false
}

// Close stops the janitor and closes the snapshot store.
func (s *Store) Close() error {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.snapshots != nil {
		return s.snapshots.Close()
	}
	return nil
}
