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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

var testNow = time.Date(2026, time.March, 1, 9, 30, 0, 0, time.UTC)

func testState(rev int64) *contract.State {
	return &contract.State{
		ID:        "contract-1",
		Type:      contract.TypeResidential,
		Language:  language.English,
		Clauses:   contract.BuildClauses(contract.TypeResidential, nil, language.English),
		Fields:    map[contract.FieldName]contract.FieldValue{contract.FieldCity: contract.Concrete("Amman")},
		Revision:  rev,
		CreatedAt: testNow,
	}
}

func openTestSQLite(t *testing.T) *SQLiteSnapshotStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// clock is a settable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func commit(t *testing.T, s *Store, id string, rev int64) {
	t.Helper()
	scope, err := s.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer scope.Release()
	require.NoError(t, scope.Commit(context.Background(), testState(rev)))
}

// =============================================================================
// Commit and read
// =============================================================================

func TestStore_CommitAndGet(t *testing.T) {
	s := NewStore(nil, DefaultConfig())
	ctx := context.Background()

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	commit(t, s, "s1", 1)
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testState(1), got)

	got.Clauses[0].Body = "mutated"
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Clauses[0].Body, "reads are copies")

	other, err := s.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, other, "sessions are independent")
}

func TestScope_CommitRequiresIncreasingRevision(t *testing.T) {
	s := NewStore(nil, DefaultConfig())
	commit(t, s, "s1", 2)

	scope, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer scope.Release()

	for _, rev := range []int64{1, 2} {
		err := scope.Commit(context.Background(), testState(rev))
		assert.ErrorIs(t, err, ErrStaleRevision)
	}
	require.NoError(t, scope.Commit(context.Background(), testState(3)))
	assert.Equal(t, int64(3), scope.Current().Revision)
}

func TestScope_ReleasedScopeCannotCommit(t *testing.T) {
	s := NewStore(nil, DefaultConfig())
	scope, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	scope.Release()
	scope.Release()
	assert.Error(t, scope.Commit(context.Background(), testState(1)))
}

// =============================================================================
// Serialization
// =============================================================================

func TestStore_TurnsAreSerialized(t *testing.T) {
	s := NewStore(nil, DefaultConfig())
	const turns = 20

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scope, err := s.Acquire(context.Background(), "s1")
			if !assert.NoError(t, err) {
				return
			}
			defer scope.Release()
			next := testState(1)
			if cur := scope.Current(); cur != nil {
				next.Revision = cur.Revision + 1
			}
			assert.NoError(t, scope.Commit(context.Background(), next))
		}()
	}
	wg.Wait()

	got, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(turns), got.Revision)
}

func TestStore_CancelledWaiterGivesUp(t *testing.T) {
	s := NewStore(nil, DefaultConfig())
	holder, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := s.Acquire(context.Background(), "s2")
	require.NoError(t, err, "other sessions are not blocked")
	other.Release()

	holder.Release()
	scope, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	scope.Release()
}

// =============================================================================
// Snapshots, rehydration, eviction
// =============================================================================

func TestStore_RehydratesFromSnapshots(t *testing.T) {
	db := openTestSQLite(t)
	first := NewStore(db, DefaultConfig())
	commit(t, first, "s1", 1)
	commit(t, first, "s1", 2)

	revs, err := db.Revisions(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, revs)

	restarted := NewStore(db, DefaultConfig())
	got, err := restarted.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testState(2), got)
	assert.Equal(t, 0, restarted.Len(), "reads do not make sessions resident")

	scope, err := restarted.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), scope.Current().Revision)
	assert.ErrorIs(t, scope.Commit(context.Background(), testState(2)), ErrStaleRevision)
	scope.Release()
	assert.Equal(t, 1, restarted.Len())
}

// failingSnapshots fails every write.
type failingSnapshots struct {
	*SQLiteSnapshotStore
}

func (failingSnapshots) Save(context.Context, string, *contract.State) error {
	return errors.New("disk full")
}

func TestScope_FailedSnapshotLeavesStateUnchanged(t *testing.T) {
	db := openTestSQLite(t)
	s := NewStore(failingSnapshots{db}, DefaultConfig())

	scope, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer scope.Release()
	err = scope.Commit(context.Background(), testState(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Nil(t, scope.Current())
}

func TestStore_EvictIdle(t *testing.T) {
	c := &clock{now: testNow}
	db := openTestSQLite(t)
	s := NewStore(db, Config{IdleTTL: 10 * time.Minute}, WithClock(c.Now))

	commit(t, s, "idle", 1)
	c.Advance(5 * time.Minute)
	commit(t, s, "busy", 1)
	held, err := s.Acquire(context.Background(), "busy")
	require.NoError(t, err)

	c.Advance(20 * time.Minute)
	assert.Equal(t, 1, s.EvictIdle())
	assert.Equal(t, 1, s.Len())

	held.Release()
	got, err := s.Get(context.Background(), "idle")
	require.NoError(t, err)
	require.NotNil(t, got, "evicted sessions are rehydrated")
	assert.Equal(t, int64(1), got.Revision)
}

func TestStore_Clear(t *testing.T) {
	db := openTestSQLite(t)
	s := NewStore(db, DefaultConfig())
	commit(t, s, "s1", 1)

	had, err := s.Clear(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, had)

	got, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	had, err = s.Clear(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, had)

	commit(t, s, "s1", 1)
}

func TestStore_Janitor(t *testing.T) {
	c := &clock{now: testNow}
	s := NewStore(nil, Config{IdleTTL: time.Minute, JanitorInterval: 5 * time.Millisecond}, WithClock(c.Now))
	commit(t, s, "s1", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.StartJanitor(ctx))
	assert.Error(t, s.StartJanitor(ctx))

	c.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestStore_Closed(t *testing.T) {
	s := NewStore(nil, DefaultConfig())
	require.NoError(t, s.Close())
	_, err := s.Acquire(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLite_TurnLog(t *testing.T) {
	db := openTestSQLite(t)
	s := NewStore(db, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, s.LogTurn(ctx, TurnRecord{SessionID: "s1", Intent: "generate_contract", Outcome: "committed", Verdict: "allow", Revision: 1, Latency: 1500 * time.Millisecond, CreatedAt: testNow}))
	require.NoError(t, s.LogTurn(ctx, TurnRecord{SessionID: "s1", Intent: "edit_contract", Outcome: "rejected", Verdict: "block", RuleIDs: []string{"LOCK_CHANGE_WITHOUT_COURT_ORDER"}, Revision: 1}))
	require.NoError(t, s.LogTurn(ctx, TurnRecord{SessionID: "s2", Intent: "review_contract", Outcome: "rejected"}))

	turns, err := db.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "generate_contract", turns[0].Intent)
	assert.Equal(t, 1500*time.Millisecond, turns[0].Latency)
	assert.Equal(t, testNow, turns[0].CreatedAt)
	assert.Nil(t, turns[0].RuleIDs)
	assert.Equal(t, []string{"LOCK_CHANGE_WITHOUT_COURT_ORDER"}, turns[1].RuleIDs)
	assert.NoError(t, s.Ping(ctx))
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"s1", true},
		{"3f2b9a1c-7d4e-4b8a-9c0d-1e2f3a4b5c6d", true},
		{"user:42.chat_1", true},
		{"", false},
		{"-leading", false},
		{"has space", false},
		{"../etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidID(tt.id))
		})
	}
}
