// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedcache caches query embeddings in BadgerDB.
//
// Lease questions repeat heavily ("review this contract", "اشرح البند 5"),
// so the embedding of an identical query is served locally instead of
// calling the embedding provider again. Entries expire after a TTL.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the cache database.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes. A lost cache entry only costs
	// one extra embedding call, so the default is false.
	SyncWrites bool

	// TTL bounds the age of an entry. Default: 7 days.
	TTL time.Duration

	// Logger receives BadgerDB logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns the production defaults for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, TTL: 7 * 24 * time.Hour}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true, TTL: time.Hour}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Cache stores vectors keyed by model and text.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens the cache database.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &Cache{db: db, ttl: cfg.TTL}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Stats returns hit and miss counts since Open.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func cacheKey(model, text string) []byte {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return append([]byte("emb:"), sum[:]...)
}

// Get returns the cached vector, or ok=false on a miss.
func (c *Cache) Get(model, text string) ([]float32, bool, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(model, text))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := decodeVector(val)
			vec = v
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	c.hits.Add(1)
	return vec, true, nil
}

// Put stores vec with the configured TTL.
func (c *Cache) Put(model, text string, vec []float32) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(cacheKey(model, text), encodeVector(vec)).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt cache entry of %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// =============================================================================
// Caching embedder
// =============================================================================

// Embedder is the wrapped embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachingEmbedder serves embeddings from Cache and falls through to the
// wrapped provider on a miss. Cache failures never fail an embedding.
type CachingEmbedder struct {
	inner Embedder
	cache *Cache
	model string
}

// NewCachingEmbedder wraps inner. model namespaces the keys so switching
// embedding models never serves stale vectors.
func NewCachingEmbedder(inner Embedder, cache *Cache, model string) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: cache, model: model}
}

// Embed implements the embedder interface.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok, err := e.cache.Get(e.model, text); err != nil {
		slog.Warn("Embedding cache read failed", "error", err)
	} else if ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Put(e.model, text, vec); err != nil {
		slog.Warn("Embedding cache write failed", "error", err)
	}
	return vec, nil
}
