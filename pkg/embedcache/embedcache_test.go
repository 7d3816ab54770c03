// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), -1.5, 0}, nil
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_GetPut(t *testing.T) {
	c := openTestCache(t)

	_, ok, err := c.Get("m", "rent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put("m", "rent", []float32{0.25, -3, 1e-7}))
	vec, ok, err := c.Get("m", "rent")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{0.25, -3, 1e-7}, vec)

	_, ok, err = c.Get("other-model", "rent")
	require.NoError(t, err)
	assert.False(t, ok, "keys are namespaced by model")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCachingEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachingEmbedder(inner, openTestCache(t), "text-embedding-3-small")

	first, err := e.Embed(context.Background(), "راجع العقد")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "راجع العقد")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingEmbedder_InnerError(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("provider down")}
	e := NewCachingEmbedder(inner, openTestCache(t), "m")

	_, err := e.Embed(context.Background(), "q")
	assert.Error(t, err)

	_, err = e.Embed(context.Background(), "q")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls, "failures are not cached")
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestDecodeVector_Corrupt(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
