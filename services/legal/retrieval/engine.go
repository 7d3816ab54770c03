// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("leasecore.legal.retrieval")

// Config tunes the engine. Zero values are replaced by DefaultConfig values.
type Config struct {
	// TopK is the default number of hits returned. Default: 8
	TopK int

	// CandidatesPerCorpus is the default stage-1 N per corpus. Default: 20
	CandidatesPerCorpus int

	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
	RerankTimeout time.Duration

	// SearchRetries is the number of extra attempts per corpus. Default: 2
	SearchRetries int

	// RetryBackoff is the delay before the first retry, doubled each time.
	RetryBackoff time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TopK:                8,
		CandidatesPerCorpus: 20,
		EmbedTimeout:        10 * time.Second,
		SearchTimeout:       5 * time.Second,
		RerankTimeout:       8 * time.Second,
		SearchRetries:       2,
		RetryBackoff:        200 * time.Millisecond,
	}
}

func applyConfigDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.CandidatesPerCorpus <= 0 {
		cfg.CandidatesPerCorpus = def.CandidatesPerCorpus
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = def.EmbedTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = def.RerankTimeout
	}
	if cfg.SearchRetries < 0 {
		cfg.SearchRetries = def.SearchRetries
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return cfg
}

// Engine runs the two-stage retrieval pipeline.
type Engine struct {
	embedder Embedder
	store    VectorStore
	reranker Reranker
	cfg      Config
}

// NewEngine wires the collaborators. reranker may be nil, in which case every
// result is degraded.
func NewEngine(embedder Embedder, store VectorStore, reranker Reranker, cfg Config) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		cfg:      applyConfigDefaults(cfg),
	}
}

// Ping checks vector store reachability.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Retrieve runs embed, per-corpus search, weighted merge and rerank.
//
// # Description
//
// Stage 1 embeds the query once and searches every requested corpus
// concurrently. Results are written by corpus index, so the merge does not
// depend on which search finished first. The merged pool is ordered by
// weighted score with the request's corpus order and then the store's own
// order as tie-breaks. Stage 2 reranks the pool; equal rerank scores keep
// the stage-1 relative order.
//
// # Inputs
//
//   - ctx: Bounds every collaborator call.
//   - req: Query, weighted corpora and limits.
//
// # Outputs
//
//   - Result: Up to TopK hits. Degraded when reranking was skipped.
//   - error: *RetrievalError when embedding or any corpus search fails.
//
// # Limitations
//
//   - Duplicate corpora in a request are searched once.
func (e *Engine) Retrieve(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Retrieve")
	defer span.End()

	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	perCorpus := req.CandidatesPerCorpus
	if perCorpus <= 0 {
		perCorpus = e.cfg.CandidatesPerCorpus
	}
	if perCorpus <= topK {
		perCorpus = topK + 1
	}

	corpora := dedupeCorpora(req.Corpora)
	span.SetAttributes(
		attribute.Int("retrieval.top_k", topK),
		attribute.Int("retrieval.candidates_per_corpus", perCorpus),
		attribute.Int("retrieval.corpora", len(corpora)),
	)
	if req.Query == "" || len(corpora) == 0 {
		return Result{Hits: []Hit{}}, nil
	}

	// Stage 1a: embed once.
	embedCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	vector, err := e.embedder.Embed(embedCtx, req.Query)
	cancel()
	if err != nil {
		rerr := &RetrievalError{Kind: KindStoreUnavailable, Err: fmt.Errorf("embed query: %w", err)}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, "embedding failed")
		return Result{}, rerr
	}

	// Stage 1b: per-corpus search.
	perCorpusHits := make([][]Candidate, len(corpora))
	g, gctx := errgroup.WithContext(ctx)
	for i, cw := range corpora {
		g.Go(func() error {
			cands, err := e.searchWithRetry(gctx, cw.Corpus, vector, perCorpus)
			if err != nil {
				return &RetrievalError{Kind: KindStoreUnavailable, Corpus: cw.Corpus, Err: err}
			}
			perCorpusHits[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		slog.Warn("Vector store unavailable, continuing without legal context", "error", err)
		return Result{}, err
	}

	pool := mergeWeighted(corpora, perCorpusHits)
	span.SetAttributes(attribute.Int("retrieval.pool_size", len(pool)))
	if len(pool) == 0 {
		return Result{Hits: []Hit{}}, nil
	}

	// Stage 2: rerank.
	if e.reranker == nil {
		return degraded(pool, topK, "reranker not configured"), nil
	}
	ranked, err := e.rerank(ctx, req.Query, pool)
	if err != nil {
		slog.Warn("Reranker unavailable, using stage-1 order", "error", err)
		span.AddEvent("rerank_degraded")
		return degraded(pool, topK, err.Error()), nil
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return Result{Hits: ranked}, nil
}

func (e *Engine) searchWithRetry(ctx context.Context, corpus Corpus, vector []float32, k int) ([]Candidate, error) {
	backoff := e.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= e.cfg.SearchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		sctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
		cands, err := e.store.Search(sctx, corpus, vector, k)
		cancel()
		if err == nil {
			if len(cands) > k {
				cands = cands[:k]
			}
			return cands, nil
		}
		lastErr = err
		slog.Debug("Vector search attempt failed", "corpus", corpus, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("search failed after %d attempts: %w", e.cfg.SearchRetries+1, lastErr)
}

func (e *Engine) rerank(ctx context.Context, query string, pool []Hit) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Engine.rerank")
	defer span.End()

	docs := make([]string, len(pool))
	for i, h := range pool {
		docs[i] = h.Text
	}

	rctx, cancel := context.WithTimeout(ctx, e.cfg.RerankTimeout)
	defer cancel()
	results, err := e.reranker.Rerank(rctx, query, docs, len(docs))
	if err != nil {
		return nil, err
	}
	if err := validatePermutation(results, len(pool)); err != nil {
		return nil, err
	}

	// Index into pool is the stage-1 position; the stable sort keeps it as
	// the tie-break for equal rerank scores.
	ordered := make([]RerankResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Index < ordered[j].Index
	})

	out := make([]Hit, len(ordered))
	for i, r := range ordered {
		h := pool[r.Index]
		h.RerankScore = r.Score
		h.Reranked = true
		out[i] = h
	}
	return out, nil
}

// validatePermutation requires every pool index exactly once.
func validatePermutation(results []RerankResult, n int) error {
	if len(results) != n {
		return fmt.Errorf("reranker returned %d results for %d documents", len(results), n)
	}
	seen := make([]bool, n)
	for _, r := range results {
		if r.Index < 0 || r.Index >= n {
			return fmt.Errorf("reranker returned out-of-range index %d", r.Index)
		}
		if seen[r.Index] {
			return fmt.Errorf("reranker returned duplicate index %d", r.Index)
		}
		seen[r.Index] = true
	}
	return nil
}

func dedupeCorpora(in []CorpusWeight) []CorpusWeight {
	seen := make(map[Corpus]bool, len(in))
	out := make([]CorpusWeight, 0, len(in))
	for _, cw := range in {
		if !cw.Corpus.Valid() || seen[cw.Corpus] {
			continue
		}
		if cw.Weight <= 0 {
			cw.Weight = 1
		}
		seen[cw.Corpus] = true
		out = append(out, cw)
	}
	return out
}

// mergeWeighted flattens per-corpus candidates into the stage-1 order.
func mergeWeighted(corpora []CorpusWeight, perCorpus [][]Candidate) []Hit {
	type ranked struct {
		hit      Hit
		weighted float64
		corpus   int
		rank     int
	}

	var all []ranked
	for ci, cands := range perCorpus {
		for ri, c := range cands {
			all = append(all, ranked{
				hit: Hit{
					ID:           c.ID,
					Corpus:       corpora[ci].Corpus,
					Text:         c.Text,
					Source:       c.Source,
					Category:     c.Category,
					InitialScore: c.Score,
				},
				weighted: c.Score * corpora[ci].Weight,
				corpus:   ci,
				rank:     ri,
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].weighted != all[j].weighted {
			return all[i].weighted > all[j].weighted
		}
		if all[i].corpus != all[j].corpus {
			return all[i].corpus < all[j].corpus
		}
		return all[i].rank < all[j].rank
	})

	hits := make([]Hit, len(all))
	for i, r := range all {
		hits[i] = r.hit
	}
	return hits
}

func degraded(pool []Hit, topK int, reason string) Result {
	if len(pool) > topK {
		pool = pool[:topK]
	}
	return Result{Hits: pool, Degraded: true, DegradedReason: reason}
}
