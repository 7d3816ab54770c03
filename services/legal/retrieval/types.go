// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval fetches legal context for a turn.
//
// # Description
//
// Retrieval is two-stage. The query is embedded once and each requested
// corpus is searched independently for nearest neighbours. The candidates are
// merged using caller-supplied corpus weights and then reranked by a
// cross-encoder style collaborator. When the reranker fails the stage-1 order
// is returned and the result is marked degraded.
//
// # Collaborators
//
//   - Embedder: turns text into a vector.
//   - VectorStore: nearest neighbour search per corpus.
//   - Reranker: relevance scoring of the merged pool.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Hits are immutable values.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

// Corpus names one of the three disjoint document collections.
type Corpus string

const (
	CorpusLeaseClause   Corpus = "lease_clause"
	CorpusLawArticle    Corpus = "law_article"
	CorpusCommonMistake Corpus = "common_mistake"
)

// Vector store class names, one per corpus.
const (
	ClassLeaseClause   = "LeaseClause"
	ClassLawArticle    = "LawArticle"
	ClassCommonMistake = "CommonMistake"
)

// AllCorpora lists every corpus in canonical order.
var AllCorpora = []Corpus{CorpusLeaseClause, CorpusLawArticle, CorpusCommonMistake}

// Valid reports whether c is a known corpus.
func (c Corpus) Valid() bool {
	switch c {
	case CorpusLeaseClause, CorpusLawArticle, CorpusCommonMistake:
		return true
	}
	return false
}

// ClassName returns the vector store class backing the corpus.
func (c Corpus) ClassName() string {
	switch c {
	case CorpusLeaseClause:
		return ClassLeaseClause
	case CorpusLawArticle:
		return ClassLawArticle
	case CorpusCommonMistake:
		return ClassCommonMistake
	}
	return ""
}

// ParseCorpus validates a user-supplied corpus name.
func ParseCorpus(s string) (Corpus, error) {
	c := Corpus(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown corpus %q", s)
	}
	return c, nil
}

// Hit is one passage returned to the caller. Hits are never persisted.
type Hit struct {
	ID           string  `json:"id"`
	Corpus       Corpus  `json:"corpus"`
	Text         string  `json:"text"`
	Source       string  `json:"source,omitempty"`
	Category     string  `json:"category,omitempty"`
	InitialScore float64 `json:"initial_score"`
	RerankScore  float64 `json:"rerank_score"`
	Reranked     bool    `json:"reranked"`
}

// Candidate is a raw nearest-neighbour result from a VectorStore.
type Candidate struct {
	ID       string
	Text     string
	Source   string
	Category string
	Score    float64
}

// CorpusWeight pairs a corpus with its merge weight.
type CorpusWeight struct {
	Corpus Corpus
	Weight float64
}

// Request is a retrieval query. Corpus order is the merge tie-break.
type Request struct {
	Query   string
	Corpora []CorpusWeight

	// TopK bounds the returned hits. Zero uses the engine default.
	TopK int

	// CandidatesPerCorpus is N in the first stage. Zero uses the engine
	// default and it is raised above TopK when necessary.
	CandidatesPerCorpus int
}

// Result is the ordered outcome of a retrieval.
type Result struct {
	Hits []Hit `json:"hits"`

	// Degraded is set when reranking was skipped and Hits are in stage-1
	// order.
	Degraded bool `json:"degraded"`

	// DegradedReason explains a degraded result.
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// RerankResult scores one document of the pool by its index.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore searches one corpus for the k nearest neighbours of vector.
// Results are ordered by descending similarity.
type VectorStore interface {
	Search(ctx context.Context, corpus Corpus, vector []float32, k int) ([]Candidate, error)
	Ping(ctx context.Context) error
}

// Reranker returns revised relevance scores for documents against query.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}

// =============================================================================
// Errors
// =============================================================================

// ErrorKind categorizes a RetrievalError.
type ErrorKind string

const (
	// KindStoreUnavailable means the embedder or vector store could not be
	// reached. Callers continue with zero legal context.
	KindStoreUnavailable ErrorKind = "store_unavailable"
)

// RetrievalError is returned when stage 1 fails.
type RetrievalError struct {
	Kind   ErrorKind
	Corpus Corpus
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Corpus != "" {
		return fmt.Sprintf("retrieval %s (corpus %s): %v", e.Kind, e.Corpus, e.Err)
	}
	return fmt.Sprintf("retrieval %s: %v", e.Kind, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// IsRetrievalError reports whether err wraps a *RetrievalError.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}

// IsStoreUnavailable reports whether err is a store_unavailable failure.
func IsStoreUnavailable(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re) && re.Kind == KindStoreUnavailable
}
