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
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/attribute"
)

// WeaviateStore implements VectorStore over one Weaviate class per corpus.
//
// # Description
//
// Each corpus lives in its own class (LeaseClause, LawArticle,
// CommonMistake) so the namespaces never mix. Searches request certainty,
// which is always within [0,1], as the initial score.
//
// # Thread Safety
//
// Safe for concurrent use. The Weaviate client pools connections.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore wraps a connected client.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

// Search returns the k nearest chunks of corpus to vector.
func (s *WeaviateStore) Search(ctx context.Context, corpus Corpus, vector []float32, k int) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("corpus", string(corpus)), attribute.Int("k", k))

	className := corpus.ClassName()
	if className == "" {
		return nil, fmt.Errorf("unknown corpus %q", corpus)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "category"},
		{Name: "chunk_index"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("weaviate graphql errors: %s", strings.Join(msgs, "; "))
	}

	parsed, err := ParseGraphQLResponse[CorpusQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse corpus search results", "corpus", corpus, "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	rows := parsed.Get[className]
	cands := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		cands = append(cands, Candidate{
			ID:       r.Additional.ID,
			Text:     r.Content,
			Source:   r.Source,
			Category: r.Category,
			Score:    r.Additional.Certainty,
		})
	}
	return cands, nil
}

// Ping checks that Weaviate is ready.
func (s *WeaviateStore) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate readiness check failed: %w", err)
	}
	if !ready {
		return fmt.Errorf("weaviate is not ready")
	}
	return nil
}
