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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse converts Weaviate's dynamic GraphQL data into T.
//
// # Description
//
// The response Data is a map of JSON objects. It is re-encoded and decoded
// into T, whose json tags must match the query shape.
//
// # Limitations
//
//   - Type mismatches between T and the response decode as errors; missing
//     fields decode as zero values.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, errors.New("nil GraphQL response")
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &out, nil
}

// CorpusQueryResponse is the result of a nearVector Get on one corpus
// class. Get is keyed by class name.
type CorpusQueryResponse struct {
	Get map[string][]CorpusObject `json:"Get"`
}

// CorpusObject is one chunk returned by a corpus search.
type CorpusObject struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	ChunkIndex int    `json:"chunk_index"`
	Additional struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}
