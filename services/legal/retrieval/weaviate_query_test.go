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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestParseGraphQLResponse_Corpus(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]any{
				ClassLawArticle: []any{
					map[string]any{
						"content":     "لا يجوز للمؤجر تغيير الأقفال",
						"source":      "law.txt",
						"category":    "eviction",
						"chunk_index": 3,
						"_additional": map[string]any{"id": "abc", "certainty": 0.87},
					},
				},
			},
		},
	}

	parsed, err := ParseGraphQLResponse[CorpusQueryResponse](resp)
	require.NoError(t, err)
	rows := parsed.Get[ClassLawArticle]
	require.Len(t, rows, 1)
	assert.Equal(t, "eviction", rows[0].Category)
	assert.Equal(t, 3, rows[0].ChunkIndex)
	assert.Equal(t, "abc", rows[0].Additional.ID)
	assert.InDelta(t, 0.87, rows[0].Additional.Certainty, 1e-9)
}

func TestParseGraphQLResponse_Nil(t *testing.T) {
	_, err := ParseGraphQLResponse[CorpusQueryResponse](nil)
	assert.Error(t, err)
}
