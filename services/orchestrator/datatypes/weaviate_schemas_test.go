// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"

	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestCorpusSchemas(t *testing.T) {
	tests := []struct {
		name   string
		getter func() *models.Class
		class  string
	}{
		{"lease clauses", GetLeaseClauseSchema, LeaseClauseClass},
		{"law articles", GetLawArticleSchema, LawArticleClass},
		{"common mistakes", GetCommonMistakeSchema, CommonMistakeClass},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			schema := tc.getter()
			require.NotNil(t, schema)
			assert.Equal(t, tc.class, schema.Class)
			assert.Equal(t, "none", schema.Vectorizer)

			types := map[string]string{}
			for _, p := range schema.Properties {
				require.NotEmpty(t, p.DataType)
				types[p.Name] = p.DataType[0]
			}
			assert.Equal(t, map[string]string{
				"content":     "text",
				"source":      "text",
				"category":    "text",
				"chunk_index": "int",
				"ingested_at": "number",
			}, types)
		})
	}
}

func TestCorpusSchemas_CategoryIsFilterable(t *testing.T) {
	for _, p := range GetLawArticleSchema().Properties {
		if p.Name == "category" {
			require.NotNil(t, p.IndexFilterable)
			assert.True(t, *p.IndexFilterable)
			assert.Equal(t, "field", p.Tokenization)
			return
		}
	}
	t.Fatal("category property missing")
}

func TestCorpusClass_MatchesRetrieval(t *testing.T) {
	require.Len(t, CorpusClass, len(retrieval.AllCorpora))
	for _, c := range retrieval.AllCorpora {
		t.Run(string(c), func(t *testing.T) {
			assert.Equal(t, c.ClassName(), CorpusClass[string(c)])
		})
	}
}
