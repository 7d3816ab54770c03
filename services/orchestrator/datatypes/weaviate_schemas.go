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
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// Class names of the three corpora. Each corpus is its own namespace.
const (
	LeaseClauseClass   = retrieval.ClassLeaseClause
	LawArticleClass    = retrieval.ClassLawArticle
	CommonMistakeClass = retrieval.ClassCommonMistake
)

func corpusSchema(className, description string) *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       className,
		Description: description,
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "The document the chunk was ingested from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Legal category tag attached at ingestion.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "chunk_index",
				DataType:    []string{"int"},
				Description: "Position of the chunk in its source document.",
			},
			{
				Name:        "ingested_at",
				DataType:    []string{"number"},
				Description: "Unix milliseconds of ingestion.",
			},
		},
	}
}

// GetLeaseClauseSchema holds model lease clauses.
func GetLeaseClauseSchema() *models.Class {
	return corpusSchema(LeaseClauseClass, "Model lease clauses used as drafting references.")
}

// GetLawArticleSchema holds articles of the Jordanian Owners and Tenants Law
// and related statutes.
func GetLawArticleSchema() *models.Class {
	return corpusSchema(LawArticleClass, "Articles of Jordanian landlord and tenant law.")
}

// GetCommonMistakeSchema holds known drafting mistakes and risky clauses.
func GetCommonMistakeSchema() *models.Class {
	return corpusSchema(CommonMistakeClass, "Common lease drafting mistakes and risky clauses.")
}

// EnsureWeaviateSchema creates any missing corpus class.
//
// # Description
//
// Checks each corpus class and creates the ones that do not exist. Existing
// classes are left untouched.
//
// # Outputs
//
//   - error: Non-nil if a missing class could not be created.
func EnsureWeaviateSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetLeaseClauseSchema,
		GetLawArticleSchema,
		GetCommonMistakeSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err != nil {
			slog.Info("Schema not found, creating it...", "class", class.Class)
			if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
				return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
	return nil
}
