// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianLease/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/ingestion"
)

// DocumentIngester loads a document into a corpus. *ingestion.Ingester
// implements it.
type DocumentIngester interface {
	Ingest(ctx context.Context, doc ingestion.Document) (ingestion.Result, error)
}

// IngestDocument receives a document and adds it to a corpus.
//
// POST /v1/corpora/:corpus/documents with {"source": "...", "text": "..."}.
func IngestDocument(ingester DocumentIngester) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ingester == nil {
			c.JSON(http.StatusNotImplemented, datatypes.ErrorResponse{Error: "vector store is not configured"})
			return
		}

		var req datatypes.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		req.Corpus = c.Param("corpus")
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}

		res, err := ingester.Ingest(c.Request.Context(), ingestion.Document{
			Corpus:       req.Corpus,
			Source:       req.Source,
			Text:         req.Text,
			Category:     req.Category,
			ChunkSize:    req.ChunkSize,
			ChunkOverlap: req.ChunkOverlap,
		})
		if err != nil {
			slog.Error("Ingestion failed", "corpus", req.Corpus, "source", req.Source, "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "ingestion failed"})
			return
		}

		slog.Info("Successfully processed document via API", "corpus", req.Corpus, "source", req.Source, "chunks_processed", res.Written)
		c.JSON(http.StatusCreated, datatypes.IngestResponse{
			Corpus:     req.Corpus,
			Source:     req.Source,
			Chunks:     res.Written,
			IDs:        res.IDs,
			IngestedAt: time.Now().UTC(),
		})
	}
}
