// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingestion loads legal documents into the retrieval corpora.
//
// A document is split into overlapping chunks, each chunk is tagged with a
// legal category, embedded in batches, and written to the corpus class with
// a content-derived ID so re-ingesting the same text is idempotent.
package ingestion

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/llm"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("leasecore.orchestrator.ingestion")

const (
	DefaultChunkSize  = 1000
	DefaultBatchSize  = 64
	defaultOverlapPct = 0.10
)

var (
	defaultSeparators = []string{"\n\n", "\n", ". ", "۔ ", " ", ""}

	// Statutes are split on article headings first.
	lawSeparators = []string{
		"\nArticle ", "\nالمادة ", "\nمادة ",
		"\n\n", "\n", ". ", " ", "",
	}

	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ",
		"\n\n", "\n", " ", "",
	}
)

// ObjectWriter persists chunk objects. WeaviateWriter implements it.
type ObjectWriter interface {
	WriteObjects(ctx context.Context, objects []*models.Object) (int, error)
}

// Document is one source document destined for a corpus.
type Document struct {
	Corpus string
	Source string
	Text   string

	// Category overrides per-chunk tagging when set.
	Category string

	ChunkSize    int
	ChunkOverlap int
}

// Result reports an ingested document.
type Result struct {
	Chunks  int
	Written int
	IDs     []string
}

// Ingester splits, embeds and writes documents.
type Ingester struct {
	embedder  llm.BatchEmbedder
	writer    ObjectWriter
	batchSize int
	now       func() time.Time
}

// New creates an Ingester. batchSize <= 0 uses DefaultBatchSize.
func New(embedder llm.BatchEmbedder, writer ObjectWriter, batchSize int) *Ingester {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Ingester{embedder: embedder, writer: writer, batchSize: batchSize, now: time.Now}
}

// Ingest loads doc into its corpus.
//
// # Outputs
//
//   - Result: Chunk count, objects written, and their IDs in chunk order.
//   - error: Unknown corpus, splitter or embedding failure, or a write
//     failure. Objects written before a failure stay written.
func (in *Ingester) Ingest(ctx context.Context, doc Document) (Result, error) {
	ctx, span := tracer.Start(ctx, "Ingester.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("corpus", doc.Corpus), attribute.String("source", doc.Source))

	class, ok := datatypes.CorpusClass[doc.Corpus]
	if !ok {
		return Result{}, fmt.Errorf("unknown corpus %q", doc.Corpus)
	}
	if strings.TrimSpace(doc.Source) == "" {
		return Result{}, errors.New("document source is required")
	}

	chunks, err := splitterFor(doc).SplitText(doc.Text)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("failed to split content: %w", err)
	}
	chunks = nonEmpty(chunks)
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", doc.Source)
		return Result{}, nil
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	slog.Info("Split document into chunks", "corpus", doc.Corpus, "source", doc.Source, "chunk_count", len(chunks))

	res := Result{Chunks: len(chunks), IDs: make([]string, 0, len(chunks))}
	ingestedAt := in.now().UnixMilli()

	for start := 0; start < len(chunks); start += in.batchSize {
		end := min(start+in.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := in.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embedding failed")
			return res, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return res, fmt.Errorf("embedding service returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		objects := make([]*models.Object, len(batch))
		for i, chunk := range batch {
			id := ChunkID(doc.Corpus, doc.Source, chunk)
			category := doc.Category
			if category == "" {
				category = string(contract.InferCategory(chunk))
			}
			objects[i] = &models.Object{
				Class:  class,
				ID:     strfmt.UUID(id),
				Vector: vectors[i],
				Properties: map[string]interface{}{
					"content":     chunk,
					"source":      doc.Source,
					"category":    category,
					"chunk_index": start + i,
					"ingested_at": ingestedAt,
				},
			}
			res.IDs = append(res.IDs, id)
		}

		written, err := in.writer.WriteObjects(ctx, objects)
		res.Written += written
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "write failed")
			return res, fmt.Errorf("failed to save objects: %w", err)
		}
	}

	if res.Written < res.Chunks {
		slog.Warn("Some chunks were not written", "source", doc.Source, "chunks", res.Chunks, "written", res.Written)
	}
	slog.Info("Successfully processed document", "corpus", doc.Corpus, "source", doc.Source, "chunks_processed", res.Written)
	return res, nil
}

// ChunkID derives a stable object ID from the chunk's corpus, source and
// text.
func ChunkID(corpus, source, chunk string) string {
	hash := sha256.Sum256([]byte(corpus + "\x00" + source + "\x00" + chunk))
	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}

func splitterFor(doc Document) textsplitter.TextSplitter {
	size := doc.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := doc.ChunkOverlap
	if overlap <= 0 || overlap >= size {
		overlap = int(float64(size) * defaultOverlapPct)
	}

	seps := defaultSeparators
	switch {
	case filepath.Ext(doc.Source) == ".md":
		seps = markdownSeparators
	case doc.Corpus == datatypes.CorpusLawArticle:
		seps = lawSeparators
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(seps),
	)
}

func nonEmpty(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
