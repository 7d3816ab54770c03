// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLease/services/orchestrator"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/ingestion"
)

var (
	ingestCorpus       string
	ingestCategory     string
	ingestChunkSize    int
	ingestChunkOverlap int
	ingestTimeout      time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest --corpus <corpus> <file>...",
	Short: "Load documents into a corpus (lease_clause, law_article, common_mistake)",
	Example: `  leasecore ingest --corpus law_article owners-and-tenants-law.txt
  leasecore ingest --corpus lease_clause --chunk-size 800 model-lease.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCorpus, "corpus", "", "target corpus")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "legal category for every chunk (default: inferred)")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "chunk size in characters (default 1000)")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", 0, "chunk overlap in characters (default 100)")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Minute, "overall timeout")
	_ = ingestCmd.MarkFlagRequired("corpus")
}

// documentIngester is satisfied by *ingestion.Ingester.
type documentIngester interface {
	Ingest(ctx context.Context, doc ingestion.Document) (ingestion.Result, error)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), ingestTimeout)
	defer cancel()

	ingester, err := orchestrator.NewIngester(ctx, *cfg)
	if err != nil {
		return err
	}
	return ingestFiles(ctx, cmd, ingester, args)
}

// ingestFiles validates every file before loading any of them.
func ingestFiles(ctx context.Context, cmd *cobra.Command, ingester documentIngester, paths []string) error {
	requests := make([]datatypes.IngestRequest, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		req := datatypes.IngestRequest{
			Corpus:       ingestCorpus,
			Source:       filepath.Base(path),
			Text:         string(data),
			Category:     ingestCategory,
			ChunkSize:    ingestChunkSize,
			ChunkOverlap: ingestChunkOverlap,
		}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		requests = append(requests, req)
	}

	total := 0
	for _, req := range requests {
		res, err := ingester.Ingest(ctx, ingestion.Document{
			Corpus:       req.Corpus,
			Source:       req.Source,
			Text:         req.Text,
			Category:     req.Category,
			ChunkSize:    req.ChunkSize,
			ChunkOverlap: req.ChunkOverlap,
		})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", req.Source, err)
		}
		if res.Written < res.Chunks {
			slog.Warn("Some chunks were not written", "source", req.Source, "chunks", res.Chunks, "written", res.Written)
		}
		total += res.Written
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d chunks -> %s\n", req.Source, res.Written, res.Chunks, req.Corpus)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks from %d file(s)\n", total, len(requests))
	return nil
}
