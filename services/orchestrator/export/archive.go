// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
)

// ArchiveConfig configures the S3-compatible export bucket.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// URLExpiry is the lifetime of presigned download URLs. Default: 24h
	URLExpiry time.Duration
}

// Stored describes an archived export.
type Stored struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

// Archiver stores rendered contracts.
type Archiver interface {
	Store(ctx context.Context, sessionID string, state *contract.State, pdf []byte) (Stored, error)
}

// Archive stores rendered PDFs in a MinIO or S3 bucket.
type Archive struct {
	client *minio.Client
	cfg    ArchiveConfig
	now    func() time.Time
}

var _ Archiver = (*Archive)(nil)

// NewArchive creates an Archive. Call EnsureBucket before the first Store.
func NewArchive(cfg ArchiveConfig) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 24 * time.Hour
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Archive{client: client, cfg: cfg, now: time.Now}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// ObjectKey is the bucket key of one exported revision.
func ObjectKey(sessionID string, state *contract.State) string {
	return fmt.Sprintf("contracts/%s/%s-r%d.pdf", sessionID, state.ID, state.Revision)
}

// Store uploads pdf and returns a presigned download URL.
func (a *Archive) Store(ctx context.Context, sessionID string, state *contract.State, pdf []byte) (Stored, error) {
	ctx, span := tracer.Start(ctx, "Archive.Store")
	defer span.End()

	key := ObjectKey(sessionID, state)
	span.SetAttributes(attribute.String("object_key", key), attribute.Int("bytes", len(pdf)))

	_, err := a.client.PutObject(ctx, a.cfg.Bucket, key, bytes.NewReader(pdf), int64(len(pdf)), minio.PutObjectOptions{
		ContentType: "application/pdf",
		UserMetadata: map[string]string{
			"contract-id": state.ID,
			"revision":    fmt.Sprint(state.Revision),
			"language":    string(state.Language),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return Stored{}, fmt.Errorf("failed to upload export: %w", err)
	}

	u, err := a.client.PresignedGetObject(ctx, a.cfg.Bucket, key, a.cfg.URLExpiry, nil)
	if err != nil {
		span.RecordError(err)
		return Stored{}, fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return Stored{Key: key, URL: u.String(), ExpiresAt: a.now().Add(a.cfg.URLExpiry)}, nil
}
