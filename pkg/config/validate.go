// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Validate checks the configuration for errors. All problems are joined
// into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit cannot be negative"))
	}

	switch c.LLM.Backend {
	case "openai", "anthropic", "claude":
	default:
		errs = append(errs, fmt.Errorf("llm.backend %q is not one of openai, anthropic", c.LLM.Backend))
	}

	if c.Weaviate.URL != "" {
		if err := validateURL(c.Weaviate.URL); err != nil {
			errs = append(errs, fmt.Errorf("weaviate.url: %w", err))
		}
	}
	if c.Reranker.URL != "" {
		if err := validateURL(c.Reranker.URL); err != nil {
			errs = append(errs, fmt.Errorf("reranker.url: %w", err))
		}
	}

	if c.Retrieval.TopK < 0 || c.Retrieval.CandidatesPerCorpus < 0 || c.Retrieval.SearchRetries < 0 {
		errs = append(errs, errors.New("retrieval settings cannot be negative"))
	}

	if c.Legal.MinDurationDays < 0 || (c.Legal.MaxDurationDays > 0 && c.Legal.MaxDurationDays < c.Legal.MinDurationDays) {
		errs = append(errs, errors.New("legal.max_duration_days must be at least legal.min_duration_days"))
	}

	if c.Export.ArchiveEnabled {
		if c.Export.Endpoint == "" {
			errs = append(errs, errors.New("export.endpoint cannot be empty when the archive is enabled"))
		}
		if c.Export.AccessKey == "" || c.Export.SecretKey == "" {
			errs = append(errs, errors.New("export.access_key and export.secret_key are required when the archive is enabled"))
		}
		if !bucketNamePattern.MatchString(c.Export.Bucket) {
			errs = append(errs, fmt.Errorf("invalid export.bucket name: %q", c.Export.Bucket))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 bytes"))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
