// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the generation and embedding collaborators.
//
// The core only depends on LLMClient and the embedding interfaces; the
// OpenAI and Anthropic clients are interchangeable backends.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// BatchEmbedder embeds many texts in one call. Used by ingestion.
type BatchEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Float32 returns a pointer to v, for GenerationParams.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v, for GenerationParams.
func Int(v int) *int { return &v }

// ErrEmptyResponse is returned when the backend replied with no text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// readSecret returns the value of envVar, falling back to a mounted secret
// file. An empty result means neither was set.
func readSecret(envVar, secretPath string) string {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v
	}
	if content, err := os.ReadFile(secretPath); err == nil {
		slog.Info("Read API key from mounted secret", "path", secretPath)
		return strings.TrimSpace(string(content))
	}
	return ""
}

// =============================================================================
// Structured JSON replies
// =============================================================================

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}

// GenerateJSON asks client for a JSON object, decodes it into out and runs
// validate.
//
// # Description
//
// On an empty reply, a decode failure or a validation failure the prompt is
// resent with feedback describing the problem, up to attempts times in
// total. Transport errors are not retried here; the caller owns the timeout
// and the fallback.
//
// # Inputs
//
//   - client: The generation backend.
//   - prompt: The full instruction prompt.
//   - params: Sampling parameters.
//   - out: Pointer to decode into. Zeroed before every decode, so a
//     rejected reply never leaks fields into the accepted one.
//   - validate: Checks the decoded value. May be nil.
//   - attempts: Total attempts, at least 1.
//
// # Outputs
//
//   - int: Attempts used.
//   - error: Transport error, or the last content error after all attempts.
func GenerateJSON(ctx context.Context, client LLMClient, prompt string, params GenerationParams, out any, validate func() error, attempts int) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	feedback := ""
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		raw, err := client.Generate(ctx, fullPrompt, params)
		if err != nil {
			return attempt, fmt.Errorf("generation transport failure: %w", err)
		}

		clean := StripCodeFences(raw)
		if clean == "" {
			lastErr = ErrEmptyResponse
			feedback = "Your previous response was empty. Respond with valid JSON."
			continue
		}
		resetTarget(out)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			lastErr = fmt.Errorf("invalid json: %w", err)
			feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
			continue
		}
		if validate != nil {
			if err := validate(); err != nil {
				lastErr = fmt.Errorf("failed validation: %w", err)
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
				continue
			}
		}
		return attempt, nil
	}
	return attempts, lastErr
}

// resetTarget sets the value out points to back to its zero value.
func resetTarget(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	e := v.Elem()
	if e.CanSet() {
		e.Set(reflect.Zero(e.Type()))
	}
}
