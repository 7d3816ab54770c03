// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultClaudeModel     = "claude-sonnet-4-20250514"
	defaultClaudeMaxTokens = 4096
	anthropicSecretPath    = "/run/secrets/anthropic_api_key"
)

// AnthropicMessager is the subset of the SDK used here. Tests replace it.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicConfig configures AnthropicClient.
type AnthropicConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
}

type AnthropicClient struct {
	messages     AnthropicMessager
	model        string
	systemPrompt string
}

func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = readSecret("ANTHROPIC_API_KEY", anthropicSecretPath)
	}
	if apiKey == "" {
		slog.Warn("Anthropic API Key is missing.")
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}

	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
		slog.Info("Claude model not set, defaulting to", "model", model)
	}

	return &AnthropicClient{
		messages:     newAnthropicClient(apiKey),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	maxTokens := int64(defaultClaudeMaxTokens)
	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		maxTokens = int64(*params.MaxTokens)
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if a.systemPrompt != "" {
		req.System = []anthropic.TextBlockParam{{Text: a.systemPrompt}}
	}
	if params.Temperature != nil {
		req.Temperature = anthropic.Float(float64(*params.Temperature))
	}
	if params.TopP != nil {
		req.TopP = anthropic.Float(float64(*params.TopP))
	}
	if params.TopK != nil {
		req.TopK = anthropic.Int(int64(*params.TopK))
	}
	if len(params.Stop) > 0 {
		req.StopSequences = params.Stop
	}

	resp, err := a.messages.New(ctx, req)
	if err != nil {
		slog.Error("Anthropic API call failed", "error", err)
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
