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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Anthropic
// =============================================================================

type mockMessager struct {
	resp   *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (m *mockMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	m.params = params
	return m.resp, m.err
}

func withMockAnthropic(t *testing.T, m *mockMessager) {
	t.Helper()
	orig := newAnthropicClient
	newAnthropicClient = func(string) AnthropicMessager { return m }
	t.Cleanup(func() { newAnthropicClient = orig })
}

func TestAnthropicClient_Generate(t *testing.T) {
	m := &mockMessager{resp: &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: `{"message":`},
		{Type: "text", Text: `"ok"}`},
	}}}
	withMockAnthropic(t, m)

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", SystemPrompt: "lease assistant"})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "hello", GenerationParams{Temperature: Float32(0.1), MaxTokens: Int(512)})
	require.NoError(t, err)
	assert.Equal(t, `{"message":"ok"}`, out)
	assert.Equal(t, int64(512), m.params.MaxTokens)
	assert.Equal(t, anthropic.Model(defaultClaudeModel), m.params.Model)
	require.Len(t, m.params.System, 1)
	assert.Equal(t, "lease assistant", m.params.System[0].Text)
}

func TestAnthropicClient_Errors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		withMockAnthropic(t, &mockMessager{err: errors.New("529 overloaded")})
		c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k"})
		require.NoError(t, err)
		_, err = c.Generate(context.Background(), "p", GenerationParams{})
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		withMockAnthropic(t, &mockMessager{resp: &anthropic.Message{}})
		c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k"})
		require.NoError(t, err)
		_, err = c.Generate(context.Background(), "p", GenerationParams{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		_, err := NewAnthropicClient(AnthropicConfig{})
		assert.Error(t, err)
	})
}

// =============================================================================
// OpenAI
// =============================================================================

func newOpenAITestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "c1", "object": "chat.completion", "model": "gpt-4o-mini",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "مرحبا"},
					"finish_reason": "stop",
				}},
			})
		case "/v1/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			data := make([]map[string]any, len(req.Input))
			// Reverse order to check that indices are honoured.
			for i := range req.Input {
				idx := len(req.Input) - 1 - i
				data[i] = map[string]any{"object": "embedding", "index": idx, "embedding": []float32{float32(idx), 1}}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-3-small"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestOpenAIClient_Generate(t *testing.T) {
	srv := newOpenAITestServer(t)
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), "hi", GenerationParams{Temperature: Float32(0.1)})
	require.NoError(t, err)
	assert.Equal(t, "مرحبا", out)
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := newOpenAITestServer(t)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}

	one, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, one, 2)

	none, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNewOpenAIClient_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}
