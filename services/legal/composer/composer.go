// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package composer turns a vetted proposal into the turn's final response.
//
// # Description
//
// The composer is the only component that commits contract state. It acts
// on the safety verdict (block, rewrite or allow), asks the generation
// collaborator for the user-facing message, vets that message, re-checks
// the state invariants and commits through the session's Committer.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/manager"
	"github.com/AleutianAI/AleutianLease/services/llm"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

var tracer = otel.Tracer("leasecore.legal.composer")

// Config controls composition.
type Config struct {
	// AutoApplyReviewRewrites commits safety rewrites of existing clauses
	// found during review. When false they are only offered.
	AutoApplyReviewRewrites bool

	// GenerationTimeout bounds the generation call including the retry.
	// Default: 60s
	GenerationTimeout time.Duration

	// Attempts is the total number of generation calls. Default: 2
	Attempts int

	Temperature float32

	// MaxTokens for the reply. Default: 2048
	MaxTokens int

	// MaxHits bounds the legal context passed to the collaborator. Default: 8
	MaxHits int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AutoApplyReviewRewrites: true,
		GenerationTimeout:       60 * time.Second,
		Attempts:                2,
		Temperature:             0.2,
		MaxTokens:               2048,
		MaxHits:                 8,
	}
}

// reply is the JSON payload requested from the generation collaborator.
type reply struct {
	Message   string   `json:"message" validate:"required,max=20000"`
	Language  string   `json:"language" validate:"required,oneof=arabic english ar en"`
	CitedHits []string `json:"cited_hits" validate:"max=32,dive,max=128"`
}

// Composer builds final responses and commits state.
//
// # Thread Safety
//
// Safe for concurrent use. Per-session ordering is the caller's concern.
type Composer struct {
	client   llm.LLMClient
	safety   *policy_engine.PolicyEngine
	cfg      Config
	validate *validator.Validate
}

// New creates a Composer. client may be nil, in which case every message is
// the deterministic fallback.
func New(client llm.LLMClient, safety *policy_engine.PolicyEngine, cfg Config) *Composer {
	def := DefaultConfig()
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = def.GenerationTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxHits <= 0 {
		cfg.MaxHits = def.MaxHits
	}
	return &Composer{client: client, safety: safety, cfg: cfg, validate: validator.New()}
}

// Compose finishes a turn.
//
// # Description
//
//  1. block: refuse, citing the rules. Nothing is generated or committed.
//  2. rewrite: apply the replacements to the proposal and commit the result
//     when AutoApplyReviewRewrites is set, otherwise offer them. An offered
//     rewrite on a mutating proposal (an imported contract) still commits
//     the proposal as it stands.
//  3. allow: mutating proposals with a non-empty delta are committed.
//
// Before committing, the generated message is vetted as new content and
// the invariants are re-checked. A failing generation falls back to
// deterministic text and never changes the commit decision.
//
// # Outputs
//
//   - FinalResponse: Always populated.
//   - error: Only a cancelled context or a Committer failure. The committed
//     state is unchanged whenever an error is returned.
func (c *Composer) Compose(ctx context.Context, in Input, committer Committer) (FinalResponse, error) {
	ctx, span := tracer.Start(ctx, "Composer.Compose")
	defer span.End()
	span.SetAttributes(
		attribute.String("intent", string(in.Intent.Kind)),
		attribute.String("verdict", string(in.Verdict.Outcome)),
	)

	p := in.Proposal
	if p == nil {
		return FinalResponse{}, errors.New("compose requires a proposal")
	}
	lang := in.Language
	if !lang.Valid() {
		lang = language.English
		in.Language = lang
	}

	if in.Verdict.Outcome == policy_engine.OutcomeBlock {
		return c.Refuse(in.Intent, in.Verdict, lang, p.Base), nil
	}

	var (
		next        *contract.State
		corrections []Correction
		offered     bool
	)
	switch in.Verdict.Outcome {
	case policy_engine.OutcomeRewrite:
		corrections = toCorrections(in.Verdict.Rewrites)
		if c.cfg.AutoApplyReviewRewrites {
			fixed, err := manager.ApplyRewrites(p, in.Verdict.Rewrites)
			if err != nil {
				return Reject(in.Intent, err, lang, p.Base), nil
			}
			next = fixed
		} else {
			offered = true
			if p.Mutating && !p.Delta.Empty() {
				next = p.Next
			}
		}
	default:
		if p.Mutating && !p.Delta.Empty() {
			next = p.Next
		}
	}

	shown := p.Next
	if next != nil {
		shown = next
	}

	msg, cited, fallback := c.message(ctx, in, shown, corrections, offered)

	if !fallback {
		if v := c.vetMessage(msg, in); v.Outcome == policy_engine.OutcomeBlock {
			span.SetAttributes(attribute.StringSlice("response.rules", v.RuleIDs))
			if next != nil {
				slog.Warn("Generated message violates the safety rules, rejecting the turn",
					"intent", in.Intent.Kind, "rules", v.RuleIDs)
				return c.Refuse(in.Intent, v, lang, p.Base), nil
			}
			slog.Warn("Generated message violates the safety rules, using fallback text",
				"intent", in.Intent.Kind, "rules", v.RuleIDs)
			msg, cited, fallback = fallbackMessage(in, shown, corrections, offered), nil, true
		}
	}

	if next != nil {
		if err := contract.CheckInvariants(next); err != nil {
			return Reject(in.Intent, err, lang, p.Base), nil
		}
		if err := ctx.Err(); err != nil {
			return FinalResponse{}, fmt.Errorf("turn cancelled before commit: %w", err)
		}

		next = next.Clone()
		next.Revision = 1
		if p.Base != nil {
			next.Revision = p.Base.Revision + 1
		}
		if err := committer.Commit(ctx, next); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit failed")
			return FinalResponse{}, fmt.Errorf("commit failed: %w", err)
		}
		span.SetAttributes(attribute.Int64("revision", next.Revision))
		shown = next
	}

	resp := FinalResponse{
		Outcome:            OutcomeAnswered,
		Intent:             in.Intent.Kind,
		Language:           lang,
		Message:            msg,
		Verdict:            in.Verdict.Outcome,
		RuleIDs:            in.Verdict.RuleIDs,
		Corrections:        corrections,
		Findings:           p.Findings,
		CitedHits:          cited,
		Unverified:         in.Unverified || p.Unverified,
		Degraded:           in.Degraded,
		GenerationFallback: fallback,
	}
	switch {
	case next != nil:
		resp.Outcome = OutcomeCommitted
	case offered:
		resp.Outcome = OutcomeOffered
	}
	if !p.Delta.Empty() && next != nil {
		d := p.Delta
		resp.Delta = &d
	}
	if shown != nil {
		resp.ContractID = shown.ID
		resp.Revision = shown.Revision
		if showsContract(in, next != nil) {
			resp.Contract = shown.Render()
		}
	}
	return resp, nil
}

// vetMessage screens a generated message as new content. Read-only turns
// may quote existing clauses, so only mutating turns are refused on a hit.
func (c *Composer) vetMessage(msg string, in Input) policy_engine.Verdict {
	return c.safety.Evaluate(policy_engine.Input{
		Action:     "response",
		Language:   in.Language,
		Segments:   []policy_engine.Segment{{ID: "response", Text: msg, Origin: policy_engine.OriginNew}},
		Unverified: in.Unverified,
	})
}

// showsContract reports whether the rendered contract belongs in the
// response.
func showsContract(in Input, committed bool) bool {
	switch in.Intent.Kind {
	case intent.KindGenerate, intent.KindExport:
		return true
	}
	return committed
}

// message asks the collaborator for the reply. It returns the deterministic
// fallback, flagged, when the collaborator is missing, fails, times out or
// keeps replying in the wrong language.
func (c *Composer) message(ctx context.Context, in Input, state *contract.State, corrections []Correction, offered bool) (string, []string, bool) {
	fallback := func(reason string, err error) (string, []string, bool) {
		slog.Warn("Using fallback response text", "intent", in.Intent.Kind, "reason", reason, "error", err)
		return fallbackMessage(in, state, corrections, offered), nil, true
	}
	if c.client == nil {
		return fallback("no generation client", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.GenerationTimeout)
	defer cancel()

	prompt := buildPrompt(in, state, corrections, c.cfg.MaxHits)
	params := llm.GenerationParams{Temperature: llm.Float32(c.cfg.Temperature), MaxTokens: llm.Int(c.cfg.MaxTokens)}

	var r reply
	validate := func() error {
		if err := c.validate.Struct(r); err != nil {
			return err
		}
		got, _ := language.Parse(r.Language)
		if got != in.Language {
			return fmt.Errorf("language is %q, the reply must be in %s", r.Language, in.Language)
		}
		if detected := language.Detect(r.Message, in.Language); detected != in.Language {
			return fmt.Errorf("message is written in %s, it must be written in %s", detected, in.Language)
		}
		return nil
	}
	if _, err := llm.GenerateJSON(ctx, c.client, prompt, params, &r, validate, c.cfg.Attempts); err != nil {
		return fallback("generation failed", err)
	}
	return strings.TrimSpace(r.Message), citedHits(r.CitedHits, in.Hits), false
}

func toCorrections(rws []policy_engine.Rewrite) []Correction {
	out := make([]Correction, 0, len(rws))
	for _, rw := range rws {
		out = append(out, Correction{
			ClauseID:    strings.TrimPrefix(rw.SegmentID, "clause:"),
			Original:    rw.Original,
			Replacement: rw.Replacement,
			RuleIDs:     rw.RuleIDs,
		})
	}
	return out
}
