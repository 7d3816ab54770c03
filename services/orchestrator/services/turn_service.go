// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers and the MCP server. Services are:
//   - Testable: Dependencies are injected via constructors
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/composer"
	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/manager"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
	"github.com/AleutianAI/AleutianLease/services/legal/session"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

// turnTracer is the OpenTelemetry tracer for TurnService operations.
var turnTracer = otel.Tracer("leasecore.orchestrator.services.turn")

// MaxTurnRunes bounds the length of one user turn.
const MaxTurnRunes = 8000

// MaxContractRunes bounds the length of a loaded lease.
const MaxContractRunes = 200000

var (
	// ErrInvalidSessionID is returned for a missing or malformed session ID.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrEmptyTurn is returned for an empty or oversized turn.
	ErrEmptyTurn = errors.New("turn text is empty or too long")

	// ErrNoContract is returned by reads of a session without a contract.
	ErrNoContract = errors.New("no contract in session")

	// ErrInvalidContractText is returned for an empty or oversized lease
	// passed to LoadContract.
	ErrInvalidContractText = errors.New("contract text is empty or too long")
)

// =============================================================================
// Collaborators
// =============================================================================

// Classifier maps a turn to an intent. *intent.Router implements it.
type Classifier interface {
	Classify(ctx context.Context, text string, lang language.Language, current *contract.State) intent.Intent
}

// Retriever fetches legal context. *retrieval.Engine implements it.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (retrieval.Result, error)
	Ping(ctx context.Context) error
}

// HealthStatus is the aggregate service health. It never reflects the
// state of any one session.
type HealthStatus struct {
	Status      string `json:"status"`
	VectorStore string `json:"vector_store"`
	Snapshots   string `json:"snapshots"`
	Sessions    int    `json:"sessions"`
}

// TurnServiceDeps wires a TurnService.
type TurnServiceDeps struct {
	Classifier Classifier

	// Retriever may be nil, in which case every turn that needs legal
	// context runs unverified.
	Retriever Retriever

	Manager  *manager.Manager
	Safety   *policy_engine.PolicyEngine
	Composer *composer.Composer
	Sessions *session.Store

	// Metrics may be nil.
	Metrics *observability.TurnMetrics
}

// TurnService runs the per-turn pipeline.
//
// # Description
//
// One turn runs under the session's lock: detect language, classify,
// screen the request, retrieve legal context, propose, vet the proposal,
// compose and commit. Every domain failure becomes a FinalResponse with a
// reason; only invalid input and cancellation are returned as errors.
//
// # Thread Safety
//
// Safe for concurrent use. Turns for one session are serialized, turns for
// different sessions run in parallel.
type TurnService struct {
	deps TurnServiceDeps
	now  func() time.Time
}

// NewTurnService creates a TurnService.
func NewTurnService(deps TurnServiceDeps) *TurnService {
	return &TurnService{deps: deps, now: time.Now}
}

// HandleTurn processes one user turn.
//
// # Inputs
//
//   - ctx: Cancels the turn. A turn cancelled before commit leaves the
//     session untouched.
//   - sessionID: Must satisfy session.ValidID.
//   - text: The user's message.
//
// # Outputs
//
//   - *composer.FinalResponse: The outcome, including rejections.
//   - error: ErrInvalidSessionID, ErrEmptyTurn, a context error, or a
//     persistence failure.
func (s *TurnService) HandleTurn(ctx context.Context, sessionID, text string) (*composer.FinalResponse, error) {
	ctx, span := turnTracer.Start(ctx, "TurnService.HandleTurn")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	if !session.ValidID(sessionID) {
		return nil, ErrInvalidSessionID
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > MaxTurnRunes {
		return nil, ErrEmptyTurn
	}

	start := s.now()
	scope, err := s.deps.Sessions.Acquire(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session unavailable")
		return nil, err
	}
	defer scope.Release()

	current := scope.Current()
	resp, err := s.run(ctx, scope, current, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("intent", string(resp.Intent)),
		attribute.String("outcome", string(resp.Outcome)),
		attribute.Int64("revision", resp.Revision),
	)
	s.record(ctx, sessionID, start, resp)
	return resp, nil
}

// record updates the metrics and the turn log for a finished turn.
func (s *TurnService) record(ctx context.Context, sessionID string, start time.Time, resp *composer.FinalResponse) {
	elapsed := s.now().Sub(start)
	s.deps.Metrics.RecordTurn(string(resp.Intent), string(resp.Outcome), elapsed.Seconds())
	if resp.Outcome == composer.OutcomeCommitted {
		s.deps.Metrics.RecordCommit(string(resp.Intent))
	}
	s.deps.Metrics.SetActiveSessions(s.deps.Sessions.Len())

	if err := s.deps.Sessions.LogTurn(ctx, session.TurnRecord{
		SessionID: sessionID,
		Intent:    string(resp.Intent),
		Outcome:   string(resp.Outcome),
		Verdict:   string(resp.Verdict),
		RuleIDs:   resp.RuleIDs,
		Revision:  resp.Revision,
		Latency:   elapsed,
		CreatedAt: start,
	}); err != nil {
		slog.Warn("Failed to append turn log", "session_id", sessionID, "error", err)
	}

	slog.Info("Turn handled",
		"session_id", sessionID,
		"intent", resp.Intent,
		"outcome", resp.Outcome,
		"revision", resp.Revision,
		"latency_ms", elapsed.Milliseconds(),
	)
}

func (s *TurnService) run(ctx context.Context, scope *session.Scope, current *contract.State, text string) (*composer.FinalResponse, error) {
	fallback := language.English
	if current != nil && current.Language.Valid() {
		fallback = current.Language
	}
	lang := language.Detect(text, fallback)

	classifyStart := s.now()
	in := s.deps.Classifier.Classify(ctx, text, lang, current)
	s.deps.Metrics.RecordCollaborator(observability.CollaboratorClassifier, s.now().Sub(classifyStart).Seconds(), in.Kind != intent.KindUnsupported)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if screensRequest(in) {
		if v := s.deps.Safety.ScreenRequest(text, lang); v.Outcome == policy_engine.OutcomeBlock {
			s.deps.Metrics.RecordVerdict(string(v.Outcome), v.RuleIDs)
			resp := s.deps.Composer.Refuse(in, v, lang, current)
			return &resp, nil
		}
	}

	if in.Kind == intent.KindUnsupported {
		resp := composer.Unsupported(in, lang, current)
		return &resp, nil
	}

	hits, unverified, degraded, err := s.retrieve(ctx, text, in, current)
	if err != nil {
		return nil, err
	}

	proposal, err := s.deps.Manager.Apply(ctx, manager.Request{
		Current:    current,
		Intent:     in,
		Hits:       hits,
		Unverified: unverified,
		Language:   lang,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		resp := composer.Reject(in, err, lang, current)
		return &resp, nil
	}

	verdict := s.deps.Safety.Evaluate(manager.SafetyInput(proposal, lang))
	s.deps.Metrics.RecordVerdict(string(verdict.Outcome), verdict.RuleIDs)
	manager.FlagViolations(proposal, verdict)

	genStart := s.now()
	resp, err := s.deps.Composer.Compose(ctx, composer.Input{
		Intent:     in,
		Hits:       hits,
		Proposal:   proposal,
		Verdict:    verdict,
		Language:   lang,
		UserText:   text,
		Degraded:   degraded,
		Unverified: unverified,
	}, scope)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.RecordCollaborator(observability.CollaboratorGenerator, s.now().Sub(genStart).Seconds(), !resp.GenerationFallback)
	return &resp, nil
}

// screensRequest reports whether the raw request is screened before any
// work. Only generate requests are screened. An edit is vetted on its delta
// instead, so a request that quotes an illegal clause in order to remove it
// goes through.
func screensRequest(in intent.Intent) bool {
	for _, k := range []intent.Kind{in.Kind, in.Requested} {
		if k == intent.KindGenerate {
			return true
		}
	}
	return false
}

// retrieve fetches legal context for the intent. A failed or missing
// vector store yields no hits and marks the turn unverified.
func (s *TurnService) retrieve(ctx context.Context, text string, in intent.Intent, current *contract.State) ([]retrieval.Hit, bool, bool, error) {
	corpora := intent.Corpora(in.Kind)
	if len(corpora) == 0 {
		s.deps.Metrics.RecordRetrieval(observability.RetrievalSkipped)
		return nil, false, false, nil
	}
	if s.deps.Retriever == nil {
		s.deps.Metrics.RecordRetrieval(observability.RetrievalUnavailable)
		return nil, true, false, nil
	}

	start := s.now()
	res, err := s.deps.Retriever.Retrieve(ctx, retrieval.Request{
		Query:   retrievalQuery(text, in, current),
		Corpora: corpora,
	})
	s.deps.Metrics.RecordCollaborator(observability.CollaboratorRetrieval, s.now().Sub(start).Seconds(), err == nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, false, ctxErr
		}
		if !retrieval.IsStoreUnavailable(err) {
			slog.Warn("Retrieval failed, continuing without legal context", "error", err)
		}
		s.deps.Metrics.RecordRetrieval(observability.RetrievalUnavailable)
		return nil, true, false, nil
	}

	if res.Degraded {
		s.deps.Metrics.RecordRetrieval(observability.RetrievalDegraded)
	} else {
		s.deps.Metrics.RecordRetrieval(observability.RetrievalOK)
	}
	return res.Hits, false, res.Degraded, nil
}

// retrievalQuery widens the user's text with the clause being explained or
// the clause titles under review.
func retrievalQuery(text string, in intent.Intent, current *contract.State) string {
	if current == nil {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	switch in.Kind {
	case intent.KindExplain:
		if p, ok := in.Explain(); ok && p.ClauseID != "" {
			if c, _, found := current.FindClause(p.ClauseID); found {
				b.WriteString("\n" + c.Title + "\n" + current.RenderBody(c.Body))
			}
		}
	case intent.KindReview:
		for _, c := range current.Clauses {
			b.WriteString("\n" + c.Title)
		}
	}
	return b.String()
}

// =============================================================================
// Loading an existing contract
// =============================================================================

// LoadRequest carries an existing lease to load into a session.
type LoadRequest struct {
	Text string

	// ContractType is a type label or alias. Empty means "other".
	ContractType string
}

// LoadContract replaces the session's contract with an existing lease and
// reviews it.
//
// # Description
//
// Runs as a review turn under the session's lock. The lease is split into
// clauses, legal context is retrieved for their titles, and the review and
// safety filter treat every clause as existing content: an illegal clause
// is flagged and rewritten (or the rewrite offered), never refused. The
// imported contract is committed as the next revision.
//
// # Outputs
//
//   - *composer.FinalResponse: The review of the loaded contract, or a
//     rejection when the text does not yield a valid contract.
//   - error: ErrInvalidSessionID, ErrInvalidContractText, a context error,
//     or a persistence failure.
func (s *TurnService) LoadContract(ctx context.Context, sessionID string, req LoadRequest) (*composer.FinalResponse, error) {
	ctx, span := turnTracer.Start(ctx, "TurnService.LoadContract")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	if !session.ValidID(sessionID) {
		return nil, ErrInvalidSessionID
	}
	text := strings.TrimSpace(req.Text)
	if text == "" || utf8.RuneCountInString(text) > MaxContractRunes {
		return nil, ErrInvalidContractText
	}

	start := s.now()
	scope, err := s.deps.Sessions.Acquire(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session unavailable")
		return nil, err
	}
	defer scope.Release()

	resp, err := s.load(ctx, scope, scope.Current(), text, req.ContractType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("outcome", string(resp.Outcome)),
		attribute.Int64("revision", resp.Revision),
	)
	s.record(ctx, sessionID, start, resp)
	return resp, nil
}

func (s *TurnService) load(ctx context.Context, scope *session.Scope, current *contract.State, text, contractType string) (*composer.FinalResponse, error) {
	lang := language.Detect(text, language.English)
	in := intent.NewReview(intent.ReviewParams{}, 1)

	preview := &contract.State{Language: lang, Clauses: contract.ParseClauses(text, lang)}
	hits, unverified, degraded, err := s.retrieve(ctx, preview.Title(), in, preview)
	if err != nil {
		return nil, err
	}

	proposal, err := s.deps.Manager.Import(ctx, manager.ImportRequest{
		Current:      current,
		Text:         text,
		ContractType: contractType,
		Language:     lang,
		Hits:         hits,
		Unverified:   unverified,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		resp := composer.Reject(in, err, lang, current)
		return &resp, nil
	}

	verdict := s.deps.Safety.Evaluate(manager.SafetyInput(proposal, lang))
	s.deps.Metrics.RecordVerdict(string(verdict.Outcome), verdict.RuleIDs)
	manager.FlagViolations(proposal, verdict)

	genStart := s.now()
	resp, err := s.deps.Composer.Compose(ctx, composer.Input{
		Intent:     proposal.Intent,
		Hits:       hits,
		Proposal:   proposal,
		Verdict:    verdict,
		Language:   lang,
		UserText:   lang.Pick("راجع هذا العقد القائم", "Review this existing lease"),
		Degraded:   degraded,
		Unverified: unverified,
	}, scope)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.RecordCollaborator(observability.CollaboratorGenerator, s.now().Sub(genStart).Seconds(), !resp.GenerationFallback)
	return &resp, nil
}

// =============================================================================
// Reads
// =============================================================================

// GetState returns the committed contract of sessionID. It does not wait
// for an in-flight turn.
func (s *TurnService) GetState(ctx context.Context, sessionID string) (*contract.State, error) {
	if !session.ValidID(sessionID) {
		return nil, ErrInvalidSessionID
	}
	state, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNoContract
	}
	return state, nil
}

// ExportReady returns the committed contract for rendering after checking
// its invariants. It never changes the session.
func (s *TurnService) ExportReady(ctx context.Context, sessionID string) (*contract.State, error) {
	ctx, span := turnTracer.Start(ctx, "TurnService.ExportReady")
	defer span.End()

	state, err := s.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := contract.CheckInvariants(state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("contract is not ready for export: %w", err)
	}
	return state, nil
}

// ClearSession drops the session's contract. The result reports whether
// there was one.
func (s *TurnService) ClearSession(ctx context.Context, sessionID string) (bool, error) {
	if !session.ValidID(sessionID) {
		return false, ErrInvalidSessionID
	}
	had, err := s.deps.Sessions.Clear(ctx, sessionID)
	if err != nil {
		return false, err
	}
	s.deps.Metrics.SetActiveSessions(s.deps.Sessions.Len())
	return had, nil
}

// Health reports vector store and snapshot reachability and the number of
// resident sessions.
func (s *TurnService) Health(ctx context.Context) HealthStatus {
	h := HealthStatus{Status: "ok", VectorStore: "disabled", Snapshots: "ok", Sessions: s.deps.Sessions.Len()}

	if s.deps.Retriever != nil {
		h.VectorStore = "reachable"
		if err := s.deps.Retriever.Ping(ctx); err != nil {
			slog.Warn("Vector store health check failed", "error", err)
			h.VectorStore = "unreachable"
			h.Status = "degraded"
		}
	}
	if err := s.deps.Sessions.Ping(ctx); err != nil {
		slog.Warn("Snapshot store health check failed", "error", err)
		h.Snapshots = "unreachable"
		h.Status = "degraded"
	}
	return h
}
