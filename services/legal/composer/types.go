// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package composer

import (
	"context"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/manager"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

// Committer replaces the session's committed state. next.Revision is
// already set by the composer; implementations reject a revision that does
// not increase.
type Committer interface {
	Commit(ctx context.Context, next *contract.State) error
}

// Outcome is what a turn did to the session.
type Outcome string

const (
	// OutcomeCommitted means a new state was committed.
	OutcomeCommitted Outcome = "committed"

	// OutcomeRejected means the turn was refused. State is unchanged.
	OutcomeRejected Outcome = "rejected"

	// OutcomeAnswered means a read-only turn was answered.
	OutcomeAnswered Outcome = "answered"

	// OutcomeOffered means corrections were proposed but not applied.
	OutcomeOffered Outcome = "offered"
)

// ReasonCategory names why a turn was rejected.
type ReasonCategory string

const (
	ReasonIllegalClause           ReasonCategory = "illegal_clause"
	ReasonAmbiguousTarget         ReasonCategory = "ambiguous_target"
	ReasonInvalidDate             ReasonCategory = "invalid_date"
	ReasonUnsupportedRequest      ReasonCategory = "unsupported_request"
	ReasonUnknownTarget           ReasonCategory = "unknown_target"
	ReasonInvariantViolation      ReasonCategory = "invariant_violation"
	ReasonUnsupportedContractType ReasonCategory = "unsupported_contract_type"
)

// Reason explains a rejection.
type Reason struct {
	Category    ReasonCategory `json:"category"`
	Message     string         `json:"message"`
	RuleIDs     []string       `json:"rule_ids,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Correction is one safety rewrite of an existing clause.
type Correction struct {
	ClauseID    string   `json:"clause_id"`
	Original    string   `json:"original"`
	Replacement string   `json:"replacement"`
	RuleIDs     []string `json:"rule_ids"`
}

// FinalResponse is the result of one turn.
type FinalResponse struct {
	Outcome  Outcome           `json:"outcome"`
	Intent   intent.Kind       `json:"intent"`
	Language language.Language `json:"language"`
	Message  string            `json:"message"`
	Reason   *Reason           `json:"reason,omitempty"`

	Verdict     policy_engine.Outcome `json:"verdict,omitempty"`
	RuleIDs     []string              `json:"rule_ids,omitempty"`
	Corrections []Correction          `json:"corrections,omitempty"`
	Findings    []manager.Finding     `json:"findings,omitempty"`
	Delta       *manager.Delta        `json:"delta,omitempty"`

	// Contract is the rendered Markdown of the resulting state.
	Contract   string `json:"contract,omitempty"`
	ContractID string `json:"contract_id,omitempty"`
	Revision   int64  `json:"revision"`

	CitedHits []string `json:"cited_hits,omitempty"`

	// Unverified is set when the turn ran without legal context.
	Unverified bool `json:"unverified"`

	// Degraded is set when retrieval skipped reranking.
	Degraded bool `json:"degraded"`

	// GenerationFallback is set when the message is deterministic text
	// because the generation collaborator failed.
	GenerationFallback bool `json:"generation_fallback"`
}

// Input is everything the composer needs for one turn.
type Input struct {
	Intent   intent.Intent
	Hits     []retrieval.Hit
	Proposal *manager.Proposal
	Verdict  policy_engine.Verdict
	Language language.Language

	// UserText is the raw turn, quoted in the generation request.
	UserText string

	Degraded   bool
	Unverified bool
}
