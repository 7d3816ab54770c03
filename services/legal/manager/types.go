// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
)

// Request is the input to Apply.
type Request struct {
	// Current is the committed contract, nil when the session has none.
	Current *contract.State

	Intent intent.Intent

	// Hits is the legal context retrieved for this turn.
	Hits []retrieval.Hit

	// Unverified is set when retrieval failed and Hits is empty.
	Unverified bool

	// Language is the language of the turn. A generated contract uses it.
	Language language.Language
}

// FieldChange records one changed field.
type FieldChange struct {
	Field contract.FieldName  `json:"field"`
	Old   contract.FieldValue `json:"old"`
	New   contract.FieldValue `json:"new"`
}

// ClauseChangeKind says how a clause changed.
type ClauseChangeKind string

const (
	ClauseAdded   ClauseChangeKind = "added"
	ClauseChanged ClauseChangeKind = "changed"
	ClauseRemoved ClauseChangeKind = "removed"
)

// ClauseChange records one added, changed or removed clause.
type ClauseChange struct {
	ClauseID string           `json:"clause_id"`
	Change   ClauseChangeKind `json:"change"`
	OldTitle string           `json:"old_title,omitempty"`
	OldBody  string           `json:"old_body,omitempty"`
	NewTitle string           `json:"new_title,omitempty"`
	NewBody  string           `json:"new_body,omitempty"`
}

// Delta is the difference between the committed and the proposed state.
type Delta struct {
	Fields  []FieldChange  `json:"fields,omitempty"`
	Clauses []ClauseChange `json:"clauses,omitempty"`
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool { return len(d.Fields) == 0 && len(d.Clauses) == 0 }

// FindingKind classifies a review finding.
type FindingKind string

const (
	// FindingIllegal marks an existing clause that breaks a safety rule.
	FindingIllegal      FindingKind = "illegal"
	FindingInvalidDates FindingKind = "invalid_dates"
	FindingRisky        FindingKind = "risky"
	FindingMissing      FindingKind = "missing"
	FindingCited        FindingKind = "cited"
)

var findingOrder = map[FindingKind]int{
	FindingIllegal:      0,
	FindingInvalidDates: 1,
	FindingRisky:        2,
	FindingMissing:      3,
	FindingCited:        4,
}

// Finding is one review observation.
type Finding struct {
	Kind      FindingKind        `json:"kind"`
	ClauseID  string             `json:"clause_id,omitempty"`
	Category  contract.Category  `json:"category,omitempty"`
	Field     contract.FieldName `json:"field,omitempty"`
	HitID     string             `json:"hit_id,omitempty"`
	RuleID    string             `json:"rule_id,omitempty"`
	Source    string             `json:"source,omitempty"`
	Message   string             `json:"message"`
	MessageAR string             `json:"message_ar"`
}

// Proposal is the state a turn would commit, plus what the turn learned.
//
// Next is always a private copy. For read-only intents it equals Base.
type Proposal struct {
	Intent   intent.Intent
	Base     *contract.State
	Next     *contract.State
	Mutating bool
	Delta    Delta

	// Findings holds review results, sorted deterministically.
	Findings []Finding

	// Unverified marks findings produced without legal context.
	Unverified bool

	// Clause is the explained clause, nil for topic questions.
	Clause *contract.Clause
	Topic  string
}
