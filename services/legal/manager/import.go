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
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
)

// ImportRequest is the input to Import.
type ImportRequest struct {
	// Current is the committed contract, nil when the session has none. The
	// imported contract supersedes it.
	Current *contract.State

	// Text is the full text of the existing lease.
	Text string

	// ContractType is a type label or alias. Empty means "other".
	ContractType string

	// Language of the lease. Detected from Text when not valid.
	Language language.Language

	Hits       []retrieval.Hit
	Unverified bool
}

// Import loads an existing lease and reviews it.
//
// # Description
//
// The text is split into clauses with contract.ParseClauses. Every field
// starts as a placeholder because the values live inside the clause text.
// The returned proposal is a mutating review: Next is the imported
// contract, Delta adds every clause, and Findings holds the review of the
// imported clauses. The safety filter treats all of it as existing content.
//
// # Outputs
//
//   - *Proposal: The import, ready to be vetted and committed.
//   - error: *contract.StateError for an unsupported type or text that does
//     not yield a valid contract.
func (m *Manager) Import(ctx context.Context, req ImportRequest) (*Proposal, error) {
	_, span := tracer.Start(ctx, "Manager.Import")
	defer span.End()

	p, err := m.importContract(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import rejected")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("clauses", len(p.Next.Clauses)),
		attribute.Int("findings", len(p.Findings)),
	)
	return p, nil
}

func (m *Manager) importContract(req ImportRequest) (*Proposal, error) {
	label := strings.TrimSpace(req.ContractType)
	if label == "" {
		label = string(contract.TypeOther)
	}
	t, ok := contract.ParseType(label)
	if !ok {
		return nil, contract.NewStateError(contract.KindUnsupportedType, label,
			fmt.Sprintf("unsupported contract type %q", label),
			fmt.Sprintf("نوع العقد %q غير مدعوم", label))
	}

	lang := req.Language
	if !lang.Valid() {
		lang = language.Detect(req.Text, language.English)
	}

	next := &contract.State{
		ID:        m.newID(),
		Type:      t,
		Language:  lang,
		Clauses:   contract.ParseClauses(req.Text, lang),
		Fields:    make(map[contract.FieldName]contract.FieldValue, len(contract.FieldOrder)),
		CreatedAt: m.now().UTC(),
		Contexts:  contract.SortedContexts(contract.DetectContexts(req.Text)),
	}
	if req.Current != nil {
		next.Supersedes = req.Current.ID
	}
	for _, f := range contract.FieldOrder {
		next.Fields[f] = contract.Placeholder()
	}
	if err := contract.CheckInvariants(next); err != nil {
		return nil, err
	}

	in := intent.NewReview(intent.ReviewParams{}, 1)
	reviewed := m.review(Request{Current: next, Intent: in, Hits: req.Hits, Unverified: req.Unverified}, intent.ReviewParams{})

	delta := Delta{}
	for _, c := range next.Clauses {
		delta.Clauses = append(delta.Clauses, ClauseChange{ClauseID: c.ID, Change: ClauseAdded, NewTitle: c.Title, NewBody: c.Body})
	}

	return &Proposal{
		Intent:     in,
		Base:       req.Current,
		Next:       next,
		Mutating:   true,
		Delta:      delta,
		Findings:   reviewed.Findings,
		Unverified: req.Unverified,
	}, nil
}
