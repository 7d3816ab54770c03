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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

const (
	clauseSegmentPrefix = "clause:"
	fieldSegmentPrefix  = "field:"
)

// ClauseSegmentID is the safety segment ID of a clause.
func ClauseSegmentID(id string) string { return clauseSegmentPrefix + id }

// FieldSegmentID is the safety segment ID of a field value.
func FieldSegmentID(f contract.FieldName) string { return fieldSegmentPrefix + string(f) }

// SafetyInput selects the content of p the safety filter must vet.
//
// # Description
//
//   - generate: every rendered clause, as new content.
//   - edit: only the delta. Changed and added clauses are rendered against
//     the proposed fields; changed field values are vetted on their own.
//     Untouched clauses are not scanned.
//   - review: every clause body, as existing content.
//   - explain, export, unsupported: nothing.
func SafetyInput(p *Proposal, lang language.Language) policy_engine.Input {
	in := policy_engine.Input{
		Action:     string(p.Intent.Kind),
		Language:   lang,
		Unverified: p.Unverified,
	}

	switch p.Intent.Kind {
	case intent.KindGenerate:
		for _, c := range p.Next.Clauses {
			in.Segments = append(in.Segments, clauseSegment(c, p.Next.RenderBody(c.Body), policy_engine.OriginNew))
		}
	case intent.KindEdit:
		for _, fc := range p.Delta.Fields {
			if !fc.New.IsConcrete() {
				continue
			}
			in.Segments = append(in.Segments, policy_engine.Segment{
				ID:     FieldSegmentID(fc.Field),
				Text:   fc.New.Value,
				Origin: policy_engine.OriginNew,
			})
		}
		for _, cc := range p.Delta.Clauses {
			if cc.Change == ClauseRemoved {
				continue
			}
			c, _, ok := p.Next.FindClause(cc.ClauseID)
			if !ok {
				continue
			}
			text := strings.TrimSpace(c.Title + ". " + p.Next.RenderBody(c.Body))
			in.Segments = append(in.Segments, clauseSegment(c, text, policy_engine.OriginNew))
		}
	case intent.KindReview:
		for _, c := range p.Next.Clauses {
			in.Segments = append(in.Segments, clauseSegment(c, c.Body, policy_engine.OriginExisting))
		}
	}
	return in
}

func clauseSegment(c contract.Clause, text string, origin policy_engine.Origin) policy_engine.Segment {
	return policy_engine.Segment{
		ID:       ClauseSegmentID(c.ID),
		Category: string(c.Category),
		Text:     text,
		Origin:   origin,
	}
}

// FlagViolations adds an illegal finding to p for every pre-existing
// clause the safety filter matched, then re-sorts the findings. A clause
// and rule pair is flagged once, so calling it again adds nothing.
func FlagViolations(p *Proposal, v policy_engine.Verdict) {
	flagged := make(map[[2]string]bool)
	for _, f := range p.Findings {
		if f.Kind == FindingIllegal {
			flagged[[2]string{f.ClauseID, f.RuleID}] = true
		}
	}

	added := false
	for _, vi := range v.Violations {
		if !vi.PreExisting {
			continue
		}
		id, ok := strings.CutPrefix(vi.SegmentID, clauseSegmentPrefix)
		if !ok {
			continue
		}
		key := [2]string{id, vi.RuleID}
		if flagged[key] {
			continue
		}
		flagged[key] = true
		added = true

		c, _, _ := p.Next.FindClause(id)
		p.Findings = append(p.Findings, Finding{
			Kind: FindingIllegal, ClauseID: id, Category: c.Category, RuleID: vi.RuleID,
			Message:   fmt.Sprintf("Clause %s (%s) breaks rule %s: %q", id, c.Title, vi.RuleID, vi.Matched),
			MessageAR: fmt.Sprintf("البند %s (%s) يخالف القاعدة %s: %q", id, c.Title, vi.RuleID, vi.Matched),
		})
	}
	if added {
		sortFindings(p.Findings)
	}
}

// ApplyRewrites returns a copy of p.Next with each clause rewrite applied.
//
// Every rewrite must name a clause segment. Locked clauses are left
// untouched.
func ApplyRewrites(p *Proposal, rewrites []policy_engine.Rewrite) (*contract.State, error) {
	next := p.Next.Clone()
	for _, rw := range rewrites {
		id, ok := strings.CutPrefix(rw.SegmentID, clauseSegmentPrefix)
		if !ok {
			return nil, contract.NewStateError(contract.KindUnknownTarget, rw.SegmentID,
				fmt.Sprintf("rewrite targets %q, which is not a clause", rw.SegmentID),
				fmt.Sprintf("التصحيح يستهدف %q وهو ليس بنداً", rw.SegmentID))
		}
		c, i, found := next.FindClause(id)
		if !found {
			return nil, unknownClause(id)
		}
		if c.Locked {
			continue
		}
		c.Body = rw.Replacement
		next.Clauses[i] = c
	}
	if err := contract.CheckInvariants(next); err != nil {
		return nil, err
	}
	return next, nil
}
