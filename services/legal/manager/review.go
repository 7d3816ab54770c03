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
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/dates"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
)

const snippetRunes = 160

// review cross-references the contract against the retrieved context.
//
// # Description
//
// Findings, in output order:
//   - illegal: added after the safety filter runs, see FlagViolations.
//   - invalid_dates: concrete dates that fail review-mode validation.
//   - risky: a clause whose category matches a common_mistake hit.
//   - missing: a required category with no clause, or a placeholder field.
//   - cited: law_article evidence, attached to the clause whose category it
//     matches when there is one.
//
// The proposal's state is an unchanged copy of the input.
//
// # Limitations
//
//   - Hits are matched by category tag only. Hits with no category produce
//     no risky finding.
func (m *Manager) review(req Request, _ intent.ReviewParams) *Proposal {
	s := req.Current
	var findings []Finding

	findings = append(findings, m.dateFindings(s)...)

	for _, h := range req.Hits {
		cat := contract.Category(h.Category)
		switch h.Corpus {
		case retrieval.CorpusCommonMistake:
			if cat == "" {
				continue
			}
			for _, c := range s.Clauses {
				if c.Category != cat {
					continue
				}
				findings = append(findings, Finding{
					Kind: FindingRisky, ClauseID: c.ID, Category: cat, HitID: h.ID, Source: h.Source,
					Message:   fmt.Sprintf("Clause %s (%s) matches a common drafting mistake: %s", c.ID, c.Title, snippet(h.Text)),
					MessageAR: fmt.Sprintf("البند %s (%s) يطابق خطأً شائعاً في الصياغة: %s", c.ID, c.Title, snippet(h.Text)),
				})
			}
		case retrieval.CorpusLawArticle:
			matched := false
			for _, c := range s.Clauses {
				if cat == "" || c.Category != cat {
					continue
				}
				matched = true
				findings = append(findings, Finding{
					Kind: FindingCited, ClauseID: c.ID, Category: cat, HitID: h.ID, Source: h.Source,
					Message:   fmt.Sprintf("Clause %s is governed by %s", c.ID, citation(h)),
					MessageAR: fmt.Sprintf("يخضع البند %s لـ %s", c.ID, citation(h)),
				})
			}
			if !matched {
				findings = append(findings, Finding{
					Kind: FindingCited, Category: cat, HitID: h.ID, Source: h.Source,
					Message:   fmt.Sprintf("Relevant provision: %s", citation(h)),
					MessageAR: fmt.Sprintf("نص قانوني ذو صلة: %s", citation(h)),
				})
			}
		}
	}

	for _, cat := range contract.RequiredCategories(s.Type) {
		if s.HasCategory(cat) {
			continue
		}
		findings = append(findings, Finding{
			Kind: FindingMissing, Category: cat,
			Message:   fmt.Sprintf("The contract has no %s clause", strings.ReplaceAll(string(cat), "_", " ")),
			MessageAR: fmt.Sprintf("لا يتضمن العقد بنداً بشأن %s", strings.ReplaceAll(string(cat), "_", " ")),
		})
	}
	for _, f := range s.PlaceholderFields() {
		findings = append(findings, Finding{
			Kind: FindingMissing, Field: f,
			Message:   fmt.Sprintf("%s has not been supplied", f.Label(language.English)),
			MessageAR: fmt.Sprintf("لم يتم إدخال %s", f.Label(language.Arabic)),
		})
	}

	sortFindings(findings)

	prop := readOnly(req)
	prop.Findings = findings
	return prop
}

func (m *Manager) dateFindings(s *contract.State) []Finding {
	start, end := s.Field(contract.FieldStartDate), s.Field(contract.FieldEndDate)

	var err error
	switch {
	case start.IsConcrete() && end.IsConcrete():
		_, err = m.dates.ValidateRange(start.Value, end.Value, dates.ModeReview, s.CreatedAt)
	case start.IsConcrete():
		_, err = m.parseOne("start", start.Value)
	case end.IsConcrete():
		_, err = m.parseOne("end", end.Value)
	}
	de, ok := dates.AsDateError(err)
	if !ok {
		return nil
	}
	field := contract.FieldEndDate
	if de.Field == "start" {
		field = contract.FieldStartDate
	}
	return []Finding{{
		Kind: FindingInvalidDates, Field: field,
		Message: de.Error(), MessageAR: de.MessageAR,
	}}
}

func citation(h retrieval.Hit) string {
	if h.Source != "" {
		return h.Source + ": " + snippet(h.Text)
	}
	return snippet(h.Text)
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	r := []rune(text)
	return string(r[:snippetRunes]) + "..."
}

// sortFindings orders findings by kind, clause number, category, field and
// hit, so the same review always yields the same list.
func sortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if findingOrder[a.Kind] != findingOrder[b.Kind] {
			return findingOrder[a.Kind] < findingOrder[b.Kind]
		}
		if a.ClauseID != b.ClauseID {
			return clauseLess(a.ClauseID, b.ClauseID)
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Field != b.Field {
			return fieldIndex(a.Field) < fieldIndex(b.Field)
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.HitID < b.HitID
	})
}

// clauseLess compares clause IDs numerically. Findings without a clause
// sort last.
func clauseLess(a, b string) bool {
	if a == "" || b == "" {
		return b == ""
	}
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

func fieldIndex(f contract.FieldName) int {
	for i, name := range contract.FieldOrder {
		if name == f {
			return i
		}
	}
	return len(contract.FieldOrder)
}
