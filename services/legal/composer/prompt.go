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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/manager"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
)

type promptClause struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Locked   bool   `json:"locked,omitempty"`
}

type promptHit struct {
	ID     string `json:"id"`
	Corpus string `json:"corpus"`
	Source string `json:"source,omitempty"`
	Text   string `json:"text"`
}

// promptContext is the structured context handed to the generation
// collaborator.
type promptContext struct {
	ContractType string            `json:"contract_type,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	Placeholders []string          `json:"placeholders,omitempty"`
	Clauses      []promptClause    `json:"clauses,omitempty"`
	Delta        *manager.Delta    `json:"delta,omitempty"`
	Findings     []manager.Finding `json:"findings,omitempty"`
	Corrections  []Correction      `json:"corrections,omitempty"`
	Explain      *promptClause     `json:"explain_clause,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Legal        []promptHit       `json:"legal_context"`
	Unverified   bool              `json:"unverified,omitempty"`
}

var taskText = map[intent.Kind]string{
	intent.KindGenerate: "A new lease has been drafted. Summarize it for the user and list the details that still need to be supplied.",
	intent.KindEdit:     "The lease has been edited. Confirm exactly what changed, using the delta, and nothing else.",
	intent.KindReview:   "Review the lease. Explain each finding and each correction, citing the legal context by id.",
	intent.KindExplain:  "Explain the requested clause or topic in plain language, citing the legal context by id.",
	intent.KindExport:   "The lease is ready for download. Tell the user briefly.",
}

// buildPrompt assembles the generation request.
func buildPrompt(in Input, state *contract.State, corrections []Correction, maxHits int) string {
	lang := in.Language
	var b strings.Builder

	b.WriteString("You are a legal drafting assistant for residential and commercial leases under the Jordanian Owners and Tenants Law.\n")
	fmt.Fprintf(&b, "Respond only in %s.\n", lang.Pick("Arabic", "English"))
	b.WriteString("Never suggest terms that let the landlord change locks or evict without a court order, enter without 24 hours' notice, or make the tenant waive statutory rights.\n")
	b.WriteString("Do not invent facts. Only cite legal context ids that appear below.\n\n")

	fmt.Fprintf(&b, "Task: %s\n", taskText[in.Intent.Kind])
	if p, ok := in.Intent.Review(); ok && p.Focus != "" {
		fmt.Fprintf(&b, "Focus: %s\n", p.Focus)
	}
	fmt.Fprintf(&b, "User request: %q\n\n", in.UserText)

	ctxJSON, _ := json.MarshalIndent(contextFor(in, state, corrections, maxHits), "", "  ")
	b.WriteString("Context:\n")
	b.Write(ctxJSON)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Reply with a JSON object: {\"message\": string, \"language\": %q, \"cited_hits\": [legal context ids]}\n", lang)
	return b.String()
}

func contextFor(in Input, state *contract.State, corrections []Correction, maxHits int) promptContext {
	pc := promptContext{Legal: []promptHit{}, Unverified: in.Unverified, Corrections: corrections}

	if state != nil {
		pc.ContractType = string(state.Type)
		pc.Fields = map[string]string{}
		for f, v := range state.ConcreteFields() {
			pc.Fields[string(f)] = v
		}
		for _, f := range state.PlaceholderFields() {
			pc.Placeholders = append(pc.Placeholders, string(f))
		}
		for _, c := range state.Clauses {
			pc.Clauses = append(pc.Clauses, promptClause{
				ID: c.ID, Title: c.Title, Text: state.RenderBody(c.Body), Category: string(c.Category), Locked: c.Locked,
			})
		}
	}

	if p := in.Proposal; p != nil {
		if p.Intent.Kind == intent.KindEdit && !p.Delta.Empty() {
			d := p.Delta
			pc.Delta = &d
		}
		pc.Findings = p.Findings
		pc.Topic = p.Topic
		if p.Clause != nil && state != nil {
			pc.Explain = &promptClause{
				ID: p.Clause.ID, Title: p.Clause.Title, Text: state.RenderBody(p.Clause.Body), Category: string(p.Clause.Category),
			}
			pc.Clauses = nil
		}
	}

	for i, h := range in.Hits {
		if i >= maxHits {
			break
		}
		pc.Legal = append(pc.Legal, promptHit{ID: h.ID, Corpus: string(h.Corpus), Source: h.Source, Text: h.Text})
	}
	return pc
}

// =============================================================================
// Deterministic fallback text
// =============================================================================

// fallbackMessage is used when the generation collaborator fails. It is
// built only from the state, the proposal and the retrieved context.
func fallbackMessage(in Input, state *contract.State, corrections []Correction, offered bool) string {
	lang := in.Language
	var b strings.Builder

	switch in.Intent.Kind {
	case intent.KindGenerate:
		fmt.Fprintf(&b, lang.Pick("تم إعداد %s من %d بنداً.", "Your %s has been drafted with %d clauses."), state.Title(), len(state.Clauses))
		writePlaceholders(&b, state, lang)

	case intent.KindEdit:
		b.WriteString(lang.Pick("تم تعديل العقد:", "The contract has been updated:"))
		if p := in.Proposal; p != nil {
			for _, fc := range p.Delta.Fields {
				fmt.Fprintf(&b, "\n- %s: %s", fc.Field.Label(lang), fieldText(fc.New, fc.Field, lang))
			}
			for _, cc := range p.Delta.Clauses {
				fmt.Fprintf(&b, "\n- %s %s: %s", lang.Pick("البند", "Clause"), cc.ClauseID, changeText(cc.Change, lang))
			}
		}

	case intent.KindReview:
		b.WriteString(lang.Pick("نتائج مراجعة العقد:", "Contract review findings:"))
		if p := in.Proposal; p != nil {
			for _, f := range p.Findings {
				fmt.Fprintf(&b, "\n- %s", lang.Pick(f.MessageAR, f.Message))
			}
			if len(p.Findings) == 0 {
				b.WriteString(lang.Pick("\nلم يتم العثور على ملاحظات.", "\nNo issues were found."))
			}
		}
		writeCorrections(&b, corrections, offered, lang)

	case intent.KindExplain:
		if p := in.Proposal; p != nil && p.Clause != nil {
			fmt.Fprintf(&b, "%s %s (%s):\n%s", lang.Pick("البند", "Clause"), p.Clause.ID, p.Clause.Title, state.RenderBody(p.Clause.Body))
		} else if p != nil {
			fmt.Fprintf(&b, "%s: %s", lang.Pick("الموضوع", "Topic"), p.Topic)
		}
		for i, h := range in.Hits {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "\n- %s", h.Text)
		}

	case intent.KindExport:
		b.WriteString(lang.Pick("العقد جاهز للتنزيل.", "The contract is ready for download."))
	}

	if in.Unverified {
		b.WriteString(lang.Pick(
			"\n\nتنبيه: لم يتم التحقق من هذه الإجابة مقابل النصوص القانونية لتعذر الوصول إليها.",
			"\n\nNote: this answer could not be checked against the legal sources, which were unavailable."))
	}
	return b.String()
}

func writePlaceholders(b *strings.Builder, s *contract.State, lang language.Language) {
	missing := s.PlaceholderFields()
	if len(missing) == 0 {
		return
	}
	b.WriteString(lang.Pick("\nيرجى تزويدنا بما يلي:", "\nPlease provide:"))
	for _, f := range missing {
		fmt.Fprintf(b, "\n- %s", f.Label(lang))
	}
}

func writeCorrections(b *strings.Builder, cs []Correction, offered bool, lang language.Language) {
	if len(cs) == 0 {
		return
	}
	if offered {
		b.WriteString(lang.Pick("\n\nالتصحيحات المقترحة:", "\n\nSuggested corrections:"))
	} else {
		b.WriteString(lang.Pick("\n\nتم تصحيح البنود التالية:", "\n\nThe following clauses were corrected:"))
	}
	for _, c := range cs {
		fmt.Fprintf(b, "\n- %s %s (%s): %s", lang.Pick("البند", "Clause"), c.ClauseID, strings.Join(c.RuleIDs, ", "), c.Replacement)
	}
}

func fieldText(v contract.FieldValue, f contract.FieldName, lang language.Language) string {
	if v.IsConcrete() {
		return v.Value
	}
	return f.PlaceholderLabel(lang)
}

func changeText(k manager.ClauseChangeKind, lang language.Language) string {
	switch k {
	case manager.ClauseAdded:
		return lang.Pick("أضيف", "added")
	case manager.ClauseRemoved:
		return lang.Pick("حذف", "removed")
	default:
		return lang.Pick("عدل", "changed")
	}
}

// citedHits keeps the ids the reply cited that were actually offered.
func citedHits(ids []string, hits []retrieval.Hit) []string {
	known := make(map[string]bool, len(hits))
	for _, h := range hits {
		known[h.ID] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, id := range ids {
		if known[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
