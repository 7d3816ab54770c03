// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy_engine is the legal safety filter.
//
// It vets contract content against a fixed set of rules derived from the
// Jordanian Owners and Tenants Law. The rules are embedded in the binary and
// cannot be changed at runtime.
package policy_engine

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/policy_engine/enforcement"
)

// PolicyEngine holds the compiled rule set.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type PolicyEngine struct {
	Rules []Rule
}

// NewPolicyEngine loads the embedded rule set.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Compiles all patterns and exemptions.
// 3. Sorts rules by priority.
//
// Returns an error if the embedded YAML is malformed or contains invalid regex.
func NewPolicyEngine() (*PolicyEngine, error) {
	var ruleFile RuleFile
	if err := yaml.Unmarshal(enforcement.LeaseSafetyRules, &ruleFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded rule file: %w", err)
	}
	if err := ruleFile.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a rule: %w", err)
	}
	ruleFile.SortByPriority()
	return &PolicyEngine{Rules: ruleFile.Rules}, nil
}

// RuleIDs lists the loaded rule IDs in priority order.
func (e *PolicyEngine) RuleIDs() []string {
	ids := make([]string, len(e.Rules))
	for i, r := range e.Rules {
		ids[i] = r.ID
	}
	return ids
}

// Rule returns the rule with id.
func (e *PolicyEngine) Rule(id string) (Rule, bool) {
	for _, r := range e.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

type sentenceHit struct {
	span [2]int
	rule *Rule
}

// Evaluate vets the segments of in.
//
// # Description
//
// Every segment is split into sentences and each sentence is checked against
// every rule. Low-confidence patterns only apply when in.Unverified is set.
// A match in a new segment blocks. Otherwise matches in existing segments
// produce a rewrite: each offending sentence is replaced by the rule's
// compliant text in the segment's language, one Rewrite per segment.
//
// # Outputs
//
//   - Verdict: RuleIDs sorted and deduplicated, empty on allow.
//
// # Limitations
//
//   - Exemptions are sentence-scoped. A negation anywhere in the sentence
//     exempts it.
func (e *PolicyEngine) Evaluate(in Input) Verdict {
	v := Verdict{Outcome: OutcomeAllow, RuleIDs: []string{}, Unverified: in.Unverified}

	blocked := false
	hitsBySegment := make(map[int][]sentenceHit)
	ruleSet := map[string]bool{}

	for si, seg := range in.Segments {
		seen := map[string]bool{}
		for _, span := range sentences(seg.Text) {
			sentence := seg.Text[span[0]:span[1]]
			var first *Rule
			for ri := range e.Rules {
				rule := &e.Rules[ri]
				pattern, matched, ok := e.match(rule, sentence, in.Unverified)
				if !ok {
					continue
				}
				if first == nil {
					first = rule
				}
				ruleSet[rule.ID] = true
				if seen[rule.ID] {
					continue
				}
				seen[rule.ID] = true
				v.Violations = append(v.Violations, Violation{
					RuleID:      rule.ID,
					PatternID:   pattern.Id,
					SegmentID:   seg.ID,
					Matched:     strings.TrimSpace(matched),
					Confidence:  pattern.Confidence,
					PreExisting: seg.Origin == OriginExisting,
				})
			}
			if first == nil {
				continue
			}
			if seg.Origin != OriginExisting {
				blocked = true
			}
			hitsBySegment[si] = append(hitsBySegment[si], sentenceHit{span: span, rule: first})
		}
	}

	for id := range ruleSet {
		v.RuleIDs = append(v.RuleIDs, id)
	}
	sort.Strings(v.RuleIDs)

	switch {
	case len(v.Violations) == 0:
		return v
	case blocked:
		v.Outcome = OutcomeBlock
		return v
	}

	v.Outcome = OutcomeRewrite
	for si, seg := range in.Segments {
		hits := hitsBySegment[si]
		if len(hits) == 0 {
			continue
		}
		lang := language.Detect(seg.Text, in.Language)
		v.Rewrites = append(v.Rewrites, rewriteSegment(seg, hits, lang))
	}
	return v
}

// ScreenRequest vets a raw user request before any work is done. The
// request is treated as new content, so any match blocks.
func (e *PolicyEngine) ScreenRequest(text string, lang language.Language) Verdict {
	return e.Evaluate(Input{
		Action:   "request",
		Language: lang,
		Segments: []Segment{{ID: "request", Text: text, Origin: OriginNew}},
	})
}

func (e *PolicyEngine) match(rule *Rule, sentence string, unverified bool) (Pattern, string, bool) {
	for _, p := range rule.Patterns {
		if p.Confidence == Low && !unverified {
			continue
		}
		m := p.compiledPattern.FindString(sentence)
		if m == "" {
			continue
		}
		if rule.exempt(sentence) {
			return Pattern{}, "", false
		}
		return p, m, true
	}
	return Pattern{}, "", false
}

func rewriteSegment(seg Segment, hits []sentenceHit, lang language.Language) Rewrite {
	var (
		b      strings.Builder
		prev   int
		ruleID = map[string]bool{}
	)
	for _, h := range hits {
		gap := seg.Text[prev:h.span[0]]
		prev = h.span[1]
		if ruleID[h.rule.ID] {
			// A repeated rule drops its sentence but keeps the text before it.
			if strings.TrimSpace(gap) != "" {
				b.WriteString(strings.TrimRightFunc(gap, unicode.IsSpace))
			}
			continue
		}
		ruleID[h.rule.ID] = true
		b.WriteString(gap)
		b.WriteString(h.rule.Replacement.For(lang))
	}
	b.WriteString(seg.Text[prev:])

	ids := make([]string, 0, len(ruleID))
	for id := range ruleID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Rewrite{
		SegmentID:   seg.ID,
		Original:    seg.Text,
		Replacement: strings.TrimSpace(b.String()),
		RuleIDs:     ids,
	}
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '\n', '؟', '؛', '۔':
		return true
	}
	return false
}

// sentences returns the byte spans of the sentences in text. Each span
// starts at a non-space rune and includes its terminator, except a newline.
func sentences(text string) [][2]int {
	var out [][2]int
	start := -1
	for i, r := range text {
		if start < 0 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}
		if isTerminator(r) {
			end := i + utf8.RuneLen(r)
			if r == '\n' {
				end = i
			}
			out = append(out, [2]int{start, end})
			start = -1
		}
	}
	if start >= 0 {
		end := len(strings.TrimRightFunc(text, unicode.IsSpace))
		if end > start {
			out = append(out, [2]int{start, end})
		}
	}
	return out
}
