// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package policy_engine

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

type Rule struct {
	ID          string      `yaml:"id"`
	Description string      `yaml:"description"`
	Priority    int         `yaml:"priority"`
	Patterns    []Pattern   `yaml:"patterns"`
	Exemptions  []string    `yaml:"exemptions"`
	Replacement Replacement `yaml:"replacement"`

	compiledExemptions []*regexp.Regexp
}

type Pattern struct {
	Id              string          `yaml:"id"`
	Description     string          `yaml:"description"`
	Regex           string          `yaml:"regex"`
	Confidence      ConfidenceLevel `yaml:"confidence"`
	compiledPattern *regexp.Regexp  `yaml:"-"`
}

// Replacement is the compliant text substituted for a violating sentence.
type Replacement struct {
	EN string `yaml:"en"`
	AR string `yaml:"ar"`
}

// For returns the replacement in lang.
func (r Replacement) For(lang language.Language) string {
	return lang.Pick(r.AR, r.EN)
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incomingConfidence := ConfidenceLevel(s)
	switch incomingConfidence {
	case High, Medium, Low:
		*c = incomingConfidence
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incomingConfidence)
	}
}

// CompileRegexes compiles every pattern and exemption and checks that each
// rule carries replacement text in both languages.
func (f *RuleFile) CompileRegexes() error {
	for i := range f.Rules {
		rule := &f.Rules[i]
		if rule.Replacement.EN == "" || rule.Replacement.AR == "" {
			return fmt.Errorf("rule %s is missing replacement text", rule.ID)
		}
		for j := range rule.Patterns {
			pattern := &rule.Patterns[j]
			re, err := regexp.Compile(pattern.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", pattern.Regex, err)
			}
			pattern.compiledPattern = re
		}
		for _, ex := range rule.Exemptions {
			re, err := regexp.Compile(ex)
			if err != nil {
				return fmt.Errorf("failed to compile the exemption %s: %w", ex, err)
			}
			rule.compiledExemptions = append(rule.compiledExemptions, re)
		}
	}
	return nil
}

func (f *RuleFile) SortByPriority() {
	sort.SliceStable(f.Rules, func(i, j int) bool {
		return f.Rules[i].Priority > f.Rules[j].Priority
	})
}

// exempt reports whether any exemption matches sentence.
func (r *Rule) exempt(sentence string) bool {
	for _, re := range r.compiledExemptions {
		if re.MatchString(sentence) {
			return true
		}
	}
	return false
}

// =============================================================================
// Evaluation types
// =============================================================================

// Origin says whether a segment is being introduced by this turn.
type Origin string

const (
	OriginNew      Origin = "new"
	OriginExisting Origin = "existing"
)

// Segment is one unit of text to vet, usually a clause or a field value.
type Segment struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Text     string `json:"text"`
	Origin   Origin `json:"origin"`
}

// Input is one evaluation request.
type Input struct {
	Action     string            `json:"action"`
	Language   language.Language `json:"language"`
	Segments   []Segment         `json:"segments"`
	Unverified bool              `json:"unverified"`
}

// Outcome is the verdict of an evaluation.
type Outcome string

const (
	OutcomeAllow   Outcome = "allow"
	OutcomeRewrite Outcome = "rewrite"
	OutcomeBlock   Outcome = "block"
)

// Violation is one rule match.
type Violation struct {
	RuleID      string          `json:"rule_id"`
	PatternID   string          `json:"pattern_id"`
	SegmentID   string          `json:"segment_id"`
	Matched     string          `json:"matched"`
	Confidence  ConfidenceLevel `json:"confidence"`
	PreExisting bool            `json:"pre_existing"`
}

// Rewrite replaces the text of one existing segment.
type Rewrite struct {
	SegmentID   string   `json:"segment_id"`
	Original    string   `json:"original"`
	Replacement string   `json:"replacement"`
	RuleIDs     []string `json:"rule_ids"`
}

// Verdict is the result of Evaluate.
type Verdict struct {
	Outcome    Outcome     `json:"outcome"`
	Violations []Violation `json:"violations,omitempty"`
	RuleIDs    []string    `json:"rule_ids"`
	Rewrites   []Rewrite   `json:"rewrites,omitempty"`
	Unverified bool        `json:"unverified"`
}

// Allowed reports whether the verdict permits the content unchanged.
func (v Verdict) Allowed() bool { return v.Outcome == OutcomeAllow }
