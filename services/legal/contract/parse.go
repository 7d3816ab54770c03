// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

// clauseStart matches the line that opens a clause: numbered articles and
// clauses in either language, Arabic ordinals and letter items, and bare
// numbers followed by a separator.
var clauseStart = regexp.MustCompile(`^(?:` +
	`(?:المادة|البند)\s+[0-9٠-٩]+` +
	`|المادة\s+(?:الأولى|الثانية|الثالثة|الرابعة|الخامسة|السادسة|السابعة|الثامنة|التاسعة|العاشرة)` +
	`|(?:أولاً|ثانياً|ثالثاً|رابعاً|خامساً|سادساً|سابعاً|ثامناً|تاسعاً|عاشراً)` +
	`|[أبجدهوزحطي]\s*[-–:]` +
	`|(?i:clause|article|section)\s+[0-9]+` +
	`|[0-9٠-٩]+\s*[-–:.)]` +
	`)`)

const (
	// minClauseRunes drops fragments too short to be a clause.
	minClauseRunes = 20

	// maxTitleRunes is the longest heading remainder kept as a title.
	maxTitleRunes = 80
)

// ParseClauses splits the text of an existing lease into clauses.
//
// # Description
//
// A clause starts at a line that looks like a clause heading and runs
// until the next one. Text before the first heading (the contract title and
// preamble) is dropped, as are fragments shorter than minClauseRunes.
// Markdown heading marks are ignored, so a rendered contract parses back
// into its own clauses.
//
// IDs are assigned in order from 1. A short remainder on the heading line
// becomes the title; otherwise the title is "Clause N" in lang. The
// category comes from a matching catalog title, then from keywords.
// Parsed clauses are never locked.
func ParseClauses(text string, lang language.Language) []Clause {
	var (
		blocks [][]string
		cur    []string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line == "" {
			continue
		}
		if clauseStart.MatchString(line) {
			if cur != nil {
				blocks = append(blocks, cur)
			}
			cur = []string{line}
			continue
		}
		if cur != nil {
			cur = append(cur, line)
		}
	}
	if cur != nil {
		blocks = append(blocks, cur)
	}

	var clauses []Clause
	for _, b := range blocks {
		if utf8.RuneCountInString(strings.Join(b, " ")) < minClauseRunes {
			continue
		}
		id := strconv.Itoa(len(clauses) + 1)
		title, body := splitHeading(b)
		if title == "" {
			title = lang.Pick("البند "+id, "Clause "+id)
		}
		cat, ok := catalogCategory(title)
		if !ok {
			cat = InferCategory(title + " " + body)
		}
		clauses = append(clauses, Clause{ID: id, Title: title, Body: body, Category: cat})
	}
	return clauses
}

// splitHeading separates the heading remainder from the clause text.
func splitHeading(block []string) (string, string) {
	first := block[0]
	rest := first
	if loc := clauseStart.FindStringIndex(first); loc != nil {
		rest = strings.TrimSpace(strings.TrimLeft(first[loc[1]:], " \t-–:.)"))
	}
	body := strings.Join(block[1:], " ")

	switch {
	case body == "":
		if rest == "" {
			return "", first
		}
		return "", rest
	case rest != "" && utf8.RuneCountInString(rest) <= maxTitleRunes:
		return rest, body
	case rest != "":
		return "", rest + " " + body
	}
	return "", body
}

// catalogCategory finds the category of the catalog clause titled title.
func catalogCategory(title string) (Category, bool) {
	for _, tpl := range allTemplates() {
		if strings.EqualFold(title, tpl.titleEN) || title == tpl.titleAR {
			return tpl.category, true
		}
	}
	return "", false
}

func allTemplates() []template {
	out := append([]template(nil), headClauses...)
	out = append(out, tailClauses...)
	for _, t := range []Type{TypeResidential, TypeCommercial, TypeFurnished, TypeStudent, TypeOffice, TypeOther} {
		out = append(out, typeExtras[t]...)
	}
	for _, tag := range SortedContexts(knownContextTags()) {
		out = append(out, contextExtras[tag]...)
	}
	return out
}

func knownContextTags() []string {
	tags := make([]string, 0, len(contextExtras))
	for tag := range contextExtras {
		tags = append(tags, tag)
	}
	return tags
}
