// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package language tags user turns as Arabic or English.
//
// Detection is a script-presence heuristic: the share of Arabic-script letters
// among all letters decides the language. It is deterministic and never fails.
package language

import (
	"fmt"
	"unicode"
)

// Language is the language of a turn or a contract.
type Language string

const (
	Arabic  Language = "arabic"
	English Language = "english"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	return l == Arabic || l == English
}

// Parse converts a user-supplied label into a Language.
func Parse(s string) (Language, error) {
	switch Language(s) {
	case Arabic, English:
		return Language(s), nil
	case "ar":
		return Arabic, nil
	case "en":
		return English, nil
	default:
		return "", fmt.Errorf("unsupported language %q", s)
	}
}

// Pick returns the Arabic or English variant depending on l.
func (l Language) Pick(arabic, english string) string {
	if l == Arabic {
		return arabic
	}
	return english
}

// arabicRanges covers the Arabic, Arabic Supplement, Arabic Extended-A and
// the two presentation-form blocks.
var arabicRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0600, Hi: 0x06FF, Stride: 1},
		{Lo: 0x0750, Hi: 0x077F, Stride: 1},
		{Lo: 0x08A0, Hi: 0x08FF, Stride: 1},
		{Lo: 0xFB50, Hi: 0xFDFF, Stride: 1},
		{Lo: 0xFE70, Hi: 0xFEFF, Stride: 1},
	},
}

// Detect classifies text as Arabic or English.
//
// # Description
//
// Counts letters and the subset that fall in the Arabic script blocks. A
// strict majority of Arabic letters yields Arabic, a strict minority yields
// English. Text with no letters, or an exact tie, is ambiguous and resolves to
// fallback, which callers set to the session's last known language.
//
// # Inputs
//
//   - text: The raw user turn.
//   - fallback: Language to use for empty or ambiguous input. An invalid or
//     empty fallback resolves to English.
//
// # Outputs
//
//   - Language: Arabic or English, never empty.
func Detect(text string, fallback Language) Language {
	if !fallback.Valid() {
		fallback = English
	}

	letters, arabic := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(arabicRanges, r) {
			arabic++
		}
	}

	if letters == 0 {
		return fallback
	}

	switch twice := 2 * arabic; {
	case twice > letters:
		return Arabic
	case twice < letters:
		return English
	default:
		return fallback
	}
}
