// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dates

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DisplayLayout is the canonical rendering of a contract date.
const DisplayLayout = "02/01/2006"

// Format renders t in DisplayLayout.
func Format(t time.Time) string {
	return t.Format(DisplayLayout)
}

// arabicMonths maps normalized Egyptian and Levantine month names to months.
var arabicMonths = map[string]time.Month{
	"يناير": time.January, "كانون الثاني": time.January,
	"فبراير": time.February, "شباط": time.February,
	"مارس": time.March, "اذار": time.March,
	"ابريل": time.April, "نيسان": time.April,
	"مايو": time.May, "ايار": time.May, "ماي": time.May,
	"يونيو": time.June, "يونيه": time.June, "حزيران": time.June,
	"يوليو": time.July, "يوليه": time.July, "تموز": time.July,
	"اغسطس": time.August, "اب": time.August,
	"سبتمبر": time.September, "ايلول": time.September,
	"اكتوبر": time.October, "تشرين الاول": time.October,
	"نوفمبر": time.November, "تشرين الثاني": time.November,
	"ديسمبر": time.December, "دسمبر": time.December, "كانون الاول": time.December,
}

var englishMonths = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	numericDMY = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)
	numericYMD = regexp.MustCompile(`^(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})$`)
	namedDMY   = regexp.MustCompile(`^(\d{1,2})\s+(\p{L}+(?:\s+\p{L}+)?)\s*,?\s+(\d{4})$`)
	namedMDY   = regexp.MustCompile(`^(\p{L}+)\s+(\d{1,2}),?\s+(\d{4})$`)
	yearSuffix = regexp.MustCompile(`(\d{4})\s*م$`)
	spaces     = regexp.MustCompile(`\s+`)
)

// dateToken matches one date anywhere in free text. Built in init from the
// month tables so every spelling the parser accepts can also be extracted.
var (
	dateToken    *regexp.Regexp
	rangePattern *regexp.Regexp
)

func init() {
	names := make([]string, 0, len(arabicMonths)+len(englishMonths))
	for name := range arabicMonths {
		names = append(names, regexp.QuoteMeta(name))
	}
	for name := range englishMonths {
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest first so "كانون الثاني" wins over a shorter prefix.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	months := strings.Join(names, "|")

	token := `\d{1,2}[/.\-]\d{1,2}[/.\-]\d{4}` +
		`|\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2}` +
		`|\d{1,2}\s+(?:` + months + `)\s*,?\s+\d{4}` +
		`|(?:` + months + `)\s+\d{1,2},?\s+\d{4}`

	dateToken = regexp.MustCompile(`(?i)(?:` + token + `)`)
	rangePattern = regexp.MustCompile(`(?i)(?:من|from|term[:\s]+from)[:\s]+(` + token + `)\s+` +
		`(?:الى|حتى|لغاية|to|until|till|through)\s+(` + token + `)`)
}

// normalizeDigits maps Arabic-Indic and Eastern Arabic-Indic digits to ASCII.
func normalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

// normalizeArabic folds alef variants and drops tatweel so month names match
// regardless of hamza spelling.
func normalizeArabic(s string) string {
	r := strings.NewReplacer("أ", "ا", "إ", "ا", "آ", "ا", "ـ", "")
	return r.Replace(s)
}

func normalize(raw string) string {
	s := normalizeArabic(normalizeDigits(raw))
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	s = yearSuffix.ReplaceAllString(s, "$1")
	return s
}

// parts extracts year, month and day without checking that the day exists in
// the month. ok is false when the text matches no supported layout.
func parts(raw string) (year int, month time.Month, day int, ok bool) {
	s := normalize(raw)

	if m := numericDMY.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		return y, time.Month(mo), d, true
	}
	if m := numericYMD.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return y, time.Month(mo), d, true
	}
	if m := namedDMY.FindStringSubmatch(s); m != nil {
		if mo, found := lookupMonth(m[2]); found {
			d, _ := strconv.Atoi(m[1])
			y, _ := strconv.Atoi(m[3])
			return y, mo, d, true
		}
	}
	if m := namedMDY.FindStringSubmatch(s); m != nil {
		if mo, found := lookupMonth(m[1]); found {
			d, _ := strconv.Atoi(m[2])
			y, _ := strconv.Atoi(m[3])
			return y, mo, d, true
		}
	}
	return 0, 0, 0, false
}

func lookupMonth(name string) (time.Month, bool) {
	name = strings.TrimSpace(name)
	if m, ok := arabicMonths[name]; ok {
		return m, true
	}
	m, ok := englishMonths[strings.ToLower(name)]
	return m, ok
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// extractDates returns every date-looking token in text, in order of
// appearance. Tokens are returned in their normalized spelling.
func extractDates(text string) []string {
	return dateToken.FindAllString(normalize(text), -1)
}

// extractRange finds an explicit "from X to Y" phrase in either language.
func extractRange(text string) (start, end string, ok bool) {
	m := rangePattern.FindStringSubmatch(normalize(text))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
