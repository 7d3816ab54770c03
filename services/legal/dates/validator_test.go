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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.February, 1, 15, 30, 0, 0, time.UTC)

func newTestValidator(cfg Config) *Validator {
	return NewValidator(cfg, WithClock(func() time.Time { return fixedNow }))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate_Layouts(t *testing.T) {
	v := newTestValidator(DefaultConfig())

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"slash DMY", "23/02/2026", day(2026, 2, 23)},
		{"dash DMY", "23-02-2026", day(2026, 2, 23)},
		{"dot DMY", "23.02.2026", day(2026, 2, 23)},
		{"single digit DMY", "3/2/2026", day(2026, 2, 3)},
		{"ISO YMD", "2026-02-23", day(2026, 2, 23)},
		{"slash YMD", "2026/2/3", day(2026, 2, 3)},
		{"egyptian month", "23 فبراير 2026", day(2026, 2, 23)},
		{"levantine month", "23 شباط 2026", day(2026, 2, 23)},
		{"two word levantine month", "1 كانون الثاني 2027", day(2027, 1, 1)},
		{"hamza spelling", "15 أيار 2026", day(2026, 5, 15)},
		{"arabic indic digits", "٢٣/٠٢/٢٠٢٦", day(2026, 2, 23)},
		{"arabic digits with month", "٢٣ فبراير ٢٠٢٦", day(2026, 2, 23)},
		{"gregorian suffix", "23 فبراير 2026م", day(2026, 2, 23)},
		{"english DMY", "23 February 2026", day(2026, 2, 23)},
		{"english MDY", "February 23, 2026", day(2026, 2, 23)},
		{"english abbreviation", "1 Sep 2026", day(2026, 9, 1)},
		{"leap day in leap year", "29/02/2028", day(2028, 2, 29)},
		{"surrounding whitespace", "  01/03/2026 ", day(2026, 3, 1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.ParseDate(tc.raw)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseDate_Errors(t *testing.T) {
	v := newTestValidator(DefaultConfig())

	tests := []struct {
		name string
		raw  string
		kind ErrorKind
	}{
		{"free text", "next spring", KindUnparseable},
		{"empty", "", KindUnparseable},
		{"february 30", "30/02/2026", KindUnparseable},
		{"february 29 non leap", "29/02/2027", KindUnparseable},
		{"month 13", "01/13/2026", KindUnparseable},
		{"day zero", "00/01/2026", KindUnparseable},
		{"unknown month name", "23 Brumaire 2026", KindUnparseable},
		{"two digit year", "23/02/26", KindUnparseable},
		{"year too early", "01/01/1850", KindOutOfBounds},
		{"year too late", "01/01/2150", KindOutOfBounds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ParseDate(tc.raw)
			require.Error(t, err)
			de, ok := AsDateError(err)
			require.True(t, ok, "expected *DateError, got %T", err)
			assert.Equal(t, tc.kind, de.Kind)
			assert.NotEmpty(t, de.Message)
			assert.NotEmpty(t, de.MessageAR)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		in       Input
		mode     Mode
		wantKind ErrorKind
		wantDays int
	}{
		{
			name:     "structured fields",
			in:       Input{Start: "01/03/2026", End: "28/02/2027"},
			wantDays: 364,
		},
		{
			name:     "arabic range phrase",
			in:       Input{Text: "مدة العقد من 01/03/2026 إلى 01/03/2027"},
			wantDays: 365,
		},
		{
			name:     "arabic range with hatta",
			in:       Input{Text: "من 1 اذار 2026 حتى 1 اذار 2027"},
			wantDays: 365,
		},
		{
			name:     "english range phrase",
			in:       Input{Text: "The lease runs from 1 March 2026 to 1 March 2027."},
			wantDays: 365,
		},
		{
			name:     "term prefix",
			in:       Input{Text: "Term: from 2026-03-01 until 2026-09-01"},
			wantDays: 184,
		},
		{
			name:     "first two dates in order",
			in:       Input{Text: "Start 01/03/2026, ends 01/03/2027"},
			wantDays: 365,
		},
		{
			name:     "inverted range",
			in:       Input{Start: "01/03/2027", End: "01/03/2026"},
			wantKind: KindInvertedRange,
		},
		{
			name:     "same day is inverted",
			in:       Input{Start: "01/03/2026", End: "01/03/2026"},
			wantKind: KindInvertedRange,
		},
		{
			name:     "draft start in the past",
			in:       Input{Start: "01/01/2026", End: "01/01/2027"},
			wantKind: KindOutOfBounds,
		},
		{
			name:     "draft start today is allowed",
			in:       Input{Start: "01/02/2026", End: "01/02/2027"},
			wantDays: 365,
		},
		{
			name:     "draft start before explicit reference",
			in:       Input{Start: "01/03/2026", End: "01/03/2027", Reference: day(2026, 6, 1)},
			wantKind: KindOutOfBounds,
		},
		{
			name:     "review allows backdating by default",
			in:       Input{Start: "01/01/2020", End: "01/01/2021"},
			mode:     ModeReview,
			wantDays: 366,
		},
		{
			name:     "review beyond tolerance",
			cfg:      Config{ReviewBackdateTolerance: 30 * 24 * time.Hour},
			in:       Input{Start: "01/01/2025", End: "01/01/2027"},
			mode:     ModeReview,
			wantKind: KindOutOfBounds,
		},
		{
			name:     "review within tolerance",
			cfg:      Config{ReviewBackdateTolerance: 30 * 24 * time.Hour},
			in:       Input{Start: "15/01/2026", End: "15/01/2027"},
			mode:     ModeReview,
			wantDays: 365,
		},
		{
			name:     "duration above maximum",
			cfg:      Config{MaxDurationDays: 3 * 365},
			in:       Input{Start: "01/03/2026", End: "01/03/2030"},
			wantKind: KindOutOfBounds,
		},
		{
			name:     "duration below minimum",
			cfg:      Config{MinDurationDays: 30},
			in:       Input{Start: "01/03/2026", End: "15/03/2026"},
			wantKind: KindOutOfBounds,
		},
		{
			name:     "invalid token in text",
			in:       Input{Text: "من 30/02/2026 الى 01/03/2027"},
			wantKind: KindUnparseable,
		},
		{
			name:     "no dates in text",
			in:       Input{Text: "a one year lease please"},
			wantKind: KindUnparseable,
		},
		{
			name:     "single date in text",
			in:       Input{Text: "starting 01/03/2026"},
			wantKind: KindUnparseable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestValidator(tc.cfg)
			got, err := v.Validate(tc.in, tc.mode)
			if tc.wantKind != "" {
				require.Error(t, err)
				de, ok := AsDateError(err)
				require.True(t, ok)
				assert.Equal(t, tc.wantKind, de.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantDays, got.DurationDays)
			assert.True(t, got.End.After(got.Start))
		})
	}
}

func TestValidate_Idempotent(t *testing.T) {
	v := newTestValidator(DefaultConfig())
	in := Input{Text: "من ١ آذار ٢٠٢٦ إلى ١ آذار ٢٠٢٧"}

	first, err := v.Validate(in, ModeDraft)
	require.NoError(t, err)

	again, err := v.Validate(Input{Start: Format(first.Start), End: Format(first.End)}, ModeDraft)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestValidate_ErrorOrderIsStable(t *testing.T) {
	v := newTestValidator(DefaultConfig())

	// Both inverted and in the past: ordering is reported first.
	_, err := v.Validate(Input{Start: "01/01/2026", End: "01/12/2025"}, ModeDraft)
	de, ok := AsDateError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvertedRange, de.Kind)
	assert.Equal(t, "end", de.Field)
	assert.Contains(t, de.Error(), "end date")
}

func TestSuggestions(t *testing.T) {
	v := newTestValidator(DefaultConfig())

	t.Run("leap day in non leap year", func(t *testing.T) {
		s := v.Suggestions("29/02/2027")
		assert.Contains(t, s, "Try: 28/02/2027 or 01/03/2027")
		assert.Contains(t, s, "Or use a leap year: 29/02/2028")
	})

	t.Run("day overflow", func(t *testing.T) {
		s := v.Suggestions("31/04/2026")
		assert.Contains(t, s, "Try: 30/04/2026")
	})

	t.Run("invalid month", func(t *testing.T) {
		s := v.Suggestions("10/14/2026")
		require.Len(t, s, 1)
		assert.Contains(t, s[0], "Month 14")
	})

	t.Run("stale date", func(t *testing.T) {
		s := v.Suggestions("01/01/2020")
		require.Len(t, s, 1)
		assert.Contains(t, s[0], "more than a year in the past")
	})

	t.Run("unrecognized layout", func(t *testing.T) {
		s := v.Suggestions("soon")
		require.Len(t, s, 1)
		assert.Contains(t, s[0], "DD/MM/YYYY")
	})

	t.Run("attached to parse errors", func(t *testing.T) {
		_, err := v.ParseDate("30/02/2026")
		de, ok := AsDateError(err)
		require.True(t, ok)
		assert.Contains(t, de.Suggestions, "Try: 28/02/2026")
	})
}

func TestIsDateError(t *testing.T) {
	v := newTestValidator(DefaultConfig())
	_, err := v.ParseDate("nope")
	wrapped := fmt.Errorf("edit rejected: %w", err)

	assert.True(t, IsDateError(wrapped))
	assert.False(t, IsDateError(fmt.Errorf("plain")))
}

func TestNewValidator_InvalidBoundsFallBack(t *testing.T) {
	v := NewValidator(Config{MinDurationDays: 500, MaxDurationDays: 10})
	assert.Equal(t, 1, v.cfg.MinDurationDays)
	assert.Equal(t, 36500, v.cfg.MaxDurationDays)
}
