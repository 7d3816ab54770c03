// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dates parses and validates lease contract dates.
//
// # Description
//
// The validator understands Gregorian numeric layouts, Arabic (Egyptian and
// Levantine) and English month names, and Arabic-Indic digits. It enforces
// calendar existence, a reasonable year window, start-not-in-the-past for
// drafts, end-after-start, and a legal duration window.
//
// # Thread Safety
//
// Validator is immutable after construction and safe for concurrent use.
package dates

import (
	"fmt"
	"log/slog"
	"time"
)

// Mode selects how strictly the start date is checked against the reference
// date.
type Mode int

const (
	// ModeDraft is used when generating or editing: the start date must not
	// precede the contract creation date.
	ModeDraft Mode = iota

	// ModeReview is used when reviewing an existing contract: backdating is
	// allowed within Config.ReviewBackdateTolerance.
	ModeReview
)

// Config holds the validation bounds.
type Config struct {
	// MinDurationDays is the shortest lease accepted. Default: 1
	MinDurationDays int

	// MaxDurationDays is the longest lease accepted. Default: 36500
	MaxDurationDays int

	// ReviewBackdateTolerance bounds how far in the past a reviewed contract
	// may start. Zero means unlimited.
	ReviewBackdateTolerance time.Duration

	// MinYear and MaxYear bound the accepted calendar years. Default: 1900-2100
	MinYear int
	MaxYear int
}

// DefaultConfig returns the bounds used by the lease service.
func DefaultConfig() Config {
	return Config{
		MinDurationDays: 1,
		MaxDurationDays: 36500,
		MinYear:         1900,
		MaxYear:         2100,
	}
}

// Input is either a pair of structured fields or free text.
type Input struct {
	Start string
	End   string
	Text  string

	// Reference is the contract creation date. Zero means "now".
	Reference time.Time
}

// ValidatedDates is a successfully validated lease period.
type ValidatedDates struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DurationDays int       `json:"duration_days"`
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the validator's notion of "now". Used by tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// Validator checks contract dates. Construct with NewValidator.
type Validator struct {
	cfg Config
	now func() time.Time
}

// NewValidator builds a Validator, filling zero config values with defaults.
func NewValidator(cfg Config, opts ...Option) *Validator {
	def := DefaultConfig()
	if cfg.MinDurationDays <= 0 {
		cfg.MinDurationDays = def.MinDurationDays
	}
	if cfg.MaxDurationDays <= 0 {
		cfg.MaxDurationDays = def.MaxDurationDays
	}
	if cfg.MinYear == 0 {
		cfg.MinYear = def.MinYear
	}
	if cfg.MaxYear == 0 {
		cfg.MaxYear = def.MaxYear
	}
	if cfg.MaxDurationDays < cfg.MinDurationDays {
		slog.Warn("Invalid date duration bounds, using defaults",
			"min_days", cfg.MinDurationDays, "max_days", cfg.MaxDurationDays)
		cfg.MinDurationDays = def.MinDurationDays
		cfg.MaxDurationDays = def.MaxDurationDays
	}

	v := &Validator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ParseDate parses a single date in any supported layout.
//
// # Outputs
//
//   - time.Time: Midnight UTC on the parsed day.
//   - error: *DateError with KindUnparseable for unknown layouts or dates that
//     do not exist, KindOutOfBounds for years outside the window.
func (v *Validator) ParseDate(raw string) (time.Time, error) {
	return v.parseField("", raw)
}

func (v *Validator) parseField(field, raw string) (time.Time, error) {
	year, month, day, ok := parts(raw)
	if !ok {
		err := newDateError(KindUnparseable, field, raw,
			fmt.Sprintf("%q is not a recognizable date", raw),
			fmt.Sprintf("التاريخ %q غير مفهوم", raw))
		err.Suggestions = v.Suggestions(raw)
		return time.Time{}, err
	}
	if month < time.January || month > time.December || day < 1 || day > daysIn(year, month) {
		err := newDateError(KindUnparseable, field, raw,
			fmt.Sprintf("%q does not exist in the calendar", raw),
			fmt.Sprintf("التاريخ %q غير موجود في التقويم", raw))
		err.Suggestions = v.Suggestions(raw)
		return time.Time{}, err
	}
	if year < v.cfg.MinYear || year > v.cfg.MaxYear {
		return time.Time{}, newDateError(KindOutOfBounds, field, raw,
			fmt.Sprintf("year %d is outside %d-%d", year, v.cfg.MinYear, v.cfg.MaxYear),
			fmt.Sprintf("السنة %d خارج النطاق %d-%d", year, v.cfg.MinYear, v.cfg.MaxYear))
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}

// Validate checks a lease period given as fields or free text.
//
// # Description
//
// When Start and End are both set they are validated as a range. Otherwise
// Text is scanned: an explicit range phrase ("من X إلى Y", "from X to Y")
// wins, else the first two dates in order are taken as start and end. Any
// malformed date token found in Text fails the whole call.
//
// # Inputs
//
//   - in: Fields or text plus the contract creation date.
//   - mode: ModeDraft or ModeReview.
//
// # Outputs
//
//   - ValidatedDates: The parsed period.
//   - error: *DateError on any failure.
//
// # Limitations
//
//   - Two-digit years are not accepted.
func (v *Validator) Validate(in Input, mode Mode) (ValidatedDates, error) {
	start, end := in.Start, in.End
	if start == "" || end == "" {
		var err error
		start, end, err = v.rangeFromText(in.Text)
		if err != nil {
			return ValidatedDates{}, err
		}
	}
	return v.ValidateRange(start, end, mode, in.Reference)
}

func (v *Validator) rangeFromText(text string) (string, string, error) {
	for _, token := range extractDates(text) {
		if _, err := v.ParseDate(token); err != nil {
			return "", "", err
		}
	}
	if start, end, ok := extractRange(text); ok {
		return start, end, nil
	}
	found := extractDates(text)
	if len(found) < 2 {
		return "", "", newDateError(KindUnparseable, "", text,
			"no start and end date found",
			"لم يتم العثور على تاريخ بداية ونهاية")
	}
	return found[0], found[1], nil
}

// ValidateRange validates an explicit start/end pair.
//
// Checks run in a fixed order so the same input always yields the same error:
// parse start, parse end, ordering, start-vs-reference, duration.
func (v *Validator) ValidateRange(startRaw, endRaw string, mode Mode, reference time.Time) (ValidatedDates, error) {
	start, err := v.parseField("start", startRaw)
	if err != nil {
		return ValidatedDates{}, err
	}
	end, err := v.parseField("end", endRaw)
	if err != nil {
		return ValidatedDates{}, err
	}

	if !end.After(start) {
		return ValidatedDates{}, newDateError(KindInvertedRange, "end", endRaw,
			fmt.Sprintf("end date %s must follow start date %s", Format(end), Format(start)),
			fmt.Sprintf("يجب أن يكون تاريخ الانتهاء %s بعد تاريخ البدء %s", Format(end), Format(start)))
	}

	if err := v.CheckStart(start, mode, reference); err != nil {
		return ValidatedDates{}, err
	}

	days := int(end.Sub(start).Hours() / 24)
	if days < v.cfg.MinDurationDays {
		return ValidatedDates{}, newDateError(KindOutOfBounds, "end", endRaw,
			fmt.Sprintf("lease duration of %d days is shorter than %d days", days, v.cfg.MinDurationDays),
			fmt.Sprintf("مدة الإيجار %d يوم أقصر من الحد الأدنى %d يوم", days, v.cfg.MinDurationDays))
	}
	if days > v.cfg.MaxDurationDays {
		return ValidatedDates{}, newDateError(KindOutOfBounds, "end", endRaw,
			fmt.Sprintf("lease duration of %d days (%d years) exceeds %d years", days, days/365, v.cfg.MaxDurationDays/365),
			fmt.Sprintf("مدة الإيجار %d يوم (%d سنة) تتجاوز %d سنة", days, days/365, v.cfg.MaxDurationDays/365))
	}

	return ValidatedDates{Start: start, End: end, DurationDays: days}, nil
}

// CheckStart applies the start-date rule for mode against reference.
func (v *Validator) CheckStart(start time.Time, mode Mode, reference time.Time) error {
	ref := v.referenceDay(reference)

	switch mode {
	case ModeDraft:
		if start.Before(ref) {
			return newDateError(KindOutOfBounds, "start", Format(start),
				fmt.Sprintf("start date %s is before the contract date %s", Format(start), Format(ref)),
				fmt.Sprintf("تاريخ البدء %s يسبق تاريخ إنشاء العقد %s", Format(start), Format(ref)))
		}
	case ModeReview:
		tol := v.cfg.ReviewBackdateTolerance
		if tol > 0 && start.Before(ref.Add(-tol)) {
			return newDateError(KindOutOfBounds, "start", Format(start),
				fmt.Sprintf("start date %s is backdated more than %d days", Format(start), int(tol.Hours()/24)),
				fmt.Sprintf("تاريخ البدء %s يعود لأكثر من %d يوم", Format(start), int(tol.Hours()/24)))
		}
	}
	return nil
}

func (v *Validator) referenceDay(reference time.Time) time.Time {
	if reference.IsZero() {
		reference = v.now()
	}
	y, m, d := reference.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Suggestions returns human-readable hints for fixing raw.
func (v *Validator) Suggestions(raw string) []string {
	year, month, day, ok := parts(raw)
	if !ok {
		return []string{"Use the format DD/MM/YYYY (e.g. 23/02/2026)"}
	}

	var out []string
	if month < time.January || month > time.December {
		return append(out, fmt.Sprintf("Month %d is invalid; use a value between 1 and 12", int(month)))
	}

	if month == time.February && day == 29 && !isLeap(year) {
		out = append(out,
			fmt.Sprintf("February 29 does not exist in %d (not a leap year)", year),
			fmt.Sprintf("Try: 28/02/%d or 01/03/%d", year, year))
		for next := year + 1; next < year+10; next++ {
			if isLeap(next) {
				out = append(out, fmt.Sprintf("Or use a leap year: 29/02/%d", next))
				break
			}
		}
	} else if max := daysIn(year, month); day > max {
		out = append(out,
			fmt.Sprintf("Day %d is invalid for %02d/%d; the last day is %d", day, int(month), year, max),
			fmt.Sprintf("Try: %02d/%02d/%d", max, int(month), year))
	}

	if day >= 1 && day <= daysIn(year, month) {
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if t.Before(v.referenceDay(time.Time{}).AddDate(-1, 0, 0)) {
			out = append(out, fmt.Sprintf("Date %s is more than a year in the past; consider a current or future date", Format(t)))
		}
	}
	return out
}
