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
	"errors"
	"fmt"
)

// ErrorKind categorizes a date validation failure.
type ErrorKind string

const (
	// KindUnparseable means the input is not a recognizable calendar date.
	KindUnparseable ErrorKind = "unparseable"

	// KindInvertedRange means the end date does not follow the start date.
	KindInvertedRange ErrorKind = "inverted_range"

	// KindOutOfBounds means a date or duration falls outside the allowed window.
	KindOutOfBounds ErrorKind = "out_of_bounds"
)

// DateError is the only error type returned by this package.
//
// Parser failures are folded into KindUnparseable so callers never see a raw
// strconv or time error.
type DateError struct {
	Kind        ErrorKind `json:"kind"`
	Field       string    `json:"field,omitempty"`
	Input       string    `json:"input,omitempty"`
	Message     string    `json:"message"`
	MessageAR   string    `json:"message_ar"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

func (e *DateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s date: %s", e.Field, e.Message)
	}
	return e.Message
}

// AsDateError extracts a *DateError from err's chain.
func AsDateError(err error) (*DateError, bool) {
	var de *DateError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsDateError reports whether err wraps a *DateError.
func IsDateError(err error) bool {
	_, ok := AsDateError(err)
	return ok
}

func newDateError(kind ErrorKind, field, input, en, ar string) *DateError {
	return &DateError{
		Kind:      kind,
		Field:     field,
		Input:     input,
		Message:   en,
		MessageAR: ar,
	}
}
