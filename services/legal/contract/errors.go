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
	"errors"
	"fmt"
)

// ErrorKind classifies a state change rejection.
type ErrorKind string

const (
	// KindUnsupportedType is returned when a generate request names a lease
	// type outside the supported set.
	KindUnsupportedType ErrorKind = "unsupported_contract_type"

	// KindUnknownTarget is returned when an edit or explain names a clause
	// or field that does not exist.
	KindUnknownTarget ErrorKind = "unknown_target"

	// KindInvariantViolation is returned when a change would break a state
	// invariant (clause bounds, locked clause, date order).
	KindInvariantViolation ErrorKind = "invariant_violation"
)

// StateError is a rejected state change. The committed state is untouched
// whenever one is returned.
type StateError struct {
	Kind      ErrorKind
	Target    string
	Message   string
	MessageAR string
	Err       error
}

func (e *StateError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Target, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StateError) Unwrap() error { return e.Err }

// NewStateError builds a StateError.
func NewStateError(kind ErrorKind, target, msg, msgAR string) *StateError {
	return &StateError{Kind: kind, Target: target, Message: msg, MessageAR: msgAR}
}

// AsStateError extracts a StateError from err's chain.
func AsStateError(err error) (*StateError, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsStateError reports whether err carries the given kind.
func IsStateError(err error, kind ErrorKind) bool {
	se, ok := AsStateError(err)
	return ok && se.Kind == kind
}
