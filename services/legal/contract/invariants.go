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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianLease/services/legal/dates"
)

var dateParser = dates.NewValidator(dates.DefaultConfig())

// CheckInvariants verifies the structural rules every committed state obeys.
//
// # Description
//
// Checks the clause count bounds, unique non-empty clause IDs, non-empty
// bodies, category tags, a supported type, and, when both dates are
// concrete, that they parse and the end follows the start. The first
// violation is returned as a KindInvariantViolation StateError.
//
// # Thread Safety
//
// Read-only on s.
func CheckInvariants(s *State) error {
	if s == nil {
		return NewStateError(KindInvariantViolation, "", "contract is missing", "العقد غير موجود")
	}
	if _, ok := ParseType(string(s.Type)); !ok {
		return NewStateError(KindUnsupportedType, string(s.Type),
			fmt.Sprintf("unsupported contract type %q", s.Type),
			fmt.Sprintf("نوع العقد %q غير مدعوم", s.Type))
	}

	n := len(s.Clauses)
	if n < MinClauses || n > MaxClauses {
		return NewStateError(KindInvariantViolation, "clauses",
			fmt.Sprintf("a lease must have between %d and %d clauses, this one would have %d", MinClauses, MaxClauses, n),
			fmt.Sprintf("يجب أن يتضمن العقد ما بين %d و%d بنداً، وسيصبح عدد البنود %d", MinClauses, MaxClauses, n))
	}

	ids := make(map[string]bool, n)
	for _, c := range s.Clauses {
		if c.ID == "" || ids[c.ID] {
			return NewStateError(KindInvariantViolation, c.ID,
				fmt.Sprintf("clause id %q is empty or duplicated", c.ID),
				fmt.Sprintf("رقم البند %q فارغ أو مكرر", c.ID))
		}
		ids[c.ID] = true
		if strings.TrimSpace(c.Body) == "" {
			return NewStateError(KindInvariantViolation, c.ID,
				fmt.Sprintf("clause %s has no text", c.ID),
				fmt.Sprintf("البند %s فارغ", c.ID))
		}
		if c.Category == "" {
			return NewStateError(KindInvariantViolation, c.ID,
				fmt.Sprintf("clause %s has no category", c.ID),
				fmt.Sprintf("البند %s بلا تصنيف", c.ID))
		}
	}

	return checkDates(s)
}

func checkDates(s *State) error {
	start, end := s.Field(FieldStartDate), s.Field(FieldEndDate)
	if !start.IsConcrete() || !end.IsConcrete() {
		return nil
	}
	from, err := dateParser.ParseDate(start.Value)
	if err != nil {
		return &StateError{Kind: KindInvariantViolation, Target: string(FieldStartDate),
			Message: err.Error(), MessageAR: "تاريخ البدء غير صالح", Err: err}
	}
	to, err := dateParser.ParseDate(end.Value)
	if err != nil {
		return &StateError{Kind: KindInvariantViolation, Target: string(FieldEndDate),
			Message: err.Error(), MessageAR: "تاريخ الانتهاء غير صالح", Err: err}
	}
	if !to.After(from) {
		return NewStateError(KindInvariantViolation, string(FieldEndDate),
			"the end date must be after the start date",
			"يجب أن يكون تاريخ الانتهاء بعد تاريخ البدء")
	}
	return nil
}
