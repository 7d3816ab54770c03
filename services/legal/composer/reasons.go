// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package composer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/dates"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/manager"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

// Reject turns a proposal error into a rejection.
//
// StateErrors map to their kind, DateErrors to invalid_date with the
// validator's suggestions, ErrNoContract to unsupported_request. Anything
// else is reported as an unsupported request without leaking its text.
func Reject(in intent.Intent, err error, lang language.Language, current *contract.State) FinalResponse {
	resp := rejected(in, lang, current)

	if se, ok := contract.AsStateError(err); ok {
		cat := ReasonInvariantViolation
		switch se.Kind {
		case contract.KindUnknownTarget:
			cat = ReasonUnknownTarget
		case contract.KindUnsupportedType:
			cat = ReasonUnsupportedContractType
		}
		msg := lang.Pick(se.MessageAR, se.Message)
		resp.Reason = &Reason{Category: cat, Message: msg}
		if de, ok := dates.AsDateError(err); ok {
			resp.Reason.Suggestions = de.Suggestions
		}
		resp.Message = msg
		return resp
	}

	if de, ok := dates.AsDateError(err); ok {
		msg := lang.Pick(de.MessageAR, de.Message)
		resp.Reason = &Reason{Category: ReasonInvalidDate, Message: msg, Suggestions: de.Suggestions}
		resp.Message = msg
		if len(de.Suggestions) > 0 {
			resp.Message += "\n" + strings.Join(de.Suggestions, "\n")
		}
		return resp
	}

	if errors.Is(err, manager.ErrNoContract) {
		msg := lang.Pick("لا يوجد عقد في هذه الجلسة بعد. اطلب إنشاء عقد أولاً.", "There is no contract in this session yet. Ask me to create one first.")
		resp.Reason = &Reason{Category: ReasonUnsupportedRequest, Message: msg}
		resp.Message = msg
		return resp
	}

	msg := lang.Pick("تعذر تنفيذ الطلب.", "The request could not be carried out.")
	resp.Reason = &Reason{Category: ReasonUnsupportedRequest, Message: msg}
	resp.Message = msg
	return resp
}

// Unsupported answers an unsupported intent.
func Unsupported(in intent.Intent, lang language.Language, current *contract.State) FinalResponse {
	resp := rejected(in, lang, current)
	p, _ := in.Unsupported()

	cat := ReasonUnsupportedRequest
	if p.Code == intent.CodeAmbiguousTarget {
		cat = ReasonAmbiguousTarget
	}
	msg := p.Reason
	if lang == language.Arabic && p.ReasonAR != "" {
		msg = p.ReasonAR
	}
	resp.Reason = &Reason{Category: cat, Message: msg}
	resp.Message = msg
	return resp
}

// Refuse answers a blocked turn, citing the violated rules.
func (c *Composer) Refuse(in intent.Intent, verdict policy_engine.Verdict, lang language.Language, current *contract.State) FinalResponse {
	resp := rejected(in, lang, current)
	resp.Verdict = policy_engine.OutcomeBlock
	resp.RuleIDs = verdict.RuleIDs
	resp.Unverified = verdict.Unverified

	var lines []string
	for _, id := range verdict.RuleIDs {
		desc := id
		if rule, ok := c.safety.Rule(id); ok {
			desc = fmt.Sprintf("%s: %s", id, lang.Pick(rule.Replacement.AR, rule.Description))
		}
		lines = append(lines, "- "+desc)
	}
	msg := lang.Pick(
		"لا يمكن تنفيذ هذا الطلب لأنه يخالف قانون المالكين والمستأجرين الأردني:\n",
		"This request cannot be carried out because it conflicts with the Jordanian Owners and Tenants Law:\n",
	) + strings.Join(lines, "\n")

	resp.Reason = &Reason{Category: ReasonIllegalClause, Message: msg, RuleIDs: verdict.RuleIDs}
	resp.Message = msg
	return resp
}

func rejected(in intent.Intent, lang language.Language, current *contract.State) FinalResponse {
	resp := FinalResponse{
		Outcome:  OutcomeRejected,
		Intent:   in.Kind,
		Language: lang,
	}
	if current != nil {
		resp.Revision = current.Revision
		resp.ContractID = current.ID
	}
	return resp
}
