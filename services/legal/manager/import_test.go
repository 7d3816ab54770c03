// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

var existingClauses = [][2]string{
	{"Parties", "This lease is made between Ahmad Saleh and Lina Haddad."},
	{"Leased Premises", "The apartment on the second floor of building 12, Jabal Amman."},
	{"Term", "The lease runs for one year from the first of April."},
	{"Rent", "The tenant pays 400 JOD each month in advance."},
	{"Deposit", "A deposit of 400 JOD is returned at the end of the lease."},
	{"Utilities", "The tenant pays for electricity and water."},
	{"Maintenance", "The landlord repairs the structure and the roof."},
	{"Use", "The premises are used as a family residence only."},
	{"Alterations", "No structural change is made without written consent."},
	{"Notices", "Notices are delivered in writing to the addresses above."},
	{"Termination", "Either party may end the lease with two months of written notice."},
	{"Governing Law", "This lease is governed by the Jordanian Owners and Tenants Law."},
}

// existingLease renders a plain numbered lease, with extra appended as
// further clauses.
func existingLease(extra ...[2]string) string {
	var b strings.Builder
	b.WriteString("LEASE AGREEMENT\nSigned in Amman.\n\n")
	for i, c := range append(append([][2]string(nil), existingClauses...), extra...) {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, c[0], c[1])
	}
	return b.String()
}

var lockClause = [2]string{"Locks", "The landlord may change the locks at any time."}

func TestImport_LoadsExistingLease(t *testing.T) {
	m := newTestManager()

	p, err := m.Import(context.Background(), ImportRequest{
		Text:         existingLease(lockClause),
		ContractType: "apartment",
		Hits:         reviewHits(),
	})
	require.NoError(t, err)

	assert.Equal(t, intent.KindReview, p.Intent.Kind)
	assert.True(t, p.Mutating)
	assert.Nil(t, p.Base)

	s := p.Next
	assert.Equal(t, "contract-1", s.ID)
	assert.Equal(t, contract.TypeResidential, s.Type)
	assert.Equal(t, language.English, s.Language)
	assert.Equal(t, testNow, s.CreatedAt)
	require.Len(t, s.Clauses, 13)
	assert.Equal(t, "Rent", s.Clauses[3].Title)
	assert.Equal(t, contract.CategoryRent, s.Clauses[3].Category)
	assert.Equal(t, lockClause[1], s.Clauses[12].Body)
	for _, c := range s.Clauses {
		assert.False(t, c.Locked, "clause %s", c.ID)
	}
	assert.Len(t, s.PlaceholderFields(), len(contract.FieldOrder))
	require.Len(t, p.Delta.Clauses, 13)
	assert.Equal(t, ClauseAdded, p.Delta.Clauses[0].Change)
	assert.NotEmpty(t, p.Findings)
}

func TestImport_ClausesAreExistingContent(t *testing.T) {
	m := newTestManager()
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)

	p, err := m.Import(context.Background(), ImportRequest{Text: existingLease(lockClause), Language: language.English})
	require.NoError(t, err)

	in := SafetyInput(p, language.English)
	require.Len(t, in.Segments, 13)
	for _, seg := range in.Segments {
		assert.Equal(t, policy_engine.OriginExisting, seg.Origin)
	}

	v := engine.Evaluate(in)
	require.Equal(t, policy_engine.OutcomeRewrite, v.Outcome)
	FlagViolations(p, v)
	assert.Equal(t, FindingIllegal, p.Findings[0].Kind)
	assert.Equal(t, "13", p.Findings[0].ClauseID)
}

func TestImport_SupersedesCurrent(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)

	p, err := m.Import(context.Background(), ImportRequest{Current: base, Text: existingLease()})
	require.NoError(t, err)
	assert.Equal(t, base, p.Base)
	assert.Equal(t, base.ID, p.Next.Supersedes)
	assert.NotEqual(t, base.ID, p.Next.ID)
	assert.Equal(t, contract.TypeOther, p.Next.Type)
}

func TestImport_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		req      ImportRequest
		wantKind contract.ErrorKind
	}{
		{"unknown type", ImportRequest{Text: existingLease(), ContractType: "castle"}, contract.KindUnsupportedType},
		{"too few clauses", ImportRequest{Text: "1. Rent\nThe tenant pays 400 JOD each month in advance."}, contract.KindInvariantViolation},
		{"no clauses", ImportRequest{Text: "Please find my lease attached."}, contract.KindInvariantViolation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := newTestManager().Import(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, contract.IsStateError(err, tc.wantKind), "got %v", err)
		})
	}
}
