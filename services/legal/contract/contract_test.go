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
	"strconv"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T, typ Type, contexts ...string) *State {
	t.Helper()
	s := &State{
		ID:       "c-1",
		Type:     typ,
		Language: language.English,
		Clauses:  BuildClauses(typ, contexts, language.English),
		Fields:   map[FieldName]FieldValue{},
		Contexts: SortedContexts(contexts),
	}
	for _, f := range FieldOrder {
		s.Fields[f] = Placeholder()
	}
	return s
}

func TestBuildClauses_Bounds(t *testing.T) {
	allContexts := []string{"parking", "pets", "garden", "shared", "short_term", "furnished", "commercial", "office", "students"}
	types := []Type{TypeResidential, TypeCommercial, TypeFurnished, TypeStudent, TypeOffice, TypeOther}

	for _, typ := range types {
		for _, ctxs := range [][]string{nil, {"parking"}, allContexts} {
			name := string(typ) + "/" + strconv.Itoa(len(ctxs))
			t.Run(name, func(t *testing.T) {
				for _, lang := range []language.Language{language.English, language.Arabic} {
					clauses := BuildClauses(typ, ctxs, lang)
					assert.GreaterOrEqual(t, len(clauses), MinClauses)
					assert.LessOrEqual(t, len(clauses), MaxClauses)
					for i, c := range clauses {
						assert.Equal(t, strconv.Itoa(i+1), c.ID)
						assert.NotEmpty(t, c.Body)
						assert.NotEmpty(t, c.Category)
					}
					last := clauses[len(clauses)-1]
					assert.Equal(t, CategoryGoverningLaw, last.Category)
					assert.True(t, last.Locked)
				}
			})
		}
	}
}

func TestBuildClauses_Deterministic(t *testing.T) {
	a := BuildClauses(TypeFurnished, []string{"pets", "parking"}, language.Arabic)
	b := BuildClauses(TypeFurnished, []string{"parking", "pets", "PETS"}, language.Arabic)
	assert.Equal(t, a, b)
}

func TestBuildClauses_TypeSpecific(t *testing.T) {
	s := newTestState(t, TypeFurnished)
	assert.True(t, s.HasCategory(CategoryFurnishing))

	s = newTestState(t, TypeResidential, "parking")
	assert.True(t, s.HasCategory(CategoryParking))
	assert.False(t, s.HasCategory(CategoryFurnishing))
}

func TestDetectContexts(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"I need a furnished apartment lease with parking", []string{"furnished", "parking"}},
		{"عقد شقة مفروشة مع موقف سيارة", []string{"furnished", "parking"}},
		{"the location is competent", nil},
		{"tenant keeps a cat", []string{"pets"}},
		{"سكن طلاب قرب الجامعة", []string{"students"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContexts(tt.text))
		})
	}
}

func TestInferCategory(t *testing.T) {
	tests := map[string]Category{
		"The rent increases by 5% each year":  CategoryRent,
		"Tenant is responsible for repairs":   CategoryMaintenance,
		"يحق للمستأجر استعمال موقف السيارة":   CategoryParking,
		"The tenant may hang pictures":        CategoryGeneral,
		"Termination requires 60 days notice": CategoryTermination,
	}
	for text, want := range tests {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, want, InferCategory(text))
		})
	}
}

func TestParseType(t *testing.T) {
	for _, in := range []string{"Residential", " apartment ", "شقة", "سكني"} {
		typ, ok := ParseType(in)
		assert.True(t, ok, in)
		assert.Equal(t, TypeResidential, typ)
	}
	_, ok := ParseType("timeshare")
	assert.False(t, ok)
}

func TestState_CloneIsDeep(t *testing.T) {
	s := newTestState(t, TypeResidential)
	c := s.Clone()
	c.Clauses[0].Body = "changed"
	c.Fields[FieldCity] = Concrete("Irbid")
	c.Contexts = append(c.Contexts, "pets")

	assert.NotEqual(t, "changed", s.Clauses[0].Body)
	assert.False(t, s.Field(FieldCity).IsConcrete())
	assert.Empty(t, s.Contexts)

	var nilState *State
	assert.Nil(t, nilState.Clone())
}

func TestState_Render(t *testing.T) {
	s := newTestState(t, TypeResidential)
	s.Fields[FieldRentAmount] = Concrete("400")
	s.Fields[FieldCurrency] = Concrete("JOD")

	out := s.Render()
	assert.True(t, strings.HasPrefix(out, "# Residential Lease Agreement\n"))
	assert.Contains(t, out, "The rent is 400 JOD")
	assert.Contains(t, out, "[Tenant full name]")
	assert.NotContains(t, out, "{tenant_name}")

	s.Language = language.Arabic
	assert.Contains(t, s.RenderBody("{tenant_name}"), "[اسم المستأجر الكامل]")
	assert.Equal(t, "{unknown}", s.RenderBody("{unknown}"))
	assert.Equal(t, "open { only", s.RenderBody("open { only"))
}

func TestState_PlaceholderFields(t *testing.T) {
	s := newTestState(t, TypeOffice)
	assert.Len(t, s.PlaceholderFields(), len(FieldOrder))

	s.Fields[FieldLandlordName] = Concrete("Ahmad")
	s.Fields[FieldTenantName] = FieldValue{Value: "", Placeholder: false}
	got := s.PlaceholderFields()
	assert.NotContains(t, got, FieldLandlordName)
	assert.Contains(t, got, FieldTenantName)
	assert.Equal(t, map[FieldName]string{FieldLandlordName: "Ahmad"}, s.ConcreteFields())
}

func TestState_NextClauseID(t *testing.T) {
	s := newTestState(t, TypeResidential)
	assert.Equal(t, strconv.Itoa(len(s.Clauses)+1), s.NextClauseID())
}

func TestFieldName_Metadata(t *testing.T) {
	assert.True(t, FieldTenantID.Personal())
	assert.False(t, FieldRentAmount.Personal())
	assert.Equal(t, "بدل الإيجار", FieldRentAmount.Label(language.Arabic))
	assert.Equal(t, "[mystery]", FieldName("mystery").PlaceholderLabel(language.English))
	assert.False(t, FieldName("mystery").Valid())
}

func TestCheckInvariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *State)
		kind   ErrorKind
	}{
		{"valid", func(s *State) {}, ""},
		{"too few clauses", func(s *State) { s.Clauses = s.Clauses[:MinClauses-1] }, KindInvariantViolation},
		{"too many clauses", func(s *State) {
			for len(s.Clauses) <= MaxClauses {
				s.Clauses = append(s.Clauses, Clause{ID: s.NextClauseID(), Title: "x", Body: "x", Category: CategoryGeneral})
			}
		}, KindInvariantViolation},
		{"duplicate id", func(s *State) { s.Clauses[1].ID = s.Clauses[0].ID }, KindInvariantViolation},
		{"empty body", func(s *State) { s.Clauses[2].Body = "  " }, KindInvariantViolation},
		{"no category", func(s *State) { s.Clauses[3].Category = "" }, KindInvariantViolation},
		{"unsupported type", func(s *State) { s.Type = "timeshare" }, KindUnsupportedType},
		{"inverted dates", func(s *State) {
			s.Fields[FieldStartDate] = Concrete("01/03/2026")
			s.Fields[FieldEndDate] = Concrete("01/02/2026")
		}, KindInvariantViolation},
		{"unparseable date", func(s *State) {
			s.Fields[FieldStartDate] = Concrete("31/02/2026")
			s.Fields[FieldEndDate] = Concrete("01/03/2027")
		}, KindInvariantViolation},
		{"one date placeholder", func(s *State) {
			s.Fields[FieldStartDate] = Concrete("01/03/2026")
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(t, TypeResidential)
			tt.mutate(s)
			err := CheckInvariants(s)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsStateError(err, tt.kind), "got %v", err)
		})
	}

	assert.Error(t, CheckInvariants(nil))
}

func TestStateError(t *testing.T) {
	err := NewStateError(KindUnknownTarget, "99", "clause 99 does not exist", "البند 99 غير موجود")
	assert.Equal(t, "unknown_target (99): clause 99 does not exist", err.Error())
	se, ok := AsStateError(err)
	require.True(t, ok)
	assert.Equal(t, "99", se.Target)
	assert.False(t, IsStateError(err, KindInvariantViolation))
}

func TestParseClauses_RenderedContractRoundTrips(t *testing.T) {
	for _, lang := range []language.Language{language.English, language.Arabic} {
		t.Run(string(lang), func(t *testing.T) {
			s := newTestState(t, TypeResidential, "parking")
			s.Language = lang
			s.Clauses = BuildClauses(TypeResidential, []string{"parking"}, lang)

			got := ParseClauses(s.Render(), lang)

			require.Len(t, got, len(s.Clauses))
			for i, c := range s.Clauses {
				assert.Equal(t, c.ID, got[i].ID)
				assert.Equal(t, c.Title, got[i].Title)
				assert.Equal(t, c.Category, got[i].Category)
				assert.Equal(t, s.RenderBody(c.Body), got[i].Body)
				assert.False(t, got[i].Locked)
			}
		})
	}
}

func TestParseClauses_Headings(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantTitles []string
		wantBodies []string
	}{
		{
			name: "preamble is dropped and lines are joined",
			text: "LEASE AGREEMENT\nMade in Amman.\n\nClause 1 - Rent\nThe tenant pays 400 JOD\nevery month in advance.\nArticle 2: Deposit\nA deposit of one month's rent is held by the landlord.",
			wantTitles: []string{"Rent", "Deposit"},
			wantBodies: []string{"The tenant pays 400 JOD every month in advance.", "A deposit of one month's rent is held by the landlord."},
		},
		{
			name:       "arabic numbered articles",
			text:       "عقد إيجار\nالمادة 1\nيدفع المستأجر بدل الإيجار في أول كل شهر.\nالبند 2\nيلتزم المستأجر بصيانة المأجور على نفقته.",
			wantTitles: []string{"البند 1", "البند 2"},
			wantBodies: []string{"يدفع المستأجر بدل الإيجار في أول كل شهر.", "يلتزم المستأجر بصيانة المأجور على نفقته."},
		},
		{
			name:       "long heading line becomes the body",
			text:       "3. The tenant shall not sublet the premises or any part of them without the written consent of the landlord, given in advance.",
			wantTitles: []string{"Clause 1"},
			wantBodies: []string{"The tenant shall not sublet the premises or any part of them without the written consent of the landlord, given in advance."},
		},
		{
			name:       "short fragments are dropped",
			text:       "1. Rent\n2) Pets are not allowed in the apartment at any time.",
			wantTitles: []string{"Clause 1"},
			wantBodies: []string{"Pets are not allowed in the apartment at any time."},
		},
		{
			name: "no headings",
			text: "This is a letter, not a lease.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lang := language.Detect(tc.text, language.English)
			got := ParseClauses(tc.text, lang)
			require.Len(t, got, len(tc.wantTitles))
			for i := range got {
				assert.Equal(t, strconv.Itoa(i+1), got[i].ID)
				assert.Equal(t, tc.wantTitles[i], got[i].Title)
				assert.Equal(t, tc.wantBodies[i], got[i].Body)
				assert.NotEmpty(t, got[i].Category)
			}
		})
	}
}

func TestParseClauses_InfersCategory(t *testing.T) {
	got := ParseClauses("5. Utilities\nThe tenant pays for electricity and water.\n6. Clause\nThe landlord may inspect with notice given one day before.", language.English)
	require.Len(t, got, 2)
	assert.Equal(t, CategoryUtilities, got[0].Category)
	assert.Equal(t, CategoryNotices, got[1].Category)
}
