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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/dates"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

var testNow = time.Date(2026, time.March, 1, 9, 30, 0, 0, time.UTC)

func newTestManager() *Manager {
	clock := func() time.Time { return testNow }
	n := 0
	return New(
		dates.NewValidator(dates.DefaultConfig(), dates.WithClock(clock)),
		WithClock(clock),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("contract-%d", n)
		}),
	)
}

func generateIntent(t *testing.T, typ string, contexts []string, fields map[contract.FieldName]string) intent.Intent {
	t.Helper()
	in, err := intent.NewGenerate(intent.GenerateParams{ContractType: typ, Contexts: contexts, Fields: fields}, 0.9)
	require.NoError(t, err)
	return in
}

func editIntent(t *testing.T, targets ...intent.EditTarget) intent.Intent {
	t.Helper()
	in, err := intent.NewEdit(intent.EditParams{Targets: targets}, 0.9)
	require.NoError(t, err)
	return in
}

// generated returns a committed residential lease in Amman with dates.
func generated(t *testing.T, m *Manager) *contract.State {
	t.Helper()
	p, err := m.Apply(context.Background(), Request{
		Intent: generateIntent(t, "residential", nil, map[contract.FieldName]string{
			contract.FieldCity:      "Amman",
			contract.FieldStartDate: "2026-04-01",
			contract.FieldEndDate:   "2027-03-31",
		}),
		Language: language.English,
	})
	require.NoError(t, err)
	p.Next.Revision = 1
	return p.Next
}

// =============================================================================
// generate_contract
// =============================================================================

func TestApply_GenerateFurnishedInAmman(t *testing.T) {
	m := newTestManager()
	p, err := m.Apply(context.Background(), Request{
		Intent: generateIntent(t, "furnished", []string{"furnished"}, map[contract.FieldName]string{
			contract.FieldCity:       "Amman",
			contract.FieldTenantName: "Ahmad Saleh",
		}),
		Language: language.English,
	})
	require.NoError(t, err)

	s := p.Next
	assert.True(t, p.Mutating)
	assert.Nil(t, p.Base)
	assert.Equal(t, "contract-1", s.ID)
	assert.Equal(t, contract.TypeFurnished, s.Type)
	assert.Equal(t, language.English, s.Language)
	assert.Equal(t, int64(0), s.Revision)
	assert.Equal(t, testNow, s.CreatedAt)
	assert.GreaterOrEqual(t, len(s.Clauses), contract.MinClauses)
	assert.LessOrEqual(t, len(s.Clauses), contract.MaxClauses)
	assert.True(t, s.HasCategory(contract.CategoryFurnishing))

	for _, f := range contract.FieldOrder {
		if f.Personal() {
			assert.False(t, s.Field(f).IsConcrete(), "personal field %s must be a placeholder", f)
		}
	}
	assert.Equal(t, contract.Concrete("Amman"), s.Field(contract.FieldCity))
	assert.Equal(t, contract.Concrete(DefaultCurrency), s.Field(contract.FieldCurrency))

	require.Len(t, p.Delta.Clauses, len(s.Clauses))
	for _, cc := range p.Delta.Clauses {
		assert.Equal(t, ClauseAdded, cc.Change)
	}
	assert.Len(t, p.Delta.Fields, 2)
	require.NoError(t, contract.CheckInvariants(s))
}

func TestApply_GenerateNormalizesSuppliedValues(t *testing.T) {
	m := newTestManager()
	p, err := m.Apply(context.Background(), Request{
		Intent: generateIntent(t, "commercial", nil, map[contract.FieldName]string{
			contract.FieldRentAmount:       "1,250",
			contract.FieldDeposit:          "not a number",
			contract.FieldCurrency:         "usd",
			contract.FieldPaymentFrequency: "quarterly",
			contract.FieldStartDate:        "2026-04-01",
			contract.FieldEndDate:          "31/03/2028",
		}),
		Language: language.Arabic,
	})
	require.NoError(t, err)

	s := p.Next
	assert.Equal(t, language.Arabic, s.Language)
	assert.Equal(t, "1250", s.Field(contract.FieldRentAmount).Value)
	assert.False(t, s.Field(contract.FieldDeposit).IsConcrete())
	assert.Equal(t, "USD", s.Field(contract.FieldCurrency).Value)
	assert.Equal(t, "quarterly", s.Field(contract.FieldPaymentFrequency).Value)
	assert.Equal(t, "01/04/2026", s.Field(contract.FieldStartDate).Value)
	assert.Equal(t, "31/03/2028", s.Field(contract.FieldEndDate).Value)
}

func TestApply_GenerateFailures(t *testing.T) {
	m := newTestManager()

	t.Run("unsupported type", func(t *testing.T) {
		_, err := m.Apply(context.Background(), Request{Intent: generateIntent(t, "employment", nil, nil)})
		require.Error(t, err)
		assert.True(t, contract.IsStateError(err, contract.KindUnsupportedType))
	})

	t.Run("start in the past", func(t *testing.T) {
		_, err := m.Apply(context.Background(), Request{Intent: generateIntent(t, "residential", nil, map[contract.FieldName]string{
			contract.FieldStartDate: "2025-01-01",
			contract.FieldEndDate:   "2026-01-01",
		})})
		de, ok := dates.AsDateError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, dates.KindOutOfBounds, de.Kind)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := m.Apply(context.Background(), Request{Intent: generateIntent(t, "residential", nil, map[contract.FieldName]string{
			contract.FieldStartDate: "2026-06-01",
			contract.FieldEndDate:   "2026-05-01",
		})})
		de, ok := dates.AsDateError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, dates.KindInvertedRange, de.Kind)
	})

	t.Run("single unparseable date", func(t *testing.T) {
		_, err := m.Apply(context.Background(), Request{Intent: generateIntent(t, "residential", nil, map[contract.FieldName]string{
			contract.FieldEndDate: "31/02/2027",
		})})
		de, ok := dates.AsDateError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, dates.KindUnparseable, de.Kind)
		assert.Equal(t, "end", de.Field)
		assert.NotEmpty(t, de.Suggestions)
	})
}

func TestApply_GenerateSupersedesCurrent(t *testing.T) {
	m := newTestManager()
	old := generated(t, m)

	p, err := m.Apply(context.Background(), Request{Current: old, Intent: generateIntent(t, "office", nil, nil)})
	require.NoError(t, err)
	assert.Equal(t, old.ID, p.Next.Supersedes)
	assert.NotEqual(t, old.ID, p.Next.ID)
	assert.Same(t, old, p.Base)
	assert.Equal(t, contract.TypeResidential, old.Type)
}

// =============================================================================
// edit_contract
// =============================================================================

func TestApply_EditRent(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)
	before := base.Clone()

	p, err := m.Apply(context.Background(), Request{
		Current: base,
		Intent: editIntent(t,
			intent.EditTarget{Field: contract.FieldRentAmount, Op: intent.OpSet, Value: "400"},
			intent.EditTarget{Field: contract.FieldCurrency, Op: intent.OpSet, Value: "JOD"},
		),
	})
	require.NoError(t, err)

	assert.Equal(t, before, base, "committed state must not change")
	assert.Equal(t, "400", p.Next.Field(contract.FieldRentAmount).Value)
	assert.Equal(t, "JOD", p.Next.Field(contract.FieldCurrency).Value)
	assert.Equal(t, base.Clauses, p.Next.Clauses)
	assert.Equal(t, base.Revision, p.Next.Revision, "the composer bumps the revision")

	require.Len(t, p.Delta.Fields, 1)
	assert.Equal(t, contract.FieldRentAmount, p.Delta.Fields[0].Field)
	assert.True(t, p.Delta.Fields[0].Old.Placeholder)
	assert.Empty(t, p.Delta.Clauses)
}

func TestApply_EditPreservesOtherFields(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)

	values := map[contract.FieldName]string{
		contract.FieldRentAmount: "500",
		contract.FieldDeposit:    "1000",
		contract.FieldStartDate:  "02/04/2026",
		contract.FieldEndDate:    "30/03/2027",
	}
	for _, target := range contract.FieldOrder {
		t.Run(string(target), func(t *testing.T) {
			v, ok := values[target]
			if !ok {
				v = "value for " + string(target)
			}
			p, err := m.Apply(context.Background(), Request{
				Current: base,
				Intent:  editIntent(t, intent.EditTarget{Field: target, Op: intent.OpSet, Value: v}),
			})
			require.NoError(t, err)
			for _, f := range contract.FieldOrder {
				if f == target {
					continue
				}
				assert.Equal(t, base.Field(f), p.Next.Field(f), "field %s changed", f)
			}
			assert.Equal(t, base.Clauses, p.Next.Clauses)
		})
	}
}

func TestApply_EditClauses(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)
	require.Len(t, base.Clauses, 15)

	t.Run("replace", func(t *testing.T) {
		p, err := m.Apply(context.Background(), Request{
			Current: base,
			Intent:  editIntent(t, intent.EditTarget{ClauseID: "8", Op: intent.OpReplace, Value: "The Landlord pays for water.", Title: "Water"}),
		})
		require.NoError(t, err)
		c, _, ok := p.Next.FindClause("8")
		require.True(t, ok)
		assert.Equal(t, "The Landlord pays for water.", c.Body)
		assert.Equal(t, "Water", c.Title)
		assert.Equal(t, contract.CategoryUtilities, c.Category)

		require.Len(t, p.Delta.Clauses, 1)
		cc := p.Delta.Clauses[0]
		assert.Equal(t, ClauseChanged, cc.Change)
		assert.Equal(t, base.Clauses[7].Body, cc.OldBody)
		assert.Equal(t, "The Landlord pays for water.", cc.NewBody)
	})

	t.Run("add", func(t *testing.T) {
		p, err := m.Apply(context.Background(), Request{
			Current: base,
			Intent:  editIntent(t, intent.EditTarget{Op: intent.OpAdd, Value: "One cat is allowed; the pet must not damage the premises."}),
		})
		require.NoError(t, err)
		require.Len(t, p.Next.Clauses, 16)
		added := p.Next.Clauses[15]
		assert.Equal(t, "16", added.ID)
		assert.Equal(t, "Additional Clause", added.Title)
		assert.Equal(t, contract.CategoryPets, added.Category)
		assert.Equal(t, base.Clauses, p.Next.Clauses[:15])
		require.Len(t, p.Delta.Clauses, 1)
		assert.Equal(t, ClauseAdded, p.Delta.Clauses[0].Change)
	})

	t.Run("remove", func(t *testing.T) {
		p, err := m.Apply(context.Background(), Request{
			Current: base,
			Intent:  editIntent(t, intent.EditTarget{ClauseID: "12", Op: intent.OpRemove}),
		})
		require.NoError(t, err)
		assert.Len(t, p.Next.Clauses, 14)
		_, _, ok := p.Next.FindClause("12")
		assert.False(t, ok)
		require.Len(t, p.Delta.Clauses, 1)
		assert.Equal(t, ClauseRemoved, p.Delta.Clauses[0].Change)
	})
}

func TestApply_EditRejections(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)
	before := base.Clone()

	tests := []struct {
		name     string
		targets  []intent.EditTarget
		wantKind contract.ErrorKind
	}{
		{
			name:     "unknown field",
			targets:  []intent.EditTarget{{Field: "parking_spot", Op: intent.OpSet, Value: "B2"}},
			wantKind: contract.KindUnknownTarget,
		},
		{
			name:     "unknown clause",
			targets:  []intent.EditTarget{{ClauseID: "42", Op: intent.OpReplace, Value: "text"}},
			wantKind: contract.KindUnknownTarget,
		},
		{
			name:     "locked access clause",
			targets:  []intent.EditTarget{{ClauseID: "10", Op: intent.OpReplace, Value: "The Landlord may visit."}},
			wantKind: contract.KindInvariantViolation,
		},
		{
			name:     "locked governing law removal",
			targets:  []intent.EditTarget{{ClauseID: "15", Op: intent.OpRemove}},
			wantKind: contract.KindInvariantViolation,
		},
		{
			name: "below minimum clause count",
			targets: []intent.EditTarget{
				{ClauseID: "11", Op: intent.OpRemove},
				{ClauseID: "12", Op: intent.OpRemove},
				{ClauseID: "13", Op: intent.OpRemove},
				{ClauseID: "4", Op: intent.OpRemove},
			},
			wantKind: contract.KindInvariantViolation,
		},
		{
			name:     "negative rent",
			targets:  []intent.EditTarget{{Field: contract.FieldRentAmount, Op: intent.OpSet, Value: "-5"}},
			wantKind: contract.KindInvariantViolation,
		},
		{
			name: "valid target followed by invalid one",
			targets: []intent.EditTarget{
				{Field: contract.FieldRentAmount, Op: intent.OpSet, Value: "400"},
				{ClauseID: "99", Op: intent.OpRemove},
			},
			wantKind: contract.KindUnknownTarget,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := m.Apply(context.Background(), Request{Current: base, Intent: editIntent(t, tc.targets...)})
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, contract.IsStateError(err, tc.wantKind), "got %v", err)
			assert.Equal(t, before, base)
		})
	}
}

func TestEdit_BlankFieldValueIsRejected(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)
	before := base.Clone()

	for _, field := range []contract.FieldName{contract.FieldCity, contract.FieldLandlordName, contract.FieldRentAmount} {
		t.Run(string(field), func(t *testing.T) {
			targets := []intent.EditTarget{{Field: field, Op: intent.OpSet, Value: " \t "}}
			p, err := m.edit(Request{Current: base}, intent.EditParams{Targets: targets})
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, contract.IsStateError(err, contract.KindInvariantViolation), "got %v", err)
			assert.Equal(t, before, base)
		})
	}
}

func TestApply_EditMaximumClauses(t *testing.T) {
	m := newTestManager()
	p, err := m.Apply(context.Background(), Request{
		Intent: generateIntent(t, "furnished", []string{"parking", "pets", "garden", "shared"}, nil),
	})
	require.NoError(t, err)
	full := p.Next
	require.Len(t, full.Clauses, contract.MaxClauses)

	_, err = m.Apply(context.Background(), Request{
		Current: full,
		Intent:  editIntent(t, intent.EditTarget{Op: intent.OpAdd, Value: "Smoking is not allowed indoors."}),
	})
	assert.True(t, contract.IsStateError(err, contract.KindInvariantViolation))
}

func TestApply_EditDates(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)

	t.Run("inverted range is an invariant violation", func(t *testing.T) {
		_, err := m.Apply(context.Background(), Request{
			Current: base,
			Intent:  editIntent(t, intent.EditTarget{Field: contract.FieldEndDate, Op: intent.OpSet, Value: "2026-03-15"}),
		})
		require.True(t, contract.IsStateError(err, contract.KindInvariantViolation), "got %v", err)
		de, ok := dates.AsDateError(err)
		require.True(t, ok)
		assert.Equal(t, dates.KindInvertedRange, de.Kind)
	})

	t.Run("unparseable date", func(t *testing.T) {
		_, err := m.Apply(context.Background(), Request{
			Current: base,
			Intent:  editIntent(t, intent.EditTarget{Field: contract.FieldStartDate, Op: intent.OpSet, Value: "31/02/2026"}),
		})
		de, ok := dates.AsDateError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, dates.KindUnparseable, de.Kind)
		assert.False(t, contract.IsStateError(err, contract.KindInvariantViolation))
	})

	t.Run("valid date is normalized", func(t *testing.T) {
		p, err := m.Apply(context.Background(), Request{
			Current: base,
			Intent:  editIntent(t, intent.EditTarget{Field: contract.FieldEndDate, Op: intent.OpSet, Value: "2027-06-30"}),
		})
		require.NoError(t, err)
		assert.Equal(t, "30/06/2027", p.Next.Field(contract.FieldEndDate).Value)
		assert.Equal(t, base.Field(contract.FieldStartDate), p.Next.Field(contract.FieldStartDate))
	})
}

func TestApply_NeedsContract(t *testing.T) {
	m := newTestManager()
	_, err := m.Apply(context.Background(), Request{
		Intent: editIntent(t, intent.EditTarget{Field: contract.FieldRentAmount, Op: intent.OpSet, Value: "400"}),
	})
	assert.ErrorIs(t, err, ErrNoContract)

	_, err = m.Apply(context.Background(), Request{Intent: intent.NewReview(intent.ReviewParams{}, 1)})
	assert.ErrorIs(t, err, ErrNoContract)
}

// =============================================================================
// review, explain, export
// =============================================================================

func reviewHits() []retrieval.Hit {
	return []retrieval.Hit{
		{ID: "law-2", Corpus: retrieval.CorpusLawArticle, Text: "General provisions on lease contracts."},
		{ID: "cm-1", Corpus: retrieval.CorpusCommonMistake, Category: "deposit", Text: "Deposit clauses that allow the landlord to keep the whole deposit."},
		{ID: "law-1", Corpus: retrieval.CorpusLawArticle, Category: "access", Source: "Owners and Tenants Law, Article 7", Text: "The landlord may not enter without notice."},
	}
}

func TestApply_Review(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)

	p, err := m.Apply(context.Background(), Request{Current: base, Intent: intent.NewReview(intent.ReviewParams{}, 1), Hits: reviewHits()})
	require.NoError(t, err)

	assert.False(t, p.Mutating)
	assert.Equal(t, base, p.Next)
	assert.NotSame(t, base, p.Next)
	assert.True(t, p.Delta.Empty())

	var kinds []FindingKind
	for _, f := range p.Findings {
		kinds = append(kinds, f.Kind)
	}
	placeholders := len(base.PlaceholderFields())
	require.Len(t, p.Findings, 1+placeholders+2)
	assert.Equal(t, FindingRisky, kinds[0])
	assert.Equal(t, "7", p.Findings[0].ClauseID)
	assert.Equal(t, "cm-1", p.Findings[0].HitID)
	for i := 1; i <= placeholders; i++ {
		assert.Equal(t, FindingMissing, kinds[i])
	}
	cited := p.Findings[len(p.Findings)-2:]
	assert.Equal(t, "10", cited[0].ClauseID)
	assert.Contains(t, cited[0].Message, "Article 7")
	assert.Equal(t, "", cited[1].ClauseID)
	assert.Equal(t, "law-2", cited[1].HitID)
}

func TestApply_ReviewIsIdempotent(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)
	req := Request{Current: base, Intent: intent.NewReview(intent.ReviewParams{}, 1), Hits: reviewHits()}

	first, err := m.Apply(context.Background(), req)
	require.NoError(t, err)
	second, err := m.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Findings, second.Findings)
}

func TestApply_ReviewWithoutContext(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)

	p, err := m.Apply(context.Background(), Request{Current: base, Intent: intent.NewReview(intent.ReviewParams{}, 1), Unverified: true})
	require.NoError(t, err)
	assert.True(t, p.Unverified)
	for _, f := range p.Findings {
		assert.Equal(t, FindingMissing, f.Kind)
	}
}

func TestApply_ReviewMissingCategoryAndBadDates(t *testing.T) {
	m := newTestManager()
	s := generated(t, m).Clone()
	s.Clauses[6].Category = contract.CategoryGeneral
	s.Fields[contract.FieldStartDate] = contract.Concrete("10/03/2026")
	s.Fields[contract.FieldEndDate] = contract.Concrete("01/03/2026")

	p, err := m.Apply(context.Background(), Request{Current: s, Intent: intent.NewReview(intent.ReviewParams{}, 1)})
	require.NoError(t, err)
	require.NotEmpty(t, p.Findings)

	assert.Equal(t, FindingInvalidDates, p.Findings[0].Kind)
	assert.Equal(t, contract.FieldEndDate, p.Findings[0].Field)

	var missingDeposit bool
	for _, f := range p.Findings {
		if f.Kind == FindingMissing && f.Category == contract.CategoryDeposit {
			missingDeposit = true
		}
	}
	assert.True(t, missingDeposit)
}

func TestApply_Explain(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)

	in, err := intent.NewExplain(intent.ExplainParams{ClauseID: "4"}, 1)
	require.NoError(t, err)
	p, err := m.Apply(context.Background(), Request{Current: base, Intent: in})
	require.NoError(t, err)
	require.NotNil(t, p.Clause)
	assert.Equal(t, contract.CategoryTerm, p.Clause.Category)

	in, err = intent.NewExplain(intent.ExplainParams{ClauseID: "99"}, 1)
	require.NoError(t, err)
	_, err = m.Apply(context.Background(), Request{Current: base, Intent: in})
	assert.True(t, contract.IsStateError(err, contract.KindUnknownTarget))

	in, err = intent.NewExplain(intent.ExplainParams{Topic: "deposit refunds"}, 1)
	require.NoError(t, err)
	p, err = m.Apply(context.Background(), Request{Current: base, Intent: in})
	require.NoError(t, err)
	assert.Nil(t, p.Clause)
	assert.Equal(t, "deposit refunds", p.Topic)
}

func TestApply_Export(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)
	in, err := intent.NewExport(intent.ExportParams{}, 1)
	require.NoError(t, err)

	p, err := m.Apply(context.Background(), Request{Current: base, Intent: in})
	require.NoError(t, err)
	assert.Equal(t, base, p.Next)

	broken := base.Clone()
	broken.Clauses = broken.Clauses[:5]
	_, err = m.Apply(context.Background(), Request{Current: broken, Intent: in})
	assert.True(t, contract.IsStateError(err, contract.KindInvariantViolation))
}

// =============================================================================
// Safety segments
// =============================================================================

func TestSafetyInput(t *testing.T) {
	m := newTestManager()
	base := generated(t, m)

	gen, err := m.Apply(context.Background(), Request{Intent: generateIntent(t, "student", nil, nil)})
	require.NoError(t, err)
	in := SafetyInput(gen, language.English)
	require.Len(t, in.Segments, len(gen.Next.Clauses))
	for _, seg := range in.Segments {
		assert.Equal(t, policy_engine.OriginNew, seg.Origin)
		assert.NotContains(t, seg.Text, "{", "segments are rendered")
	}

	edit, err := m.Apply(context.Background(), Request{
		Current: base,
		Intent: editIntent(t,
			intent.EditTarget{Field: contract.FieldRentAmount, Op: intent.OpSet, Value: "400"},
			intent.EditTarget{Op: intent.OpAdd, Value: "Smoking is not allowed indoors."},
		),
	})
	require.NoError(t, err)
	in = SafetyInput(edit, language.English)
	require.Len(t, in.Segments, 2)
	assert.Equal(t, FieldSegmentID(contract.FieldRentAmount), in.Segments[0].ID)
	assert.Equal(t, ClauseSegmentID("16"), in.Segments[1].ID)

	review, err := m.Apply(context.Background(), Request{Current: base, Intent: intent.NewReview(intent.ReviewParams{}, 1), Unverified: true})
	require.NoError(t, err)
	in = SafetyInput(review, language.English)
	require.Len(t, in.Segments, len(base.Clauses))
	assert.True(t, in.Unverified)
	for _, seg := range in.Segments {
		assert.Equal(t, policy_engine.OriginExisting, seg.Origin)
	}
}

func TestGeneratedContractsPassTheSafetyFilter(t *testing.T) {
	m := newTestManager()
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)

	for _, typ := range []string{"residential", "commercial", "furnished", "student", "office", "other"} {
		for _, lang := range []language.Language{language.English, language.Arabic} {
			t.Run(typ+"/"+string(lang), func(t *testing.T) {
				p, err := m.Apply(context.Background(), Request{
					Intent:     generateIntent(t, typ, []string{"parking", "pets", "garden", "shared", "short_term"}, nil),
					Language:   lang,
					Unverified: true,
				})
				require.NoError(t, err)
				v := engine.Evaluate(SafetyInput(p, lang))
				assert.Equal(t, policy_engine.OutcomeAllow, v.Outcome, "violations: %+v", v.Violations)
			})
		}
	}
}

func TestEditAddingLockChangeIsBlocked(t *testing.T) {
	m := newTestManager()
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)
	base := generated(t, m)

	p, err := m.Apply(context.Background(), Request{
		Current: base,
		Intent:  editIntent(t, intent.EditTarget{Op: intent.OpAdd, Value: "The landlord may change the locks without a court order."}),
	})
	require.NoError(t, err)

	v := engine.Evaluate(SafetyInput(p, language.English))
	assert.Equal(t, policy_engine.OutcomeBlock, v.Outcome)
	assert.Equal(t, []string{"LOCK_CHANGE_WITHOUT_COURT_ORDER"}, v.RuleIDs)
}

func TestApplyRewrites(t *testing.T) {
	m := newTestManager()
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)

	s := generated(t, m).Clone()
	s.Clauses[8].Body = "Repairs are shared. The landlord may enter at any time."

	p, err := m.Apply(context.Background(), Request{Current: s, Intent: intent.NewReview(intent.ReviewParams{}, 1)})
	require.NoError(t, err)

	v := engine.Evaluate(SafetyInput(p, language.English))
	require.Equal(t, policy_engine.OutcomeRewrite, v.Outcome)
	require.Len(t, v.Rewrites, 1)
	assert.Equal(t, ClauseSegmentID("9"), v.Rewrites[0].SegmentID)

	fixed, err := ApplyRewrites(p, v.Rewrites)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fixed.Clauses[8].Body, "Repairs are shared. The Landlord may enter the premises only after"))
	assert.Equal(t, "Repairs are shared. The landlord may enter at any time.", p.Next.Clauses[8].Body, "proposal is not modified")
	for i := range fixed.Clauses {
		if i != 8 {
			assert.Equal(t, s.Clauses[i], fixed.Clauses[i])
		}
	}

	_, err = ApplyRewrites(p, []policy_engine.Rewrite{{SegmentID: "field:city", Replacement: "x"}})
	assert.True(t, contract.IsStateError(err, contract.KindUnknownTarget))
}

func TestFlagViolations_ReviewFlagsIllegalClause(t *testing.T) {
	m := newTestManager()
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)

	s := generated(t, m).Clone()
	s.Clauses[4].Body = "The landlord may change the locks at any time."

	p, err := m.Apply(context.Background(), Request{Current: s, Intent: intent.NewReview(intent.ReviewParams{}, 1), Hits: reviewHits()})
	require.NoError(t, err)
	v := engine.Evaluate(SafetyInput(p, language.English))
	require.Equal(t, policy_engine.OutcomeRewrite, v.Outcome)

	before := len(p.Findings)
	FlagViolations(p, v)
	require.Len(t, p.Findings, before+len(v.Violations))
	assert.Equal(t, FindingIllegal, p.Findings[0].Kind, "illegal findings sort first")

	var lock *Finding
	for i := range p.Findings {
		if p.Findings[i].Kind == FindingIllegal && p.Findings[i].RuleID == "LOCK_CHANGE_WITHOUT_COURT_ORDER" {
			lock = &p.Findings[i]
		}
	}
	require.NotNil(t, lock)
	assert.Equal(t, "5", lock.ClauseID)
	assert.Equal(t, s.Clauses[4].Category, lock.Category)
	assert.NotEmpty(t, lock.MessageAR)

	flagged := append([]Finding(nil), p.Findings...)
	FlagViolations(p, v)
	assert.Equal(t, flagged, p.Findings, "flagging twice adds nothing")

	again, err := m.Apply(context.Background(), Request{Current: s, Intent: intent.NewReview(intent.ReviewParams{}, 1), Hits: reviewHits()})
	require.NoError(t, err)
	FlagViolations(again, engine.Evaluate(SafetyInput(again, language.English)))
	assert.Equal(t, p.Findings, again.Findings, "review is idempotent")
}

func TestFlagViolations_IgnoresNewContent(t *testing.T) {
	p := &Proposal{Next: &contract.State{}}
	FlagViolations(p, policy_engine.Verdict{Violations: []policy_engine.Violation{
		{RuleID: "LOCK_CHANGE_WITHOUT_COURT_ORDER", SegmentID: ClauseSegmentID("3")},
		{RuleID: "ENTRY_WITHOUT_24H_NOTICE", SegmentID: FieldSegmentID(contract.FieldCity), PreExisting: true},
	}})
	assert.Empty(t, p.Findings)
}
