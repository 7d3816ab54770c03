// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contract models the lease under construction.
//
// # Description
//
// A State is the authoritative, session-scoped representation of one lease:
// its type, ordered clauses, structured fields and revision. Clause bodies
// are templates that reference fields as {field_name}; rendering substitutes
// the concrete value or a language-specific placeholder label, so editing a
// field never rewrites a clause body.
//
// # Ownership
//
// A committed State is never mutated. Every change works on Clone() and the
// session store swaps the pointer on commit.
package contract

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

// Clause count bounds.
const (
	MinClauses = 12
	MaxClauses = 18
)

// Type is the lease type.
type Type string

const (
	TypeResidential Type = "residential"
	TypeCommercial  Type = "commercial"
	TypeFurnished   Type = "furnished"
	TypeStudent     Type = "student"
	TypeOffice      Type = "office"
	TypeOther       Type = "other"
)

var typeAliases = map[string]Type{
	"residential": TypeResidential, "apartment": TypeResidential, "house": TypeResidential,
	"home": TypeResidential, "سكني": TypeResidential, "شقة": TypeResidential, "منزل": TypeResidential,
	"commercial": TypeCommercial, "shop": TypeCommercial, "store": TypeCommercial,
	"تجاري": TypeCommercial, "محل": TypeCommercial, "محل تجاري": TypeCommercial,
	"furnished": TypeFurnished, "furnished apartment": TypeFurnished,
	"مفروش": TypeFurnished, "مفروشة": TypeFurnished, "شقة مفروشة": TypeFurnished,
	"student": TypeStudent, "students": TypeStudent, "student housing": TypeStudent,
	"طلاب": TypeStudent, "طلابي": TypeStudent, "سكن طلاب": TypeStudent,
	"office": TypeOffice, "مكتب": TypeOffice, "مكتبي": TypeOffice,
	"other": TypeOther, "اخرى": TypeOther, "أخرى": TypeOther,
}

// ParseType maps a label or alias to a Type.
func ParseType(s string) (Type, bool) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// FieldName identifies a structured field.
type FieldName string

const (
	FieldLandlordName        FieldName = "landlord_name"
	FieldLandlordID          FieldName = "landlord_id"
	FieldTenantName          FieldName = "tenant_name"
	FieldTenantID            FieldName = "tenant_id"
	FieldPropertyAddress     FieldName = "property_address"
	FieldPropertyDescription FieldName = "property_description"
	FieldCity                FieldName = "city"
	FieldRentAmount          FieldName = "rent_amount"
	FieldCurrency            FieldName = "currency"
	FieldPaymentFrequency    FieldName = "payment_frequency"
	FieldDeposit             FieldName = "deposit"
	FieldStartDate           FieldName = "start_date"
	FieldEndDate             FieldName = "end_date"
)

// FieldOrder lists every field in display order.
var FieldOrder = []FieldName{
	FieldLandlordName, FieldLandlordID, FieldTenantName, FieldTenantID,
	FieldPropertyAddress, FieldPropertyDescription, FieldCity,
	FieldRentAmount, FieldCurrency, FieldPaymentFrequency, FieldDeposit,
	FieldStartDate, FieldEndDate,
}

type fieldMeta struct {
	personal bool
	labelEN  string
	labelAR  string
	holderEN string
	holderAR string
}

var fieldTable = map[FieldName]fieldMeta{
	FieldLandlordName:        {true, "Landlord", "المؤجر", "[Landlord full name]", "[اسم المؤجر الكامل]"},
	FieldLandlordID:          {true, "Landlord national ID", "الرقم الوطني للمؤجر", "[Landlord national ID]", "[الرقم الوطني للمؤجر]"},
	FieldTenantName:          {true, "Tenant", "المستأجر", "[Tenant full name]", "[اسم المستأجر الكامل]"},
	FieldTenantID:            {true, "Tenant national ID", "الرقم الوطني للمستأجر", "[Tenant national ID]", "[الرقم الوطني للمستأجر]"},
	FieldPropertyAddress:     {true, "Property address", "عنوان العقار", "[Property address]", "[عنوان العقار]"},
	FieldPropertyDescription: {false, "Property description", "وصف العقار", "[Property description]", "[وصف العقار]"},
	FieldCity:                {false, "City", "المدينة", "[City]", "[المدينة]"},
	FieldRentAmount:          {false, "Rent", "بدل الإيجار", "[Rent amount]", "[قيمة الإيجار]"},
	FieldCurrency:            {false, "Currency", "العملة", "[Currency]", "[العملة]"},
	FieldPaymentFrequency:    {false, "Payment frequency", "دورية الدفع", "[Payment frequency]", "[دورية الدفع]"},
	FieldDeposit:             {false, "Security deposit", "مبلغ التأمين", "[Deposit amount]", "[مبلغ التأمين]"},
	FieldStartDate:           {false, "Start date", "تاريخ البدء", "[Start date]", "[تاريخ البدء]"},
	FieldEndDate:             {false, "End date", "تاريخ الانتهاء", "[End date]", "[تاريخ الانتهاء]"},
}

// Valid reports whether f is a known field.
func (f FieldName) Valid() bool {
	_, ok := fieldTable[f]
	return ok
}

// Personal reports whether f holds personal data. Personal fields are always
// placeholders in a freshly generated contract.
func (f FieldName) Personal() bool {
	return fieldTable[f].personal
}

// Label returns the field's display label in lang.
func (f FieldName) Label(lang language.Language) string {
	m := fieldTable[f]
	return lang.Pick(m.labelAR, m.labelEN)
}

// PlaceholderLabel returns the text rendered for an unsupplied field.
func (f FieldName) PlaceholderLabel(lang language.Language) string {
	m, ok := fieldTable[f]
	if !ok {
		return "[" + string(f) + "]"
	}
	return lang.Pick(m.holderAR, m.holderEN)
}

// FieldValue is a concrete value or the placeholder sentinel.
type FieldValue struct {
	Value       string `json:"value,omitempty"`
	Placeholder bool   `json:"placeholder"`
}

// Placeholder returns the "not yet supplied" sentinel.
func Placeholder() FieldValue { return FieldValue{Placeholder: true} }

// Concrete wraps a supplied value.
func Concrete(v string) FieldValue { return FieldValue{Value: v} }

// IsConcrete reports whether the field holds a supplied value.
func (v FieldValue) IsConcrete() bool { return !v.Placeholder && v.Value != "" }

// Category is the legal-category tag of a clause.
type Category string

const (
	CategoryParties      Category = "parties"
	CategoryProperty     Category = "property"
	CategoryUse          Category = "use"
	CategoryTerm         Category = "term"
	CategoryRent         Category = "rent"
	CategoryPayment      Category = "payment"
	CategoryDeposit      Category = "deposit"
	CategoryUtilities    Category = "utilities"
	CategoryMaintenance  Category = "maintenance"
	CategoryAccess       Category = "access"
	CategoryAlterations  Category = "alterations"
	CategorySubletting   Category = "subletting"
	CategoryInsurance    Category = "insurance"
	CategoryNotices      Category = "notices"
	CategoryTermination  Category = "termination"
	CategoryGoverningLaw Category = "governing_law"
	CategoryFurnishing   Category = "furnishing"
	CategoryCommercial   Category = "commercial"
	CategoryOccupancy    Category = "occupancy"
	CategoryParking      Category = "parking"
	CategoryPets         Category = "pets"
	CategoryGarden       Category = "garden"
	CategorySharedAreas  Category = "shared_areas"
	CategoryShortTerm    Category = "short_term"
	CategoryGeneral      Category = "general"
)

// Clause is one numbered clause. Body may reference fields as {field_name}.
type Clause struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Locked   bool     `json:"locked"`
	Category Category `json:"category"`
}

// State is one lease contract.
type State struct {
	ID         string                   `json:"id"`
	Type       Type                     `json:"type"`
	Language   language.Language        `json:"language"`
	Clauses    []Clause                 `json:"clauses"`
	Fields     map[FieldName]FieldValue `json:"fields"`
	Revision   int64                    `json:"revision"`
	CreatedAt  time.Time                `json:"created_at"`
	Supersedes string                   `json:"supersedes,omitempty"`
	Contexts   []string                 `json:"contexts,omitempty"`
}

// Clone returns a deep copy. A nil receiver yields nil.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Clauses = append([]Clause(nil), s.Clauses...)
	c.Contexts = append([]string(nil), s.Contexts...)
	c.Fields = make(map[FieldName]FieldValue, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	return &c
}

// Field returns the value of name, or the placeholder when absent.
func (s *State) Field(name FieldName) FieldValue {
	if v, ok := s.Fields[name]; ok {
		return v
	}
	return Placeholder()
}

// FindClause returns the clause with id and its index.
func (s *State) FindClause(id string) (Clause, int, bool) {
	for i, c := range s.Clauses {
		if c.ID == id {
			return c, i, true
		}
	}
	return Clause{}, -1, false
}

// NextClauseID returns one more than the largest numeric clause ID.
func (s *State) NextClauseID() string {
	max := 0
	for _, c := range s.Clauses {
		if n, err := strconv.Atoi(c.ID); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

// HasCategory reports whether any clause carries cat.
func (s *State) HasCategory(cat Category) bool {
	for _, c := range s.Clauses {
		if c.Category == cat {
			return true
		}
	}
	return false
}

// PlaceholderFields lists fields still holding the sentinel, in display order.
func (s *State) PlaceholderFields() []FieldName {
	var out []FieldName
	for _, f := range FieldOrder {
		if !s.Field(f).IsConcrete() {
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// Rendering
// =============================================================================

// RenderBody substitutes {field_name} references in body.
func (s *State) RenderBody(body string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(body, '{')
		if open < 0 {
			b.WriteString(body)
			break
		}
		closeIdx := strings.IndexByte(body[open:], '}')
		if closeIdx < 0 {
			b.WriteString(body)
			break
		}
		closeIdx += open
		name := FieldName(body[open+1 : closeIdx])
		b.WriteString(body[:open])
		if name.Valid() {
			if v := s.Field(name); v.IsConcrete() {
				b.WriteString(v.Value)
			} else {
				b.WriteString(name.PlaceholderLabel(s.Language))
			}
		} else {
			b.WriteString(body[open : closeIdx+1])
		}
		body = body[closeIdx+1:]
	}
	return b.String()
}

// Title returns the contract heading in the contract language.
func (s *State) Title() string {
	titles := map[Type][2]string{
		TypeResidential: {"عقد إيجار سكني", "Residential Lease Agreement"},
		TypeCommercial:  {"عقد إيجار تجاري", "Commercial Lease Agreement"},
		TypeFurnished:   {"عقد إيجار شقة مفروشة", "Furnished Apartment Lease Agreement"},
		TypeStudent:     {"عقد إيجار سكن طلاب", "Student Housing Lease Agreement"},
		TypeOffice:      {"عقد إيجار مكتب", "Office Lease Agreement"},
		TypeOther:       {"عقد إيجار", "Lease Agreement"},
	}
	t, ok := titles[s.Type]
	if !ok {
		t = titles[TypeOther]
	}
	return s.Language.Pick(t[0], t[1])
}

// Render returns the full contract as Markdown.
func (s *State) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Title())

	for _, c := range s.Clauses {
		fmt.Fprintf(&b, "## %s. %s\n\n%s\n\n", c.ID, c.Title, s.RenderBody(c.Body))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// ConcreteFields returns the supplied fields.
func (s *State) ConcreteFields() map[FieldName]string {
	out := make(map[FieldName]string)
	for k, v := range s.Fields {
		if v.IsConcrete() {
			out[k] = v.Value
		}
	}
	return out
}

// SortedContexts returns a sorted, deduplicated copy of contexts.
func SortedContexts(contexts []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range contexts {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
