// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manager computes proposed contract states.
//
// # Description
//
// The Manager turns a classified intent into a Proposal: a private copy of
// the next state plus the delta or review findings that explain it. It never
// commits. The composer decides whether a proposal becomes the session's
// committed state.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/dates"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

var tracer = otel.Tracer("leasecore.legal.manager")

// ErrNoContract is returned for intents that need a contract when the
// session has none.
var ErrNoContract = errors.New("no contract in session")

// DefaultCurrency is used until the user supplies one.
const DefaultCurrency = "JOD"

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides contract ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// Manager applies intents to contract states.
//
// # Thread Safety
//
// Stateless apart from its collaborators. Safe for concurrent use.
type Manager struct {
	dates *dates.Validator
	now   func() time.Time
	newID func() string
}

// New builds a Manager. A nil validator uses the default date bounds.
func New(validator *dates.Validator, opts ...Option) *Manager {
	if validator == nil {
		validator = dates.NewValidator(dates.DefaultConfig())
	}
	m := &Manager{
		dates: validator,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply computes the proposal for req.
//
// # Description
//
// Generate builds a fresh state. Edit applies every target to a copy of the
// current state and fails as a whole if any target fails. Review, explain
// and export are read-only. req.Current is never modified.
//
// # Outputs
//
//   - *Proposal: The proposed next state.
//   - error: *contract.StateError, *dates.DateError or ErrNoContract. The
//     committed state is unaffected in every case.
func (m *Manager) Apply(ctx context.Context, req Request) (*Proposal, error) {
	_, span := tracer.Start(ctx, "Manager.Apply")
	defer span.End()
	span.SetAttributes(attribute.String("intent", string(req.Intent.Kind)))

	p, err := m.apply(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "proposal rejected")
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("mutating", p.Mutating),
		attribute.Int("delta.fields", len(p.Delta.Fields)),
		attribute.Int("delta.clauses", len(p.Delta.Clauses)),
		attribute.Int("findings", len(p.Findings)),
	)
	return p, nil
}

func (m *Manager) apply(req Request) (*Proposal, error) {
	in := req.Intent

	if p, ok := in.Generate(); ok {
		return m.generate(req, p)
	}
	if in.Kind.NeedsContract() && req.Current == nil {
		return nil, ErrNoContract
	}
	if p, ok := in.Edit(); ok {
		return m.edit(req, p)
	}
	if p, ok := in.Review(); ok {
		return m.review(req, p), nil
	}
	if p, ok := in.Explain(); ok {
		return m.explain(req, p)
	}
	if _, ok := in.Export(); ok {
		if err := contract.CheckInvariants(req.Current); err != nil {
			return nil, err
		}
		return readOnly(req), nil
	}
	return readOnly(req), nil
}

func readOnly(req Request) *Proposal {
	return &Proposal{
		Intent:     req.Intent,
		Base:       req.Current,
		Next:       req.Current.Clone(),
		Unverified: req.Unverified,
	}
}

// =============================================================================
// generate_contract
// =============================================================================

func (m *Manager) generate(req Request, p intent.GenerateParams) (*Proposal, error) {
	t, ok := contract.ParseType(p.ContractType)
	if !ok {
		return nil, contract.NewStateError(contract.KindUnsupportedType, p.ContractType,
			fmt.Sprintf("unsupported contract type %q; supported types are residential, commercial, furnished, student, office and other", p.ContractType),
			fmt.Sprintf("نوع العقد %q غير مدعوم. الأنواع المدعومة: سكني، تجاري، مفروش، طلاب، مكتب، أخرى", p.ContractType))
	}

	lang := req.Language
	if !lang.Valid() {
		lang = language.English
	}
	now := m.now().UTC()

	next := &contract.State{
		ID:        m.newID(),
		Type:      t,
		Language:  lang,
		Fields:    make(map[contract.FieldName]contract.FieldValue, len(contract.FieldOrder)),
		CreatedAt: now,
		Contexts:  contract.SortedContexts(p.Contexts),
	}
	if req.Current != nil {
		next.Supersedes = req.Current.ID
	}
	for _, f := range contract.FieldOrder {
		next.Fields[f] = contract.Placeholder()
	}
	next.Fields[contract.FieldCurrency] = contract.Concrete(DefaultCurrency)

	for _, f := range contract.FieldOrder {
		raw, ok := p.Fields[f]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" || f.Personal() {
			continue
		}
		switch f {
		case contract.FieldStartDate, contract.FieldEndDate:
			continue
		case contract.FieldRentAmount, contract.FieldDeposit:
			if amount, ok := normalizeAmount(raw); ok {
				next.Fields[f] = contract.Concrete(amount)
			}
		case contract.FieldCurrency:
			next.Fields[f] = contract.Concrete(strings.ToUpper(raw))
		default:
			next.Fields[f] = contract.Concrete(raw)
		}
	}

	if err := m.setDates(next, p.Fields[contract.FieldStartDate], p.Fields[contract.FieldEndDate], now); err != nil {
		return nil, err
	}

	next.Clauses = contract.BuildClauses(t, next.Contexts, lang)
	if err := contract.CheckInvariants(next); err != nil {
		return nil, err
	}

	delta := Delta{}
	for _, f := range contract.FieldOrder {
		if v := next.Fields[f]; v.IsConcrete() {
			delta.Fields = append(delta.Fields, FieldChange{Field: f, Old: contract.Placeholder(), New: v})
		}
	}
	for _, c := range next.Clauses {
		delta.Clauses = append(delta.Clauses, ClauseChange{ClauseID: c.ID, Change: ClauseAdded, NewTitle: c.Title, NewBody: c.Body})
	}

	return &Proposal{
		Intent:     req.Intent,
		Base:       req.Current,
		Next:       next,
		Mutating:   true,
		Delta:      delta,
		Unverified: req.Unverified,
	}, nil
}

// setDates validates supplied dates in draft mode against reference and
// stores them in display form. Empty values are left as placeholders.
func (m *Manager) setDates(s *contract.State, startRaw, endRaw string, reference time.Time) error {
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)

	switch {
	case startRaw != "" && endRaw != "":
		vd, err := m.dates.ValidateRange(startRaw, endRaw, dates.ModeDraft, reference)
		if err != nil {
			return err
		}
		s.Fields[contract.FieldStartDate] = contract.Concrete(dates.Format(vd.Start))
		s.Fields[contract.FieldEndDate] = contract.Concrete(dates.Format(vd.End))
	case startRaw != "":
		start, err := m.parseOne("start", startRaw)
		if err != nil {
			return err
		}
		if err := m.dates.CheckStart(start, dates.ModeDraft, reference); err != nil {
			return err
		}
		s.Fields[contract.FieldStartDate] = contract.Concrete(dates.Format(start))
	case endRaw != "":
		end, err := m.parseOne("end", endRaw)
		if err != nil {
			return err
		}
		s.Fields[contract.FieldEndDate] = contract.Concrete(dates.Format(end))
	}
	return nil
}

func (m *Manager) parseOne(field, raw string) (time.Time, error) {
	t, err := m.dates.ParseDate(raw)
	if de, ok := dates.AsDateError(err); ok {
		de.Field = field
		return t, de
	}
	return t, err
}

// normalizeAmount accepts a positive decimal amount, ignoring thousands
// separators.
func normalizeAmount(raw string) (string, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// =============================================================================
// edit_contract
// =============================================================================

func (m *Manager) edit(req Request, p intent.EditParams) (*Proposal, error) {
	base := req.Current
	next := base.Clone()

	datesTouched := false
	for _, t := range p.Targets {
		var err error
		switch t.Op {
		case intent.OpSet:
			err = setField(next, t)
			if t.Field == contract.FieldStartDate || t.Field == contract.FieldEndDate {
				datesTouched = true
			}
		case intent.OpReplace:
			err = replaceClause(next, t)
		case intent.OpRemove:
			err = removeClause(next, t)
		case intent.OpAdd:
			err = addClause(next, t)
		default:
			err = contract.NewStateError(contract.KindUnknownTarget, t.Describe(),
				fmt.Sprintf("unknown edit operation %q", t.Op),
				fmt.Sprintf("عملية تعديل غير معروفة %q", t.Op))
		}
		if err != nil {
			return nil, err
		}
	}

	if datesTouched {
		if err := m.checkEditedDates(next); err != nil {
			return nil, err
		}
	}
	if err := contract.CheckInvariants(next); err != nil {
		return nil, err
	}

	return &Proposal{
		Intent:     req.Intent,
		Base:       base,
		Next:       next,
		Mutating:   true,
		Delta:      diff(base, next),
		Unverified: req.Unverified,
	}, nil
}

func setField(s *contract.State, t intent.EditTarget) error {
	if !t.Field.Valid() {
		return contract.NewStateError(contract.KindUnknownTarget, string(t.Field),
			fmt.Sprintf("the contract has no field %q", t.Field),
			fmt.Sprintf("لا يوجد في العقد حقل باسم %q", t.Field))
	}
	value := strings.TrimSpace(t.Value)
	if value == "" {
		return contract.NewStateError(contract.KindInvariantViolation, string(t.Field),
			fmt.Sprintf("%s cannot be set to an empty value", t.Field.Label(language.English)),
			fmt.Sprintf("لا يمكن ترك %s فارغاً", t.Field.Label(language.Arabic)))
	}
	switch t.Field {
	case contract.FieldRentAmount, contract.FieldDeposit:
		amount, ok := normalizeAmount(value)
		if !ok {
			return contract.NewStateError(contract.KindInvariantViolation, string(t.Field),
				fmt.Sprintf("%s must be a positive amount, got %q", t.Field.Label(language.English), value),
				fmt.Sprintf("يجب أن يكون %s مبلغاً موجباً، القيمة المدخلة %q", t.Field.Label(language.Arabic), value))
		}
		value = amount
	case contract.FieldCurrency:
		value = strings.ToUpper(value)
	}
	s.Fields[t.Field] = contract.Concrete(value)
	return nil
}

func unknownClause(id string) error {
	return contract.NewStateError(contract.KindUnknownTarget, id,
		fmt.Sprintf("the contract has no clause %s", id),
		fmt.Sprintf("لا يوجد في العقد بند رقم %s", id))
}

func lockedClause(c contract.Clause) error {
	return contract.NewStateError(contract.KindInvariantViolation, c.ID,
		fmt.Sprintf("clause %s (%s) is a mandatory legal clause and cannot be changed", c.ID, c.Title),
		fmt.Sprintf("البند %s (%s) بند قانوني إلزامي ولا يمكن تعديله", c.ID, c.Title))
}

func replaceClause(s *contract.State, t intent.EditTarget) error {
	c, i, ok := s.FindClause(t.ClauseID)
	if !ok {
		return unknownClause(t.ClauseID)
	}
	if c.Locked {
		return lockedClause(c)
	}
	body := strings.TrimSpace(t.Value)
	if body == "" {
		return contract.NewStateError(contract.KindInvariantViolation, c.ID,
			fmt.Sprintf("clause %s cannot be empty", c.ID),
			fmt.Sprintf("لا يمكن أن يكون البند %s فارغاً", c.ID))
	}
	c.Body = body
	if title := strings.TrimSpace(t.Title); title != "" {
		c.Title = title
	}
	s.Clauses[i] = c
	return nil
}

func removeClause(s *contract.State, t intent.EditTarget) error {
	c, i, ok := s.FindClause(t.ClauseID)
	if !ok {
		return unknownClause(t.ClauseID)
	}
	if c.Locked {
		return lockedClause(c)
	}
	if len(s.Clauses)-1 < contract.MinClauses {
		return contract.NewStateError(contract.KindInvariantViolation, c.ID,
			fmt.Sprintf("removing clause %s would leave fewer than %d clauses", c.ID, contract.MinClauses),
			fmt.Sprintf("حذف البند %s سيجعل عدد البنود أقل من %d", c.ID, contract.MinClauses))
	}
	s.Clauses = append(s.Clauses[:i:i], s.Clauses[i+1:]...)
	return nil
}

// addClause appends a clause with the next free ID. Existing clause IDs are
// never renumbered.
func addClause(s *contract.State, t intent.EditTarget) error {
	if len(s.Clauses)+1 > contract.MaxClauses {
		return contract.NewStateError(contract.KindInvariantViolation, "clauses",
			fmt.Sprintf("the contract already has the maximum of %d clauses", contract.MaxClauses),
			fmt.Sprintf("وصل العقد إلى الحد الأقصى وهو %d بنداً", contract.MaxClauses))
	}
	body := strings.TrimSpace(t.Value)
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = s.Language.Pick("بند إضافي", "Additional Clause")
	}
	s.Clauses = append(s.Clauses, contract.Clause{
		ID:       s.NextClauseID(),
		Title:    title,
		Body:     body,
		Category: contract.InferCategory(title + " " + body),
	})
	return nil
}

// checkEditedDates validates the dates after an edit in draft mode against
// the contract creation date. An inverted range is an invariant violation;
// other date problems are returned as DateErrors.
func (m *Manager) checkEditedDates(s *contract.State) error {
	start, end := s.Field(contract.FieldStartDate), s.Field(contract.FieldEndDate)
	startRaw, endRaw := "", ""
	if start.IsConcrete() {
		startRaw = start.Value
	}
	if end.IsConcrete() {
		endRaw = end.Value
	}

	err := m.setDates(s, startRaw, endRaw, s.CreatedAt)
	if de, ok := dates.AsDateError(err); ok && de.Kind == dates.KindInvertedRange {
		return &contract.StateError{
			Kind:      contract.KindInvariantViolation,
			Target:    string(contract.FieldEndDate),
			Message:   de.Message,
			MessageAR: de.MessageAR,
			Err:       de,
		}
	}
	return err
}

// diff lists what changed between base and next. Changed and removed
// clauses follow base order; added clauses follow next order.
func diff(base, next *contract.State) Delta {
	var d Delta
	for _, f := range contract.FieldOrder {
		oldV, newV := base.Field(f), next.Field(f)
		if oldV != newV {
			d.Fields = append(d.Fields, FieldChange{Field: f, Old: oldV, New: newV})
		}
	}

	for _, old := range base.Clauses {
		cur, _, ok := next.FindClause(old.ID)
		switch {
		case !ok:
			d.Clauses = append(d.Clauses, ClauseChange{ClauseID: old.ID, Change: ClauseRemoved, OldTitle: old.Title, OldBody: old.Body})
		case cur.Title != old.Title || cur.Body != old.Body:
			d.Clauses = append(d.Clauses, ClauseChange{
				ClauseID: old.ID, Change: ClauseChanged,
				OldTitle: old.Title, OldBody: old.Body,
				NewTitle: cur.Title, NewBody: cur.Body,
			})
		}
	}
	for _, c := range next.Clauses {
		if _, _, ok := base.FindClause(c.ID); !ok {
			d.Clauses = append(d.Clauses, ClauseChange{ClauseID: c.ID, Change: ClauseAdded, NewTitle: c.Title, NewBody: c.Body})
		}
	}
	return d
}

// =============================================================================
// explain_clause
// =============================================================================

func (m *Manager) explain(req Request, p intent.ExplainParams) (*Proposal, error) {
	prop := readOnly(req)
	prop.Topic = p.Topic
	if p.ClauseID == "" {
		return prop, nil
	}
	c, _, ok := req.Current.FindClause(p.ClauseID)
	if !ok {
		return nil, unknownClause(p.ClauseID)
	}
	prop.Clause = &c
	return prop, nil
}
