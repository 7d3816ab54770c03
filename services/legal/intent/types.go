// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies a user turn into a typed lease operation.
//
// # Description
//
// An Intent is a tagged union: Kind selects exactly one parameter variant,
// and each variant is validated by its constructor, so a value obtained from
// this package is always well formed. Classification itself never fails; any
// problem becomes an unsupported intent carrying a reason.
package intent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
)

// Kind is the operation a turn asks for.
type Kind string

const (
	KindGenerate    Kind = "generate_contract"
	KindEdit        Kind = "edit_contract"
	KindReview      Kind = "review_contract"
	KindExplain     Kind = "explain_clause"
	KindExport      Kind = "export_pdf"
	KindUnsupported Kind = "unsupported"
)

// Valid reports whether k is a known label.
func (k Kind) Valid() bool {
	switch k {
	case KindGenerate, KindEdit, KindReview, KindExplain, KindExport, KindUnsupported:
		return true
	}
	return false
}

// NeedsContract reports whether k operates on an existing contract.
func (k Kind) NeedsContract() bool {
	switch k {
	case KindEdit, KindReview, KindExplain, KindExport:
		return true
	}
	return false
}

// EditOp is the operation of one edit target.
type EditOp string

const (
	OpSet     EditOp = "set"
	OpReplace EditOp = "replace"
	OpAdd     EditOp = "add"
	OpRemove  EditOp = "remove"
)

// EditTarget is one change inside an edit. Exactly one of Field or ClauseID
// is set, except for OpAdd which carries neither.
type EditTarget struct {
	Field    contract.FieldName `json:"field,omitempty"`
	ClauseID string             `json:"clause_id,omitempty"`
	Op       EditOp             `json:"op"`
	Value    string             `json:"value,omitempty"`
	Title    string             `json:"title,omitempty"`
}

// Describe returns a short label for logs and reasons.
func (t EditTarget) Describe() string {
	switch {
	case t.Field != "":
		return "field " + string(t.Field)
	case t.ClauseID != "":
		return "clause " + t.ClauseID
	default:
		return "new clause"
	}
}

func (t EditTarget) validate() error {
	switch t.Op {
	case OpSet:
		if t.Field == "" {
			return errors.New("set requires a field")
		}
		if strings.TrimSpace(t.Value) == "" {
			return fmt.Errorf("set %s requires a value", t.Field)
		}
	case OpReplace:
		if t.ClauseID == "" {
			return errors.New("replace requires a clause")
		}
		if strings.TrimSpace(t.Value) == "" {
			return fmt.Errorf("replace clause %s requires new text", t.ClauseID)
		}
	case OpRemove:
		if t.ClauseID == "" {
			return errors.New("remove requires a clause")
		}
	case OpAdd:
		if strings.TrimSpace(t.Value) == "" {
			return errors.New("add requires clause text")
		}
	default:
		return fmt.Errorf("unknown edit operation %q", t.Op)
	}
	return nil
}

// =============================================================================
// Parameter variants
// =============================================================================

// GenerateParams creates a new contract. ContractType holds the canonical
// type when it was recognized, otherwise the raw label.
type GenerateParams struct {
	ContractType string
	Contexts     []string
	City         string
	Fields       map[contract.FieldName]string
}

// EditParams changes an existing contract.
type EditParams struct {
	Targets []EditTarget
}

// ReviewParams reviews the contract. Focus narrows the review, optional.
type ReviewParams struct {
	Focus string
}

// ExplainParams explains one clause or a legal topic.
type ExplainParams struct {
	ClauseID string
	Topic    string
}

// ExportParams prepares the contract for download.
type ExportParams struct {
	Format string
}

// Code classifies why a turn is unsupported.
type Code string

const (
	CodeNoContract            Code = "no_contract"
	CodeAmbiguousTarget       Code = "ambiguous_target"
	CodeUnrecognized          Code = "unrecognized"
	CodeClassifierUnavailable Code = "classifier_unavailable"
	CodeOutOfScope            Code = "out_of_scope"
)

// Standard reasons.
const (
	ReasonNoContract      = "no contract in session"
	ReasonAmbiguousTarget = "ambiguous edit target"
)

var reasonText = map[Code][2]string{
	CodeNoContract:            {ReasonNoContract, "لا يوجد عقد في هذه الجلسة بعد. اطلب إنشاء عقد أولاً."},
	CodeAmbiguousTarget:       {ReasonAmbiguousTarget, "لم يتضح أي بند أو حقل تريد تعديله."},
	CodeUnrecognized:          {"the request could not be understood as a lease operation", "لم أتمكن من فهم الطلب كعملية على عقد إيجار."},
	CodeClassifierUnavailable: {"the request could not be classified right now", "تعذر تصنيف الطلب حالياً."},
	CodeOutOfScope:            {"only lease contracts under Jordanian law are supported", "الخدمة تقتصر على عقود الإيجار وفق القانون الأردني."},
}

// UnsupportedParams explains why no operation is performed.
type UnsupportedParams struct {
	Code     Code
	Reason   string
	ReasonAR string
}

// =============================================================================
// Intent
// =============================================================================

// Intent is the classified turn.
type Intent struct {
	Kind Kind

	// Requested is the label produced before any downgrade to unsupported.
	Requested Kind

	Confidence float64

	generate    *GenerateParams
	edit        *EditParams
	review      *ReviewParams
	explain     *ExplainParams
	export      *ExportParams
	unsupported *UnsupportedParams
}

// Generate returns the generate parameters when Kind is KindGenerate.
func (i Intent) Generate() (GenerateParams, bool) {
	if i.generate == nil {
		return GenerateParams{}, false
	}
	return *i.generate, true
}

// Edit returns the edit parameters when Kind is KindEdit.
func (i Intent) Edit() (EditParams, bool) {
	if i.edit == nil {
		return EditParams{}, false
	}
	return *i.edit, true
}

// Review returns the review parameters when Kind is KindReview.
func (i Intent) Review() (ReviewParams, bool) {
	if i.review == nil {
		return ReviewParams{}, false
	}
	return *i.review, true
}

// Explain returns the explain parameters when Kind is KindExplain.
func (i Intent) Explain() (ExplainParams, bool) {
	if i.explain == nil {
		return ExplainParams{}, false
	}
	return *i.explain, true
}

// Export returns the export parameters when Kind is KindExport.
func (i Intent) Export() (ExportParams, bool) {
	if i.export == nil {
		return ExportParams{}, false
	}
	return *i.export, true
}

// Unsupported returns the reason when Kind is KindUnsupported.
func (i Intent) Unsupported() (UnsupportedParams, bool) {
	if i.unsupported == nil {
		return UnsupportedParams{}, false
	}
	return *i.unsupported, true
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// NewGenerate validates p and returns a generate intent.
func NewGenerate(p GenerateParams, confidence float64) (Intent, error) {
	if strings.TrimSpace(p.ContractType) == "" {
		return Intent{}, errors.New("generate requires a contract type")
	}
	for name := range p.Fields {
		if !name.Valid() {
			return Intent{}, fmt.Errorf("unknown field %q", name)
		}
	}
	p.Contexts = contract.SortedContexts(p.Contexts)
	return Intent{Kind: KindGenerate, Requested: KindGenerate, Confidence: clampConfidence(confidence), generate: &p}, nil
}

// NewEdit validates p and returns an edit intent. At least one target is
// required.
func NewEdit(p EditParams, confidence float64) (Intent, error) {
	if len(p.Targets) == 0 {
		return Intent{}, errors.New(ReasonAmbiguousTarget)
	}
	for _, t := range p.Targets {
		if err := t.validate(); err != nil {
			return Intent{}, err
		}
	}
	p.Targets = append([]EditTarget(nil), p.Targets...)
	return Intent{Kind: KindEdit, Requested: KindEdit, Confidence: clampConfidence(confidence), edit: &p}, nil
}

// NewReview returns a review intent.
func NewReview(p ReviewParams, confidence float64) Intent {
	return Intent{Kind: KindReview, Requested: KindReview, Confidence: clampConfidence(confidence), review: &p}
}

// NewExplain validates p and returns an explain intent. A clause or a topic
// is required.
func NewExplain(p ExplainParams, confidence float64) (Intent, error) {
	if p.ClauseID == "" && strings.TrimSpace(p.Topic) == "" {
		return Intent{}, errors.New("explain requires a clause or a topic")
	}
	return Intent{Kind: KindExplain, Requested: KindExplain, Confidence: clampConfidence(confidence), explain: &p}, nil
}

// NewExport validates p and returns an export intent. Format defaults to pdf.
func NewExport(p ExportParams, confidence float64) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(p.Format)) {
	case "", "pdf":
		p.Format = "pdf"
	case "markdown", "md":
		p.Format = "markdown"
	default:
		return Intent{}, fmt.Errorf("unsupported export format %q", p.Format)
	}
	return Intent{Kind: KindExport, Requested: KindExport, Confidence: clampConfidence(confidence), export: &p}, nil
}

// NewUnsupported returns an unsupported intent. requested is the label the
// classifier produced, empty when there was none. An empty reason uses the
// standard text for code.
func NewUnsupported(requested Kind, code Code, reason string) Intent {
	std := reasonText[code]
	if reason == "" {
		reason = std[0]
	}
	if requested == "" {
		requested = KindUnsupported
	}
	return Intent{
		Kind:        KindUnsupported,
		Requested:   requested,
		unsupported: &UnsupportedParams{Code: code, Reason: reason, ReasonAR: std[1]},
	}
}
