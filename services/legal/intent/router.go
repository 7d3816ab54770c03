// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/language"
	"github.com/AleutianAI/AleutianLease/services/llm"
)

var tracer = otel.Tracer("leasecore.legal.intent")

// Config controls the classification call.
type Config struct {
	// Timeout bounds the whole classification including the retry.
	Timeout time.Duration

	// Attempts is the total number of classifier calls. Default: 2.
	Attempts int

	// Temperature for the classifier. Default: 0.
	Temperature float32

	// MaxTokens for the classifier reply. Default: 1024.
	MaxTokens int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Timeout: 20 * time.Second, Attempts: 2, MaxTokens: 1024}
}

// classification is the JSON payload requested from the classifier.
type classification struct {
	Intent       string            `json:"intent" validate:"required,oneof=generate_contract edit_contract review_contract explain_clause export_pdf unsupported"`
	Confidence   float64           `json:"confidence" validate:"gte=0,lte=1"`
	ContractType string            `json:"contract_type" validate:"max=64"`
	City         string            `json:"city" validate:"max=128"`
	Contexts     []string          `json:"contexts" validate:"max=16"`
	Fields       map[string]string `json:"fields" validate:"max=32"`
	Targets      []rawTarget       `json:"targets" validate:"max=32,dive"`
	Clause       string            `json:"clause" validate:"max=32"`
	Topic        string            `json:"topic" validate:"max=512"`
	Focus        string            `json:"focus" validate:"max=512"`
	Format       string            `json:"format" validate:"max=16"`
	Reason       string            `json:"reason" validate:"max=512"`
}

type rawTarget struct {
	Field  string `json:"field" validate:"max=64"`
	Clause string `json:"clause" validate:"max=32"`
	Op     string `json:"op" validate:"omitempty,oneof=set replace add remove"`
	Value  string `json:"value" validate:"max=8192"`
	Title  string `json:"title" validate:"max=256"`
}

// Router classifies user turns.
//
// # Thread Safety
//
// Safe for concurrent use.
type Router struct {
	client   llm.LLMClient
	cfg      Config
	validate *validator.Validate
}

// NewRouter creates a Router. client must not be nil.
func NewRouter(client llm.LLMClient, cfg Config) *Router {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Router{client: client, cfg: cfg, validate: validator.New()}
}

// Classify maps a user turn to an Intent.
//
// # Description
//
// Asks the classifier for a constrained JSON payload, validates it and
// normalizes the parameters. Applies two downgrades: a turn that needs a
// contract when none exists, and an edit with no resolvable target, both
// become unsupported with Requested set to the original label.
//
// # Inputs
//
//   - ctx: Cancellation. Classify applies its own timeout on top.
//   - text: The raw user turn.
//   - lang: Detected language, used for the prompt.
//   - current: The committed contract, nil when the session has none.
//
// # Outputs
//
//   - Intent: Always a valid intent. Failures become KindUnsupported.
func (r *Router) Classify(ctx context.Context, text string, lang language.Language, current *contract.State) Intent {
	ctx, span := tracer.Start(ctx, "Router.Classify")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var c classification
	params := llm.GenerationParams{Temperature: llm.Float32(r.cfg.Temperature), MaxTokens: llm.Int(r.cfg.MaxTokens)}
	attempts, err := llm.GenerateJSON(ctx, r.client, buildPrompt(text, lang, current), params, &c,
		func() error { return r.validate.Struct(&c) }, r.cfg.Attempts)
	span.SetAttributes(attribute.Int("classify.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		slog.Warn("Intent classification failed", "error", err, "attempts", attempts)
		return NewUnsupported("", CodeClassifierUnavailable, "")
	}

	in := r.fromClassification(c, text, current)
	span.SetAttributes(
		attribute.String("intent.kind", string(in.Kind)),
		attribute.String("intent.requested", string(in.Requested)),
	)
	return in
}

func (r *Router) fromClassification(c classification, text string, current *contract.State) Intent {
	kind := Kind(c.Intent)
	if kind == KindUnsupported {
		return NewUnsupported(KindUnsupported, CodeOutOfScope, strings.TrimSpace(c.Reason))
	}
	if kind.NeedsContract() && current == nil {
		return NewUnsupported(kind, CodeNoContract, "")
	}

	var (
		in  Intent
		err error
	)
	switch kind {
	case KindGenerate:
		in, err = NewGenerate(generateParams(c, text), c.Confidence)
	case KindEdit:
		targets := editTargets(c)
		if len(targets) == 0 {
			return NewUnsupported(kind, CodeAmbiguousTarget, "")
		}
		in, err = NewEdit(EditParams{Targets: targets}, c.Confidence)
		if err != nil {
			return NewUnsupported(kind, CodeAmbiguousTarget, ReasonAmbiguousTarget+": "+err.Error())
		}
	case KindReview:
		in = NewReview(ReviewParams{Focus: strings.TrimSpace(c.Focus)}, c.Confidence)
	case KindExplain:
		p := ExplainParams{Topic: strings.TrimSpace(c.Topic)}
		if id, ok := ClauseRef(c.Clause); ok {
			p.ClauseID = id
		} else if id, ok := ClauseRef(text); ok {
			p.ClauseID = id
		}
		in, err = NewExplain(p, c.Confidence)
		if err != nil {
			return NewUnsupported(kind, CodeAmbiguousTarget, "which clause should be explained is unclear")
		}
	case KindExport:
		in, err = NewExport(ExportParams{Format: c.Format}, c.Confidence)
	default:
		return NewUnsupported(kind, CodeUnrecognized, "")
	}
	if err != nil {
		slog.Warn("Classifier parameters rejected", "intent", kind, "error", err)
		return NewUnsupported(kind, CodeUnrecognized, fmt.Sprintf("the %s request was incomplete: %v", kind, err))
	}
	return in
}

func generateParams(c classification, text string) GenerateParams {
	p := GenerateParams{
		ContractType: normalizeType(c.ContractType),
		City:         strings.TrimSpace(c.City),
		Fields:       map[contract.FieldName]string{},
	}

	var contexts []string
	for _, ctxTag := range c.Contexts {
		tag := strings.ToLower(strings.TrimSpace(ctxTag))
		if contract.KnownContext(tag) {
			contexts = append(contexts, tag)
		}
	}
	p.Contexts = contract.SortedContexts(append(contexts, contract.DetectContexts(text)...))

	// Sorted keys so a money split cannot be overwritten depending on map order.
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := CanonicalField(k)
		if !f.Valid() || strings.TrimSpace(c.Fields[k]) == "" {
			continue
		}
		for name, v := range normalizeFieldValue(f, c.Fields[k]) {
			if _, explicit := p.Fields[name]; explicit && name == contract.FieldCurrency && f != contract.FieldCurrency {
				continue
			}
			p.Fields[name] = v
		}
	}
	if p.City != "" {
		if _, ok := p.Fields[contract.FieldCity]; !ok {
			p.Fields[contract.FieldCity] = p.City
		}
	} else if v, ok := p.Fields[contract.FieldCity]; ok {
		p.City = v
	}
	return p
}

func editTargets(c classification) []EditTarget {
	var out []EditTarget
	currency := ""
	for _, rt := range c.Targets {
		op := EditOp(strings.TrimSpace(rt.Op))
		switch {
		case strings.TrimSpace(rt.Field) != "":
			f := CanonicalField(rt.Field)
			if op == "" || op == OpReplace {
				op = OpSet
			}
			if op != OpSet {
				continue
			}
			for name, v := range normalizeFieldValue(f, rt.Value) {
				if name == contract.FieldCurrency && name != f {
					currency = v
					continue
				}
				out = append(out, EditTarget{Field: name, Op: OpSet, Value: v})
			}
		case strings.TrimSpace(rt.Clause) != "":
			id, ok := ClauseRef(rt.Clause)
			if !ok {
				id = strings.TrimSpace(rt.Clause)
			}
			if op == OpAdd {
				out = append(out, EditTarget{Op: OpAdd, Value: strings.TrimSpace(rt.Value), Title: strings.TrimSpace(rt.Title)})
				continue
			}
			if op == "" || op == OpSet {
				op = OpReplace
			}
			out = append(out, EditTarget{ClauseID: id, Op: op, Value: strings.TrimSpace(rt.Value), Title: strings.TrimSpace(rt.Title)})
		case op == OpAdd && strings.TrimSpace(rt.Value) != "":
			out = append(out, EditTarget{Op: OpAdd, Value: strings.TrimSpace(rt.Value), Title: strings.TrimSpace(rt.Title)})
		}
	}
	if currency != "" && !hasFieldTarget(out, contract.FieldCurrency) {
		out = append(out, EditTarget{Field: contract.FieldCurrency, Op: OpSet, Value: currency})
	}
	return out
}

func hasFieldTarget(ts []EditTarget, f contract.FieldName) bool {
	for _, t := range ts {
		if t.Field == f {
			return true
		}
	}
	return false
}

// =============================================================================
// Prompt
// =============================================================================

func buildPrompt(text string, lang language.Language, current *contract.State) string {
	var b strings.Builder
	b.WriteString(`You classify requests to a Jordanian lease contract assistant.

Labels:
- generate_contract: create a new lease contract
- edit_contract: change fields or clauses of the current contract
- review_contract: review the current contract for legal problems
- explain_clause: explain a clause of the current contract or a lease law topic
- export_pdf: download or export the current contract
- unsupported: anything else, including non-lease contracts

JSON schema:
{"intent": label, "confidence": 0..1,
 "contract_type": "residential|commercial|furnished|student|office|other" (generate only),
 "city": string, "contexts": [string], "fields": {field: value} (generate only),
 "targets": [{"field": field, "clause": clause number, "op": "set|replace|add|remove", "value": string, "title": string}] (edit only),
 "clause": clause number (explain only), "topic": string, "focus": string, "format": "pdf|markdown",
 "reason": string (unsupported only)}

Fields: `)
	names := make([]string, len(contract.FieldOrder))
	for i, f := range contract.FieldOrder {
		names[i] = string(f)
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\nWrite money values with their currency, for example \"400 JOD\". Dates as DD/MM/YYYY.\n")

	if current == nil {
		b.WriteString("\nThe session has no contract yet.\n")
	} else {
		fmt.Fprintf(&b, "\nCurrent contract: %s lease, %d clauses.\n", current.Type, len(current.Clauses))
		for _, cl := range current.Clauses {
			lock := ""
			if cl.Locked {
				lock = " (locked)"
			}
			fmt.Fprintf(&b, "  %s. %s [%s]%s\n", cl.ID, cl.Title, cl.Category, lock)
		}
	}
	fmt.Fprintf(&b, "\nThe user writes in %s.\nRequest:\n%s\n", lang, text)
	return b.String()
}
