// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains request and response types for the lease endpoints.
// Weaviate class definitions live in weaviate_schemas.go.
package datatypes

import (
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxTurnBytes is the maximum size of one user turn.
	MaxTurnBytes = 32 * 1024 // 32KB

	// MaxDocumentBytes is the maximum size of one ingested document.
	MaxDocumentBytes = 4 * 1024 * 1024 // 4MB
)

// Corpus names accepted by the ingestion endpoint.
const (
	CorpusLeaseClause   = string(retrieval.CorpusLeaseClause)
	CorpusLawArticle    = string(retrieval.CorpusLawArticle)
	CorpusCommonMistake = string(retrieval.CorpusCommonMistake)
)

// CorpusClass maps a corpus name to its Weaviate class.
var CorpusClass = map[string]string{
	CorpusLeaseClause:   LeaseClauseClass,
	CorpusLawArticle:    LawArticleClass,
	CorpusCommonMistake: CommonMistakeClass,
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// leaseValidate is the validator instance for lease datatypes.
// Initialized in init() with custom validators.
var leaseValidate *validator.Validate

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

func init() {
	leaseValidate = validator.New()
	_ = leaseValidate.RegisterValidation("session_id", validateSessionID)
	_ = leaseValidate.RegisterValidation("corpus", validateCorpus)
	_ = leaseValidate.RegisterValidation("turnbytes", validateTurnBytes)
	_ = leaseValidate.RegisterValidation("utf8text", validateUTF8)
}

func validateSessionID(fl validator.FieldLevel) bool {
	return sessionIDPattern.MatchString(fl.Field().String())
}

func validateCorpus(fl validator.FieldLevel) bool {
	_, ok := CorpusClass[fl.Field().String()]
	return ok
}

// validateTurnBytes checks byte length and UTF-8 well-formedness.
func validateTurnBytes(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return len(s) <= MaxTurnBytes && utf8.ValidString(s)
}

func validateUTF8(fl validator.FieldLevel) bool {
	return utf8.ValidString(fl.Field().String())
}

// ValidSessionID reports whether id is an acceptable session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// =============================================================================
// Turn
// =============================================================================

// TurnRequest is the body of POST /v1/sessions/:sessionId/turns.
//
// # Fields
//
//   - RequestID: Optional. Generated when empty. Echoed in the response.
//   - Message: Required. The user's message in Arabic or English.
//
// The session ID comes from the path and is copied in by the handler so
// that it is validated with the same rules as the body.
type TurnRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid"`
	SessionID string `json:"-" validate:"required,session_id"`
	Message   string `json:"message" validate:"required,turnbytes"`
}

// Validate validates the TurnRequest fields.
func (r *TurnRequest) Validate() error {
	return leaseValidate.Struct(r)
}

// EnsureDefaults generates a RequestID if the client did not send one.
func (r *TurnRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
}

// =============================================================================
// Loading an existing contract
// =============================================================================

// LoadContractRequest is the body of POST /v1/sessions/:sessionId/contract.
//
// # Fields
//
//   - RequestID: Optional. Generated when empty. Echoed in the response.
//   - Text: Required. The full text of the existing lease.
//   - ContractType: Optional. A lease type or alias, "other" when empty.
type LoadContractRequest struct {
	RequestID    string `json:"request_id" validate:"omitempty,uuid"`
	SessionID    string `json:"-" validate:"required,session_id"`
	Text         string `json:"text" validate:"required,max=1048576,utf8text"`
	ContractType string `json:"contract_type,omitempty" validate:"omitempty,max=64"`
}

// Validate validates the LoadContractRequest fields.
func (r *LoadContractRequest) Validate() error {
	return leaseValidate.Struct(r)
}

// EnsureDefaults generates a RequestID if the client did not send one.
func (r *LoadContractRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
}

// =============================================================================
// Ingestion
// =============================================================================

// IngestRequest is the body of POST /v1/corpora/:corpus/documents.
//
// # Fields
//
//   - Corpus: From the path. One of lease_clause, law_article, common_mistake.
//   - Source: Required. Document name recorded on every chunk.
//   - Text: Required. The full document text.
//   - Category: Optional. Overrides per-chunk category tagging.
//   - ChunkSize/ChunkOverlap: Optional. Splitter settings in characters.
type IngestRequest struct {
	Corpus       string `json:"-" validate:"required,corpus"`
	Source       string `json:"source" validate:"required,max=512"`
	Text         string `json:"text" validate:"required,max=4194304"`
	Category     string `json:"category,omitempty" validate:"omitempty,max=64"`
	ChunkSize    int    `json:"chunk_size,omitempty" validate:"omitempty,gte=100,lte=8000"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty" validate:"omitempty,gte=0,ltfield=ChunkSize"`
}

// Validate validates the IngestRequest fields.
func (r *IngestRequest) Validate() error {
	return leaseValidate.Struct(r)
}

// IngestResponse reports an ingested document.
type IngestResponse struct {
	Corpus     string    `json:"corpus"`
	Source     string    `json:"source"`
	Chunks     int       `json:"chunks"`
	IDs        []string  `json:"ids"`
	IngestedAt time.Time `json:"ingested_at"`
}

// =============================================================================
// Export
// =============================================================================

// ExportArchiveResponse is returned by POST /v1/sessions/:sessionId/export
// when the rendered PDF is archived to object storage.
type ExportArchiveResponse struct {
	SessionID  string    `json:"session_id"`
	ContractID string    `json:"contract_id"`
	Revision   int64     `json:"revision"`
	ObjectKey  string    `json:"object_key"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
