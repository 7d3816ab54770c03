// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the HTTP handlers of the lease service.
//
// Every handler is a gin.HandlerFunc closure over its dependencies. Host
// errors are mapped to status codes by writeError; domain outcomes
// (rejections, refusals) are 200 responses carrying a reason.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianLease/services/legal/composer"
	"github.com/AleutianAI/AleutianLease/services/legal/contract"
	"github.com/AleutianAI/AleutianLease/services/legal/session"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/export"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/services"
)

// LeaseService is the host interface the handlers call.
// *services.TurnService implements it.
type LeaseService interface {
	HandleTurn(ctx context.Context, sessionID, text string) (*composer.FinalResponse, error)
	LoadContract(ctx context.Context, sessionID string, req services.LoadRequest) (*composer.FinalResponse, error)
	GetState(ctx context.Context, sessionID string) (*contract.State, error)
	ExportReady(ctx context.Context, sessionID string) (*contract.State, error)
	ClearSession(ctx context.Context, sessionID string) (bool, error)
	Health(ctx context.Context) services.HealthStatus
}

var _ LeaseService = (*services.TurnService)(nil)

// TurnResponse is the body of a handled turn.
type TurnResponse struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	*composer.FinalResponse
}

// StateResponse is the body of GET /v1/sessions/:sessionId/state.
type StateResponse struct {
	SessionID string          `json:"session_id"`
	Contract  *contract.State `json:"contract"`
	Markdown  string          `json:"markdown"`
}

// =============================================================================
// Turns and state
// =============================================================================

// HandleTurn processes one user message.
//
// # Description
//
// POST /v1/sessions/:sessionId/turns with {"message": "..."}. Returns the
// FinalResponse of the turn. Rejected and refused turns are 200 with
// outcome "rejected" and a reason.
func HandleTurn(svc LeaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		req.SessionID = c.Param("sessionId")
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}
		req.EnsureDefaults()

		resp, err := svc.HandleTurn(c.Request.Context(), req.SessionID, req.Message)
		if err != nil {
			writeError(c, err, "request_id", req.RequestID, "session_id", req.SessionID)
			return
		}
		c.JSON(http.StatusOK, TurnResponse{RequestID: req.RequestID, SessionID: req.SessionID, FinalResponse: resp})
	}
}

// LoadContract loads an existing lease into a session and reviews it.
//
// # Description
//
// POST /v1/sessions/:sessionId/contract with {"text": "...",
// "contract_type": "..."}. The lease replaces the session's contract and
// the response is the review of it. Text that does not yield a valid
// contract is a 200 with outcome "rejected" and a reason.
func LoadContract(svc LeaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoadContractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		req.SessionID = c.Param("sessionId")
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}
		req.EnsureDefaults()

		resp, err := svc.LoadContract(c.Request.Context(), req.SessionID, services.LoadRequest{
			Text:         req.Text,
			ContractType: req.ContractType,
		})
		if err != nil {
			writeError(c, err, "request_id", req.RequestID, "session_id", req.SessionID)
			return
		}
		c.JSON(http.StatusOK, TurnResponse{RequestID: req.RequestID, SessionID: req.SessionID, FinalResponse: resp})
	}
}

// GetState returns the committed contract of a session.
func GetState(svc LeaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		state, err := svc.GetState(c.Request.Context(), id)
		if err != nil {
			writeError(c, err, "session_id", id)
			return
		}
		c.JSON(http.StatusOK, StateResponse{SessionID: id, Contract: state, Markdown: state.Render()})
	}
}

// ClearSession drops a session's contract.
func ClearSession(svc LeaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		had, err := svc.ClearSession(c.Request.Context(), id)
		if err != nil {
			writeError(c, err, "session_id", id)
			return
		}
		slog.Info("Session cleared", "session_id", id, "had_contract", had)
		c.JSON(http.StatusOK, gin.H{"status": "success", "session_id": id, "cleared": had})
	}
}

// =============================================================================
// Export
// =============================================================================

// ExportPDF renders the export-ready contract and streams the PDF.
func ExportPDF(svc LeaseService, renderer export.Renderer, metrics *observability.TurnMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		state, pdf, ok := renderExport(c, svc, renderer, metrics, id)
		if !ok {
			return
		}
		filename := fmt.Sprintf("%s-r%d.pdf", state.ID, state.Revision)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}

// ArchiveExport renders the contract, stores it, and returns a download URL.
func ArchiveExport(svc LeaseService, renderer export.Renderer, archive export.Archiver, metrics *observability.TurnMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if archive == nil {
			c.JSON(http.StatusNotImplemented, datatypes.ErrorResponse{Error: "export archive is not configured"})
			return
		}
		id := c.Param("sessionId")
		state, pdf, ok := renderExport(c, svc, renderer, metrics, id)
		if !ok {
			return
		}
		stored, err := archive.Store(c.Request.Context(), id, state, pdf)
		if err != nil {
			slog.Error("Failed to archive export", "session_id", id, "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "failed to archive export"})
			return
		}
		c.JSON(http.StatusCreated, datatypes.ExportArchiveResponse{
			SessionID:  id,
			ContractID: state.ID,
			Revision:   state.Revision,
			ObjectKey:  stored.Key,
			URL:        stored.URL,
			ExpiresAt:  stored.ExpiresAt,
		})
	}
}

func renderExport(c *gin.Context, svc LeaseService, renderer export.Renderer, metrics *observability.TurnMetrics, id string) (*contract.State, []byte, bool) {
	if renderer == nil {
		c.JSON(http.StatusNotImplemented, datatypes.ErrorResponse{Error: "pdf export is not configured"})
		return nil, nil, false
	}
	state, err := svc.ExportReady(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "session_id", id)
		return nil, nil, false
	}

	start := time.Now()
	pdf, err := renderer.Render(c.Request.Context(), state)
	metrics.RecordCollaborator(observability.CollaboratorRenderer, time.Since(start).Seconds(), err == nil)
	metrics.RecordExport(err == nil)
	if err != nil {
		slog.Error("PDF render failed", "session_id", id, "contract_id", state.ID, "error", err)
		c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "failed to render pdf"})
		return nil, nil, false
	}
	return state, pdf, true
}

// =============================================================================
// Health
// =============================================================================

// HealthCheck reports service health. Degraded dependencies yield 503.
func HealthCheck(svc LeaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		h := svc.Health(ctx)
		status := http.StatusOK
		if h.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, h)
	}
}

// =============================================================================
// Errors
// =============================================================================

// writeError maps host errors to status codes. Internal details are logged,
// not returned.
func writeError(c *gin.Context, err error, logAttrs ...any) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, services.ErrInvalidSessionID):
		status, msg = http.StatusBadRequest, "invalid session id"
	case errors.Is(err, services.ErrEmptyTurn):
		status, msg = http.StatusBadRequest, "message is empty or too long"
	case errors.Is(err, services.ErrInvalidContractText):
		status, msg = http.StatusBadRequest, "contract text is empty or too long"
	case errors.Is(err, services.ErrNoContract):
		status, msg = http.StatusNotFound, "no contract in session"
	case errors.Is(err, context.Canceled):
		status, msg = 499, "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, session.ErrClosed):
		status, msg = http.StatusServiceUnavailable, "service is shutting down"
	default:
		if _, ok := contract.AsStateError(err); ok {
			status, msg = http.StatusConflict, "contract is not ready for export"
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", append(logAttrs, "status", status, "error", err)...)
	} else {
		slog.Warn("Request rejected", append(logAttrs, "status", status, "error", err)...)
	}
	c.JSON(status, datatypes.ErrorResponse{Error: msg})
}
