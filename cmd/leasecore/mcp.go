// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLease/services/orchestrator"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/services"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the lease tools (handle_turn, load_contract, get_state, export_ready) over MCP stdio",
	Long: `mcp exposes the lease core to MCP clients over stdin/stdout. Logs go to
stderr. Sessions live for the lifetime of the process and are snapshotted
like the HTTP server's.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

// TurnInput is the input of the handle_turn tool.
type TurnInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation identifier, 1-128 chars of letters, digits, '-' or '_'"`
	Message   string `json:"message" jsonschema:"the user's message in Arabic or English"`
}

// LoadInput is the input of the load_contract tool.
type LoadInput struct {
	SessionID    string `json:"session_id" jsonschema:"conversation identifier"`
	Text         string `json:"text" jsonschema:"full text of an existing lease, one clause per numbered heading"`
	ContractType string `json:"contract_type,omitempty" jsonschema:"lease type such as residential or commercial, other when omitted"`
}

// SessionInput is the input of the get_state and export_ready tools.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation identifier"`
}

func runMCP(cmd *cobra.Command, args []string) error {
	svc, err := orchestrator.New(*cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("Close failed", "error", err)
		}
	}()

	server := newMCPServer(svc.Turns())
	slog.Info("MCP server listening on stdio")
	return server.Run(cmd.Context(), &mcp.StdioTransport{})
}

// newMCPServer registers the lease tools on a new server.
func newMCPServer(svc handlers.LeaseService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "leasecore", Version: version}, nil)
	tools := leaseTools{svc: svc}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "handle_turn",
		Description: "Send one user message about a Jordanian lease. Drafts, edits, reviews or explains the session's contract and returns the composed reply.",
	}, tools.handleTurn)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_contract",
		Description: "Load an existing lease into a session, replacing its contract, and return a review that flags and corrects illegal clauses.",
	}, tools.loadContract)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_state",
		Description: "Return the committed contract of a session as JSON and Markdown.",
	}, tools.getState)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_ready",
		Description: "Return the session's contract if it passes every export check, or the reason it does not.",
	}, tools.exportReady)
	return server
}

type leaseTools struct {
	svc handlers.LeaseService
}

func (t leaseTools) handleTurn(ctx context.Context, _ *mcp.CallToolRequest, in TurnInput) (*mcp.CallToolResult, any, error) {
	resp, err := t.svc.HandleTurn(ctx, in.SessionID, in.Message)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(handlers.TurnResponse{SessionID: in.SessionID, FinalResponse: resp}), nil, nil
}

func (t leaseTools) loadContract(ctx context.Context, _ *mcp.CallToolRequest, in LoadInput) (*mcp.CallToolResult, any, error) {
	resp, err := t.svc.LoadContract(ctx, in.SessionID, services.LoadRequest{Text: in.Text, ContractType: in.ContractType})
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(handlers.TurnResponse{SessionID: in.SessionID, FinalResponse: resp}), nil, nil
}

func (t leaseTools) getState(ctx context.Context, _ *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, any, error) {
	state, err := t.svc.GetState(ctx, in.SessionID)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(handlers.StateResponse{SessionID: in.SessionID, Contract: state, Markdown: state.Render()}), nil, nil
}

func (t leaseTools) exportReady(ctx context.Context, _ *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, any, error) {
	state, err := t.svc.ExportReady(ctx, in.SessionID)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(handlers.StateResponse{SessionID: in.SessionID, Contract: state, Markdown: state.Render()}), nil, nil
}

// toolError reports err as a tool failure rather than a protocol error.
func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func toolJSON(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}
