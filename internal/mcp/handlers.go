package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/errors"
	"github.com/hpungsan/citelens/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	cfg    *config.Config
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{db: db, cfg: cfg, logger: logger}
}

// Request types for each tool

// IngestRequest represents the arguments for interaction_ingest.
type IngestRequest struct {
	Path   string  `json:"path"`
	Label  *string `json:"label,omitempty"`
	DryRun bool    `json:"dry_run,omitempty"`
}

// FetchRequest represents the arguments for interaction_fetch.
type FetchRequest struct {
	ID          string `json:"id"`
	IncludeText *bool  `json:"include_text,omitempty"`
}

// ListRequest represents the arguments for interaction_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// DeleteRequest represents the arguments for interaction_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// ExportRequest represents the arguments for interaction_export.
type ExportRequest struct {
	Path string   `json:"path,omitempty"`
	IDs  []string `json:"ids,omitempty"`
}

// ImportRequest represents the arguments for interaction_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Handler implementations

// HandleIngest handles the interaction_ingest tool call.
func (h *Handlers) HandleIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IngestRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errorResult(errors.NewInvalidRequest("path is required")), nil
	}

	in := ops.IngestInput{Path: input.Path, Label: input.Label}
	if input.DryRun {
		result, err := ops.Analyze(ctx, h.cfg, h.logger, in)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	}

	result, err := ops.Ingest(ctx, h.db, h.cfg, h.logger, in)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFetch handles the interaction_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		ID:          input.ID,
		IncludeText: input.IncludeText,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the interaction_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the interaction_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the interaction_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path: input.Path,
		IDs:  input.IDs,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the interaction_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed; they may carry paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var citeErr *errors.CiteError
	switch {
	case stderrors.As(err, &citeErr):
		message := citeErr.Message
		// Keep any context a caller wrapped around the coded error.
		if prefix := strings.TrimSuffix(err.Error(), citeErr.Error()); prefix != err.Error() {
			message = prefix + message
		}
		errorObj := map[string]any{
			"code":    citeErr.Code,
			"message": message,
			"status":  citeErr.Status,
		}
		if citeErr.Code != errors.ErrInternal && citeErr.Details != nil {
			errorObj["details"] = citeErr.Details
		}
		payload = map[string]any{"error": errorObj}
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		payload = map[string]any{
			"error": map[string]any{
				"code":    "CANCELLED",
				"message": err.Error(),
				"status":  499,
			},
		}
	default:
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
