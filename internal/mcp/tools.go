package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/geosync/internal/ingest"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/internal/syncer"
	"github.com/dshills/geosync/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeFetchFailed   = -32001 // Source could not be downloaded or parsed
	ErrorCodeRunInProgress = -32002 // Another ingestion or sync is already running
	ErrorCodeUpdateFailed  = -32003 // Sync replace did not commit
)

// handleRunIngestion handles the run_ingestion tool invocation
func (s *Server) handleRunIngestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	source := getStringDefault(args, "url", s.sourceURL)
	if err := validateURL(source); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid url", map[string]interface{}{
			"param":  "url",
			"reason": err.Error(),
		})
	}

	if s.coordinator.Running() {
		return nil, newMCPError(ErrorCodeRunInProgress, "ingestion already in progress", nil)
	}

	summary, err := s.coordinator.Run(ctx, source)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		return nil, newMCPError(ErrorCodeRunInProgress, "ingestion already in progress", nil)
	case errors.Is(err, types.ErrNetwork), errors.Is(err, types.ErrInvalidPayload):
		return nil, newMCPError(ErrorCodeFetchFailed, "fetch failed", map[string]interface{}{
			"url":   source,
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"url":                 source,
		"total_features":      summary.Total,
		"successful_features": summary.Succeeded,
		"failed_features":     summary.Failed,
		"chunks":              summary.Chunks,
		"failed_chunks":       summary.FailedChunks,
		"partial":             summary.Partial(),
		"success_rate":        fmt.Sprintf("%.2f", summary.SuccessRate()),
		"duration_ms":         summary.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRunSync handles the run_sync tool invocation
func (s *Server) handleRunSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var opts []syncer.SyncOption
	if getBoolDefault(args, "force", false) {
		opts = append(opts, syncer.Force())
	}

	res, err := s.syncer.Sync(ctx, opts...)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		return nil, newMCPError(ErrorCodeRunInProgress, "sync already in progress", nil)
	case errors.Is(err, types.ErrUpdateFailed):
		return nil, newMCPError(ErrorCodeUpdateFailed, "sync update failed", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, types.ErrNetwork), errors.Is(err, types.ErrInvalidPayload):
		return nil, newMCPError(ErrorCodeFetchFailed, "fetch failed", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"state":         string(res.State),
		"source":        res.Source,
		"hash":          res.Hash,
		"previous_hash": res.Previous,
		"replaced":      res.Replaced,
		"skipped":       res.Skipped,
		"duration_ms":   res.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}

	st := s.coordinator.Monitor().CurrentStatus()
	response := map[string]interface{}{
		"status":              string(st.Status),
		"total_features":      st.Total,
		"processed_features":  st.Processed,
		"successful_features": st.Succeeded,
		"failed_features":     st.Failed,
		"progress_percentage": st.Percentage,
		"timestamp":           st.Timestamp.Format(time.RFC3339),
	}
	if st.Error != "" {
		response["error"] = st.Error
	}

	count, err := s.storage.CountFeatures(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count features", map[string]interface{}{
			"error": err.Error(),
		})
	}
	response["stored_features"] = count

	if s.sourceURL != "" {
		sync, err := s.storage.GetSyncState(ctx, s.sourceURL)
		switch {
		case err == nil:
			response["last_sync"] = sync.LastSync.Format(time.RFC3339)
			response["data_hash"] = sync.DataHash
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Warn("sync_state_unavailable", "error", err)
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the tool arguments; every tool accepts an empty call
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// validateURL checks that raw is an absolute http(s) URL
func validateURL(raw string) error {
	if raw == "" {
		return ErrURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrURLScheme
	}
	if u.Host == "" {
		return ErrURLHost
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrURLRequired = errors.New("url is required")
	ErrURLScheme   = errors.New("url scheme must be http or https")
	ErrURLHost     = errors.New("url has no host")
)
