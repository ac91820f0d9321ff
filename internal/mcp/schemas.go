package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// runIngestionTool returns the tool definition for run_ingestion
func runIngestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "run_ingestion",
		Description: "Fetch a GeoJSON FeatureCollection and upsert its features into the store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Source URL (defaults to the configured source)",
				},
			},
		},
	}
}

// runSyncTool returns the tool definition for run_sync
func runSyncTool() mcp.Tool {
	return mcp.Tool{
		Name:        "run_sync",
		Description: "Replace the stored features when the source content hash changed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, replace even when the hash is unchanged",
					"default":     false,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the progress of the current or last ingestion run",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
