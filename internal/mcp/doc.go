// Package mcp implements the Model Context Protocol (MCP) server for geosync.
//
// The MCP server exposes the pipeline as three tools:
//   - run_ingestion: Fetch a FeatureCollection and upsert every feature
//   - run_sync: Replace the feature set when the source hash changed
//   - get_status: Report progress of the current or last run
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
//	geosync mcp
//
// # Tool: run_ingestion
//
//	Request:
//	{
//	  "name": "run_ingestion",
//	  "arguments": {"url": "https://example.com/districts.geojson"}
//	}
//
//	Response:
//	{
//	  "total_features": 250,
//	  "successful_features": 150,
//	  "failed_features": 100,
//	  "failed_chunks": 1,
//	  "partial": true
//	}
//
// # Tool: get_status
//
//	Response:
//	{
//	  "status": "In Progress",
//	  "total_features": 250,
//	  "processed_features": 100,
//	  "progress_percentage": 40,
//	  "stored_features": 100
//	}
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  source could not be fetched or parsed
//	-32002  an ingestion or sync is already running
//	-32003  sync replace failed, previous data kept
package mcp
