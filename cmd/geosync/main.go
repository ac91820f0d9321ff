package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/geosync/internal/geometry"
	"github.com/dshills/geosync/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout is reserved for command output and the MCP protocol
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func versionInfo() string {
	return fmt.Sprintf("geosync %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\nGeometry Engine: %s\n",
		version, buildTime, storage.BuildMode, storage.DriverName, geometry.EngineName)
}
