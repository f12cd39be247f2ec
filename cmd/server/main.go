// Package main is the entry point for the xrauth server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (from env vars)
// 2. Create the logger
// 3. Hand over to internal/server
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...). The commands themselves are defined with cobra in
// root.go and migrate.go.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
