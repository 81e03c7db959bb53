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
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings (catalog drift on check)
	CLIExitError    = 2 // Operation failed
)

// APIVersion is the version of the JSON envelope.
const APIVersion = "1.0"

// OutputConfig controls output behavior.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
	Quiet   bool // Nothing on stdout, exit code only
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to w.
//
// # Inputs
//
//   - w: Destination, usually stdout.
//   - data: The data to encode. Must be JSON-serializable.
//   - compact: If true, output without indentation.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputResult writes the JSON envelope for a finished command and picks
// the exit code.
//
// # Description
//
// Human-readable output is rendered by each command; OutputResult only
// writes when cfg.JSON is set. A failed command still carries data (for
// example the partial run summary) next to its error.
//
// # Inputs
//
//   - w: Destination of the JSON envelope.
//   - cfg: Output configuration.
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//   - hasFindings: Whether the operation found issues (for exit code).
//   - err: Any error that occurred.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(w io.Writer, cfg OutputConfig, cmd string, start time.Time, data any, hasFindings bool, err error) int {
	code := CLIExitSuccess
	switch {
	case err != nil && hasFindings:
		code = CLIExitFindings
	case err != nil:
		code = CLIExitError
	case hasFindings:
		code = CLIExitFindings
	}
	if cfg.Quiet || !cfg.JSON {
		return code
	}

	result := CommandResult{
		APIVersion: APIVersion,
		Command:    cmd,
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
		Data:       data,
	}
	if err != nil {
		result.Error = err.Error()
	}
	if encErr := OutputJSON(w, result, cfg.Compact); encErr != nil {
		fmt.Fprintf(w, "Failed to encode JSON: %v\n", encErr)
		return CLIExitError
	}
	return code
}
