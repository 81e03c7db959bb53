// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines how rich the terminal output is.
type PersonalityLevel string

const (
	// PersonalityStandard enables colors, icons and boxes.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons without colors or boxes.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain prefixed lines for scripts and logs.
	PersonalityMachine PersonalityLevel = "machine"
)

// EnvPersonality overrides the detected level.
const EnvPersonality = "METRICSYNC_PERSONALITY"

// ParsePersonalityLevel converts a string to a PersonalityLevel. Unknown
// values yield PersonalityStandard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// DetectLevel picks the output level for f.
//
// # Description
//
// METRICSYNC_PERSONALITY wins when set. Otherwise a terminal gets
// PersonalityStandard, or PersonalityMinimal when NO_COLOR is set, and
// anything else (pipes, files, CI logs) gets PersonalityMachine.
//
// # Inputs
//
//   - f: The file output is written to, usually os.Stdout
//
// # Outputs
//
//   - PersonalityLevel: The level to render with
func DetectLevel(f *os.File) PersonalityLevel {
	if env := os.Getenv(EnvPersonality); env != "" {
		return ParsePersonalityLevel(env)
	}
	if f == nil || !isTerminal(f.Fd()) {
		return PersonalityMachine
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return PersonalityMinimal
	}
	return PersonalityStandard
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
