// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders human-facing CLI output with lipgloss.
//
// A Printer writes to explicit writers so commands stay testable. In
// PersonalityMachine mode every line is a plain "PREFIX: text" record with
// no escape codes.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Stat is one labelled count in a run summary.
type Stat struct {
	Label string
	Value int
	// Status colors the value; IconWarning or IconError flag a count that
	// needs attention.
	Status Icon
}

// Printer writes styled messages to out and diagnostics to errOut.
//
// # Thread Safety
//
// Printer is not safe for concurrent use.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	level  PersonalityLevel
}

// NewPrinter creates a Printer. A nil errOut uses out.
func NewPrinter(out, errOut io.Writer, level PersonalityLevel) *Printer {
	if errOut == nil {
		errOut = out
	}
	return &Printer{out: out, errOut: errOut, level: level}
}

// Level returns the personality level the printer renders with.
func (p *Printer) Level() PersonalityLevel {
	return p.level
}

func (p *Printer) styled(style lipgloss.Style, text string) string {
	if p.level != PersonalityStandard {
		return text
	}
	return style.Render(text)
}

func (p *Printer) icon(i Icon) string {
	if p.level != PersonalityStandard {
		return string(i)
	}
	return i.Render()
}

// Title prints a styled title. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	if p.level == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.out, p.styled(Styles.Title, text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	p.status(p.out, "OK", IconSuccess, Styles.Success, text)
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	p.status(p.errOut, "WARN", IconWarning, Styles.Warning, text)
}

// Error prints an error message
func (p *Printer) Error(text string) {
	p.status(p.errOut, "ERROR", IconError, Styles.Error, text)
}

func (p *Printer) status(w io.Writer, prefix string, i Icon, style lipgloss.Style, text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(w, "%s: %s\n", prefix, text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", p.icon(i), p.styled(style, text))
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.styled(Styles.Muted, "│"), text)
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key, value string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.out, "%s=%s\n", machineKey(key), value)
		return
	}
	fmt.Fprintf(p.out, "  %s %s\n", p.styled(Styles.Muted, fmt.Sprintf("%-18s", key+":")), value)
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	p.box(p.out, "", Styles.Box, Styles.Title, title, content)
}

// WarningBox prints text in a warning-styled box
func (p *Printer) WarningBox(title, content string) {
	p.box(p.errOut, "WARN ", Styles.WarningBox, Styles.Warning.Bold(true), title, content)
}

// ErrorBox prints text in an error-styled box
func (p *Printer) ErrorBox(title, content string) {
	p.box(p.errOut, "ERROR ", Styles.ErrorBox, Styles.Error.Bold(true), title, content)
}

func (p *Printer) box(w io.Writer, prefix string, boxStyle, titleStyle lipgloss.Style, title, content string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(w, "%s%s: %s\n", prefix, title, strings.ReplaceAll(content, "\n", "; "))
	case PersonalityMinimal:
		fmt.Fprintf(w, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(w, boxStyle.Width(72).Render(titleStyle.Render(title)+"\n"+content))
	}
}

// Summary prints a line of labelled counts.
//
// # Example
//
//	p.Summary([]ux.Stat{
//	    {Label: "metrics", Value: 1200},
//	    {Label: "orphaned", Value: 3, Status: ux.IconWarning},
//	})
//
// renders "1200 metrics  3 orphaned" in a terminal and
// "SUMMARY: metrics=1200 orphaned=3" in machine mode.
func (p *Printer) Summary(stats []Stat) {
	if p.level == PersonalityMachine {
		parts := make([]string, len(stats))
		for i, s := range stats {
			parts[i] = fmt.Sprintf("%s=%d", machineKey(s.Label), s.Value)
		}
		fmt.Fprintf(p.out, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}

	parts := make([]string, len(stats))
	for i, s := range stats {
		style := Styles.Bold
		switch {
		case s.Status == IconError && s.Value > 0:
			style = Styles.Error
		case s.Status == IconWarning && s.Value > 0:
			style = Styles.Warning
		case s.Status == IconSuccess:
			style = Styles.Success
		}
		parts[i] = p.styled(style, fmt.Sprintf("%d", s.Value)) + " " + p.styled(Styles.Muted, s.Label)
	}
	fmt.Fprintf(p.out, "\n%s\n", strings.Join(parts, "  "))
}

// machineKey turns a label into a snake_case key.
func machineKey(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
}
