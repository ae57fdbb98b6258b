// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders anchorsave CLI output.
//
// A Printer writes to one io.Writer in one of three modes: Styled (colors
// and boxes via lipgloss), Plain (icons, no color) and Machine (stable,
// tab-separated lines for scripts).
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// Palette
// =============================================================================

var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // titles
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = ColorTealBright
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the shared lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Key       lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Key:       lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a single-glyph status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconAnchor  Icon = "⚓"
)

// Render colors the icon according to its meaning.
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

// machineTag is the Machine-mode prefix for an icon.
func (i Icon) machineTag() string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "ERROR"
	case IconPending:
		return "NONE"
	default:
		return "INFO"
	}
}

// =============================================================================
// Printer
// =============================================================================

// Mode selects how a Printer renders.
type Mode int

const (
	ModeStyled Mode = iota
	ModePlain
	ModeMachine
)

// ParseMode accepts styled, plain and machine. Anything else is Styled.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain":
		return ModePlain
	case "machine":
		return ModeMachine
	default:
		return ModeStyled
	}
}

// ResolveMode is ParseMode with an "auto" setting: auto (or empty) picks
// Styled when w is a terminal and Plain otherwise, so piped output carries
// no escape codes.
func ResolveMode(requested string, w io.Writer) Mode {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "", "auto":
		if isTerminal(w) {
			return ModeStyled
		}
		return ModePlain
	default:
		return ParseMode(requested)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes CLI output.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a Printer on w. A nil w means stdout.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Title prints a heading. Omitted in Machine mode.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
		return
	case ModePlain:
		fmt.Fprintf(p.w, "%s %s\n", IconAnchor, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconAnchor, Styles.Title.Render(text))
	}
}

// Status prints one line prefixed by icon.
func (p *Printer) Status(icon Icon, text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "%s\t%s\n", icon.machineTag(), text)
	case ModePlain:
		fmt.Fprintf(p.w, "%s %s\n", icon, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", icon.Render(), text)
	}
}

func (p *Printer) Success(text string) { p.Status(IconSuccess, text) }
func (p *Printer) Warning(text string) { p.Status(IconWarning, text) }
func (p *Printer) Error(text string) { p.Status(IconError, text) }

// Field is one row of a key/value listing.
type Field struct {
	Key   string
	Value string
}

// Fields prints aligned key/value rows, inside a box when styled.
func (p *Printer) Fields(title string, fields []Field) {
	if p.mode == ModeMachine {
		for _, f := range fields {
			fmt.Fprintf(p.w, "%s\t%s\n", f.Key, f.Value)
		}
		return
	}

	width := 0
	for _, f := range fields {
		if len(f.Key) > width {
			width = len(f.Key)
		}
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("\n")
		}
		key := fmt.Sprintf("%-*s", width, f.Key)
		if p.mode == ModeStyled {
			key = Styles.Key.Render(key)
		}
		b.WriteString(key + "  " + f.Value)
	}

	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "%s\n%s\n", title, b.String())
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+b.String()))
}

// Raw writes text unchanged, adding a trailing newline if missing.
func (p *Printer) Raw(text string) {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	fmt.Fprint(p.w, text)
}
