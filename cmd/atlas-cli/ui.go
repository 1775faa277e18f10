package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// UI provides user-friendly output utilities.
type UI struct {
	out      io.Writer
	noColor  bool
	jsonMode bool
}

// NewUI creates a new UI writing to out.
func NewUI(out io.Writer, jsonMode, noColor bool) *UI {
	return &UI{out: out, noColor: noColor || !IsTerminal(), jsonMode: jsonMode}
}

func (ui *UI) line(c color.Attribute, symbol, format string, args ...any) {
	if ui.jsonMode {
		return
	}
	msg := fmt.Sprintf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	if ui.noColor {
		fmt.Fprint(ui.out, msg)
		return
	}
	color.New(c).Fprint(ui.out, msg)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...any) {
	ui.line(color.FgGreen, "✓", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...any) {
	ui.line(color.FgYellow, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...any) {
	ui.line(color.FgCyan, "ℹ", format, args...)
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	header := fmt.Sprintf("\n━━━ %s ━━━\n", strings.ToUpper(title))
	if ui.noColor {
		fmt.Fprint(ui.out, header)
		return
	}
	color.New(color.FgMagenta, color.Bold).Fprint(ui.out, header)
}

// KeyValue prints an aligned key/value line.
func (ui *UI) KeyValue(key string, value any) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Fprintf(ui.out, "  %-18s %v\n", key+":", value)
		return
	}
	fmt.Fprintf(ui.out, "  %s %v\n", color.New(color.Bold).Sprintf("%-18s", key+":"), value)
}

// Text prints a block of text as is.
func (ui *UI) Text(s string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out, s)
}

// Table prints a simple aligned table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	printRow := func(cells []string, bold bool) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-len([]rune(cell)))
		}
		row := strings.Join(parts, "  ")
		if bold && !ui.noColor {
			color.New(color.FgCyan, color.Bold).Fprintln(ui.out, row)
			return
		}
		fmt.Fprintln(ui.out, row)
	}

	printRow(headers, true)
	for _, row := range rows {
		printRow(row, false)
	}
}

// JSON writes v as indented JSON. It is the only output in --json mode.
func (ui *UI) JSON(v any) error {
	enc := json.NewEncoder(ui.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Spinner starts an indeterminate spinner on stderr. The returned stop
// function is safe to call when no spinner was started.
func (ui *UI) Spinner(message string) func() {
	if ui.jsonMode || !IsTerminal() {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	s.Start()
	return s.Stop
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
