// Package output renders command results as tables, JSON or YAML and
// converts binary keys and values to and from their command line form.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format is the rendering of a command result.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses s into a Format. The empty string selects a table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Printer writes results to out in a fixed format.
type Printer struct {
	out    io.Writer
	format Format
}

func NewPrinter(out io.Writer, format Format) *Printer {
	return &Printer{out: out, format: format}
}

func (p *Printer) Format() Format {
	return p.format
}

func (p *Printer) Writer() io.Writer {
	return p.out
}

// Print renders data. Tables need a TableRenderer; anything else falls back
// to JSON.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}
