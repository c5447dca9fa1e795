// Package history turns shell history files and scripts into individual
// command lines for scoring.
package history

import (
	"bytes"
	"os"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Lines splits text on newlines, trimming each line and dropping blanks.
// This matches one-command-per-line history files.
func Lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Statements parses text as a bash script and returns each top-level
// statement printed on a single line, so multi-line constructs (line
// continuations, loops, functions) are scored as one command. Comments are
// dropped. If the script does not parse, it falls back to Lines.
func Statements(text string) []string {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(text), "")
	if err != nil {
		return Lines(text)
	}

	printer := syntax.NewPrinter(syntax.SingleLine(true))
	out := make([]string, 0, len(file.Stmts))
	for _, stmt := range file.Stmts {
		var buf bytes.Buffer
		if err := printer.Print(&buf, stmt); err != nil {
			return Lines(text)
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ReadLines reads path and splits it with Lines.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Lines(string(data)), nil
}
