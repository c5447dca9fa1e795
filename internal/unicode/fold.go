// Package unicode finds characters used to disguise shell commands: invisible
// and direction-changing code points that hide text, and Cyrillic or Greek
// letters that look like Latin ones.
package unicode

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Finding is one disguising character.
type Finding struct {
	Category  string // zero-width, bidi-override, tag-char, control-char, invalid-utf8, homoglyph
	Codepoint string // e.g. "U+200B"
	Offset    int    // byte offset in the input
}

// Hidden reports whether f hides text rather than merely resembling it.
func (f Finding) Hidden() bool { return f.Category != "homoglyph" }

// Fold returns line with hidden characters removed and homoglyphs replaced by
// the Latin letters they imitate, along with every character it changed.
// A line with no findings is returned unchanged.
func Fold(line string) (string, []Finding) {
	var (
		b        strings.Builder
		findings []Finding
	)
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			findings = append(findings, Finding{"invalid-utf8", fmt.Sprintf("0x%02X", line[i]), i})
		case hiddenCategory(r) != "":
			findings = append(findings, Finding{hiddenCategory(r), codepoint(r), i})
		default:
			if latin, ok := homoglyphs[r]; ok {
				findings = append(findings, Finding{"homoglyph", codepoint(r), i})
				r = latin
			}
			b.WriteRune(r)
		}
		i += size
	}
	if len(findings) == 0 {
		return line, nil
	}
	return b.String(), findings
}

// HasHidden reports whether line contains any character that hides text.
func HasHidden(line string) bool {
	_, findings := Fold(line)
	for _, f := range findings {
		if f.Hidden() {
			return true
		}
	}
	return false
}

func codepoint(r rune) string { return fmt.Sprintf("U+%04X", r) }

func hiddenCategory(r rune) string {
	switch {
	case r == '\u200B', r == '\u200C', r == '\u200D', r == '\uFEFF',
		r == '\u2060', r == '\u180E', r == '\u200E', r == '\u200F':
		return "zero-width"
	case r >= '\u202A' && r <= '\u202E', r >= '\u2066' && r <= '\u2069':
		return "bidi-override"
	case r >= 0xE0001 && r <= 0xE007F:
		return "tag-char"
	case r == '\t':
		return ""
	case unicode.IsControl(r):
		// C0 (except tab), DEL and C1. History lines are already split on
		// newlines, so \n and \r never reach here legitimately.
		return "control-char"
	}
	return ""
}

// homoglyphs maps Cyrillic and Greek letters to the Latin letters they
// render as.
var homoglyphs = map[rune]rune{
	// Cyrillic
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'К': 'K', 'М': 'M', 'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P', 'Т': 'T', 'х': 'x', 'Х': 'X', 'у': 'y', 'У': 'Y',
	// Greek
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y', 'Ζ': 'Z',
}
