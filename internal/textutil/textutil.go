// Package textutil holds the text normalization and matching helpers shared by
// the parser, the search engine and the force-add rules.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC, lowercases, drops punctuation except hyphens and
// collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case isWordRune(r) || r == '-':
		default:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Fold lowercases after NFKC without stripping anything.
func Fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// CollapseSpaces trims s and reduces every whitespace run to one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsWord reports whether phrase occurs in text bounded on both sides by
// non-word runes or the string edges. Letters such as å, ä and ö count as word
// runes, so "malmö" matches in "till malmö?" but "bil" does not match "bilen".
func ContainsWord(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for offset := 0; offset <= len(text)-len(phrase); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

// ContainsAnyWord reports whether any phrase is a whole-word match in text.
func ContainsAnyWord(text string, phrases ...string) bool {
	for _, p := range phrases {
		if ContainsWord(text, p) {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of the substrings occurs in text.
func ContainsAny(text string, subs ...string) bool {
	for _, s := range subs {
		if s != "" && strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Tokenize splits s into lowercase runs of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}
