/*
 * @module service/utils/text_normalizer
 * @description Text folding helpers shared by the entity mapper and the duplicate scanner
 * @architecture Utility functions - stateless conversion
 * @stateFlow raw string -> NFD -> drop combining marks -> NFC -> lower/trim
 * @rules folding is deterministic and locale independent
 * @dependencies golang.org/x/text
 * @refs service/mapper, service/dedup
 */

package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveAccents strips diacritics: "Concluído" -> "Concluido"
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// FoldToken folds an enum-like value to snake case without accents:
// " Em Andamento " -> "em_andamento"
func FoldToken(s string) string {
	s = strings.ToLower(RemoveAccents(strings.TrimSpace(s)))
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	}), "_")
	return s
}

// FoldName folds a person or company name for comparison:
// "  João  da Silva " -> "joao da silva"
func FoldName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(RemoveAccents(s))), " ")
}

// KeepAlphanumeric drops every rune that is not a letter or digit and upper-cases the rest
func KeepAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// KeepDigits drops every rune that is not an ASCII digit
func KeepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
