package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldASCII strips combining marks so "Málaga" becomes "Malaga". Runes
// without an ASCII decomposition are kept as-is.
func FoldASCII(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return folded
}

// Slug converts value into a lowercase ASCII token of letters and digits
// joined by single dashes. Returns "unknown" when nothing survives.
func Slug(value string) string {
	folded := FoldASCII(strings.TrimSpace(value))
	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// TitleCase normalises whitespace and title-cases each word.
func TitleCase(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(fields, " "))
}
