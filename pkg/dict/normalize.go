package dict

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer transforms a reference string before it becomes a matching key.
type Normalizer func(string) string

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeLowercase lowercases and trims (e.g. " Aspirin " -> aspirin).
func NormalizeLowercase(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// NormalizeLowercaseASCII lowercases, trims and strips accents (e.g. Bétaméthasone -> betamethasone).
func NormalizeLowercaseASCII(s string) string {
	result, _, _ := transform.String(stripAccents, NormalizeLowercase(s))
	return result
}

// NormalizeNone returns the string unchanged.
func NormalizeNone(s string) string {
	return s
}

// GetNormalizer returns the normalizer for the given mode.
// Default is lowercase.
func GetNormalizer(mode string) Normalizer {
	switch mode {
	case "lowercase":
		return NormalizeLowercase
	case "lowercase_ascii":
		return NormalizeLowercaseASCII
	case "none":
		return NormalizeNone
	default:
		return NormalizeLowercase
	}
}
