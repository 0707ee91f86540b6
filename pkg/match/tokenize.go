package match

import "strings"

// Tokenize splits a compound intervention text into candidate drug names:
// first on "/", then every piece on ",". Duplicates are dropped, first
// occurrence order is kept. Text is not lowercased or trimmed; the left-word
// boundary check of the exact stage treats a leading space as a boundary.
func Tokenize(text string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, piece := range strings.Split(text, "/") {
		for _, tok := range strings.Split(piece, ",") {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
