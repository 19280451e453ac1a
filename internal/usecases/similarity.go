package usecases

import (
	"strings"
	"unicode"
)

// lexicalSimilarity scores two texts in [0,1] using the Sørensen–Dice
// coefficient over the union of their word tokens and character bigrams.
// Word tokens capture shared vocabulary; bigrams keep the score useful for
// abbreviated or concatenated names ("custmgmt" vs "customer management").
// The function is deterministic and symmetric.
func lexicalSimilarity(a, b string) float64 {
	sa := lexicalFeatures(a)
	sb := lexicalFeatures(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	overlap := 0
	for f := range sa {
		if _, ok := sb[f]; ok {
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(sa)+len(sb))
}

// lexicalFeatures builds the feature set: lowercased word tokens plus
// character bigrams of each token.
func lexicalFeatures(s string) map[string]struct{} {
	features := make(map[string]struct{})
	for _, tok := range tokenize(s) {
		features["w:"+tok] = struct{}{}
		runes := []rune(tok)
		for i := 0; i+1 < len(runes); i++ {
			features["b:"+string(runes[i:i+2])] = struct{}{}
		}
	}
	return features
}

// tokenize splits s into lowercased alphanumeric tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
