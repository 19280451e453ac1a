package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexicalSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want func(t *testing.T, score float64)
	}{
		{
			name: "identical text scores 1",
			a:    "customer billing portal",
			b:    "customer billing portal",
			want: func(t *testing.T, score float64) { assert.InDelta(t, 1.0, score, 1e-9) },
		},
		{
			name: "disjoint text scores 0",
			a:    "zzzz",
			b:    "qqqq",
			want: func(t *testing.T, score float64) { assert.Zero(t, score) },
		},
		{
			name: "partial overlap scores between",
			a:    "customer billing portal",
			b:    "billing system",
			want: func(t *testing.T, score float64) {
				assert.Greater(t, score, 0.0)
				assert.Less(t, score, 1.0)
			},
		},
		{
			name: "empty text scores 0",
			a:    "",
			b:    "anything",
			want: func(t *testing.T, score float64) { assert.Zero(t, score) },
		},
		{
			name: "punctuation only scores 0",
			a:    "--- ///",
			b:    "anything",
			want: func(t *testing.T, score float64) { assert.Zero(t, score) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, lexicalSimilarity(tt.a, tt.b))
		})
	}
}

func TestLexicalSimilarity_SymmetricAndCaseInsensitive(t *testing.T) {
	a := "Customer Billing Portal"
	b := "billing system for customers"

	assert.Equal(t, lexicalSimilarity(a, b), lexicalSimilarity(b, a))
	assert.Equal(t, lexicalSimilarity(a, b), lexicalSimilarity("customer billing portal", b))
}

func TestLexicalSimilarity_BigramsCatchAbbreviations(t *testing.T) {
	// No shared word tokens, but shared character bigrams should still
	// produce a nonzero score.
	score := lexicalSimilarity("custmgmt", "customer management")
	assert.Greater(t, score, 0.0)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"billing", "v2", "portal"}, tokenize("Billing-v2 (portal)"))
	assert.Empty(t, tokenize("  ,,, "))
}
