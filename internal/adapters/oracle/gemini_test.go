package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appatlas/appmap/internal/domain"
)

func TestParseOracleReply(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *domain.OracleResult
		wantErr string
	}{
		{
			name: "plain JSON",
			raw:  `{"logicalId":"L1","similarity":0.87,"rationale":"shared billing vocabulary"}`,
			want: &domain.OracleResult{LogicalID: "L1", Similarity: 0.87, Rationale: "shared billing vocabulary"},
		},
		{
			name: "fenced JSON",
			raw:  "```json\n{\"logicalId\":\"L2\",\"similarity\":0.5,\"rationale\":\"ok\"}\n```",
			want: &domain.OracleResult{LogicalID: "L2", Similarity: 0.5, Rationale: "ok"},
		},
		{
			name: "JSON wrapped in prose",
			raw:  `The best match is: {"logicalId":"L3","similarity":0.4,"rationale":"weak"} as requested.`,
			want: &domain.OracleResult{LogicalID: "L3", Similarity: 0.4, Rationale: "weak"},
		},
		{
			name: "similarity clamped above one",
			raw:  `{"logicalId":"L1","similarity":7,"rationale":"overconfident"}`,
			want: &domain.OracleResult{LogicalID: "L1", Similarity: 1, Rationale: "overconfident"},
		},
		{
			name: "similarity clamped below zero",
			raw:  `{"logicalId":"L1","similarity":-0.2,"rationale":"negative"}`,
			want: &domain.OracleResult{LogicalID: "L1", Similarity: 0, Rationale: "negative"},
		},
		{
			name:    "no JSON object",
			raw:     "I could not decide.",
			wantErr: "no JSON object",
		},
		{
			name:    "broken JSON",
			raw:     `{"logicalId": "L1", "similarity": }`,
			wantErr: "malformed oracle response",
		},
		{
			name:    "missing logicalId",
			raw:     `{"similarity":0.9,"rationale":"who knows"}`,
			wantErr: "missing logicalId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOracleReply(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeminiOracle_BuildPrompt(t *testing.T) {
	o := &GeminiOracle{maxCandidateChars: 20}

	physical := domain.ApplicationRecord{ID: "P1", Name: "Billing Portal", TextContent: "invoices and payments"}
	logicals := []domain.ApplicationRecord{
		{ID: "L1", Name: "Finance", TextContent: "financial systems of record with a very long description that should be truncated"},
		{ID: "L2", Name: "People", TextContent: "hr"},
	}

	prompt := o.buildPrompt(physical, logicals, "mid-market logistics client")

	assert.Contains(t, prompt, "id=L1 name=Finance")
	assert.Contains(t, prompt, "id=L2 name=People")
	assert.Contains(t, prompt, "id=P1 name=Billing Portal")
	assert.Contains(t, prompt, "mid-market logistics client")
	// Candidate text beyond the budget is cut.
	assert.NotContains(t, prompt, "should be truncated")
}

func TestGeminiOracle_BuildPrompt_NoContext(t *testing.T) {
	o := &GeminiOracle{maxCandidateChars: 600}
	prompt := o.buildPrompt(
		domain.ApplicationRecord{ID: "P1", Name: "a", TextContent: "b"},
		[]domain.ApplicationRecord{{ID: "L1", Name: "c", TextContent: "d"}},
		"",
	)
	assert.NotContains(t, prompt, "Additional context")
}

func TestNewGeminiOracle_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiOracle(context.Background(), GeminiConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
	assert.Equal(t, "héllo", truncate("héllo", 5))
}
