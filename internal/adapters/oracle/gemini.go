// Package oracle provides the LLM-backed mapping oracle adapter.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/appatlas/appmap/internal/domain"
)

// Logger defines the logging interface required by the oracle adapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// GeminiConfig holds configuration for the Gemini oracle.
type GeminiConfig struct {
	APIKey string
	Model  string

	// MaxCandidateChars truncates each candidate's text in the prompt so a
	// large logical set cannot blow the context window.
	MaxCandidateChars int
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:            apiKey,
		Model:             "gemini-2.0-flash",
		MaxCandidateChars: 600,
	}
}

// GeminiOracle implements domain.MappingOracle against the Google Gemini API.
// It requests structured JSON output and parses it defensively; callers own
// retry and repair of anything this adapter cannot salvage.
type GeminiOracle struct {
	client            *genai.Client
	model             string
	maxCandidateChars int
	logger            Logger
}

// NewGeminiOracle creates a Gemini-backed oracle.
func NewGeminiOracle(ctx context.Context, cfg GeminiConfig, log Logger) (*GeminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiConfig("").Model
	}

	maxChars := cfg.MaxCandidateChars
	if maxChars <= 0 {
		maxChars = DefaultGeminiConfig("").MaxCandidateChars
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiOracle{
		client:            client,
		model:             model,
		maxCandidateChars: maxChars,
		logger:            log,
	}, nil
}

// Map scores one physical application against the full logical candidate set.
func (o *GeminiOracle) Map(
	ctx context.Context,
	physical domain.ApplicationRecord,
	logicals []domain.ApplicationRecord,
	runContext string,
) (*domain.OracleResult, error) {
	prompt := o.buildPrompt(physical, logicals, runContext)

	resp, err := o.client.Models.GenerateContent(ctx, o.model, genai.Text(prompt), o.generateConfig())
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("gemini returned an empty response")
	}

	result, err := parseOracleReply(raw)
	if err != nil {
		return nil, err
	}

	o.logger.Debug(ctx, "oracle proposed mapping", map[string]interface{}{
		"physical_id": physical.ID,
		"logical_id":  result.LogicalID,
		"similarity":  result.Similarity,
	})
	return result, nil
}

// generateConfig requests deterministic, schema-constrained JSON output.
func (o *GeminiOracle) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"logicalId": {
					Type:        genai.TypeString,
					Description: "The id of the single best-matching logical application.",
				},
				"similarity": {
					Type:        genai.TypeNumber,
					Description: "Confidence in the match, between 0.0 and 1.0.",
				},
				"rationale": {
					Type:        genai.TypeString,
					Description: "One or two sentences explaining the match.",
				},
			},
			Required: []string{"logicalId", "similarity", "rationale"},
		},
	}
}

// buildPrompt renders the candidate list and the physical record into a
// single classification prompt.
func (o *GeminiOracle) buildPrompt(
	physical domain.ApplicationRecord,
	logicals []domain.ApplicationRecord,
	runContext string,
) string {
	var b strings.Builder
	b.WriteString("You classify physical (deployed) applications into logical application groups.\n")
	b.WriteString("Pick exactly one logical application from the candidate list for the physical application below.\n")
	b.WriteString("Use only ids from the candidate list.\n\n")

	if runContext != "" {
		b.WriteString("Additional context from the analyst:\n")
		b.WriteString(runContext)
		b.WriteString("\n\n")
	}

	b.WriteString("Logical application candidates:\n")
	for _, logical := range logicals {
		fmt.Fprintf(&b, "- id=%s name=%s: %s\n", logical.ID, logical.Name, truncate(logical.TextContent, o.maxCandidateChars))
	}

	b.WriteString("\nPhysical application to classify:\n")
	fmt.Fprintf(&b, "id=%s name=%s: %s\n", physical.ID, physical.Name, truncate(physical.TextContent, o.maxCandidateChars))

	return b.String()
}

// oracleReply is the JSON shape requested from the model.
type oracleReply struct {
	LogicalID  string  `json:"logicalId"`
	Similarity float64 `json:"similarity"`
	Rationale  string  `json:"rationale"`
}

// parseOracleReply extracts the structured answer from model output. Despite
// the response schema, models occasionally wrap JSON in code fences or prose,
// so the parser trims to the outermost object before unmarshalling.
func parseOracleReply(raw string) (*domain.OracleResult, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in oracle response: %q", truncate(raw, 200))
	}
	cleaned = cleaned[start : end+1]

	var reply oracleReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, fmt.Errorf("malformed oracle response: %w", err)
	}
	if reply.LogicalID == "" {
		return nil, fmt.Errorf("oracle response missing logicalId")
	}

	similarity := reply.Similarity
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}

	return &domain.OracleResult{
		LogicalID:  reply.LogicalID,
		Similarity: similarity,
		Rationale:  strings.TrimSpace(reply.Rationale),
	}, nil
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
