// Package domain defines the core business entities and interfaces for appmap.
package domain

// ApplicationRecord is one row of an application inventory, either a physical
// (deployed) application or a logical application group. Records are immutable
// for the duration of a mapping run.
type ApplicationRecord struct {
	// ID uniquely identifies the record within its set for one run.
	ID string `json:"id"`

	// Name is the human-readable application name.
	Name string `json:"name"`

	// TextContent is the concatenated descriptive text used for scoring.
	TextContent string `json:"textContent"`
}

// MappingRecord is the validated assignment of one physical application to
// exactly one logical application group. The repair policy guarantees that
// LogicalID always references an id from the supplied logical set.
type MappingRecord struct {
	PhysicalID   string  `json:"physicalId"`
	PhysicalName string  `json:"physicalName"`
	LogicalID    string  `json:"logicalId"`
	LogicalName  string  `json:"logicalName"`
	Similarity   float64 `json:"similarity"`
	Rationale    string  `json:"rationale"`

	// Uncertain flags the record for manual review: similarity fell below the
	// configured threshold, or a repair was applied.
	Uncertain bool `json:"uncertain"`

	// ModelLogicalID preserves the raw id returned by the oracle when it did
	// not match any known logical application.
	ModelLogicalID string `json:"modelLogicalId,omitempty"`

	// AutoSubstituted is true when the oracle's answer was replaced with a
	// deterministic fallback assignment.
	AutoSubstituted bool `json:"autoSubstituted,omitempty"`

	// MismatchReason explains why a substitution was applied.
	MismatchReason string `json:"mismatchReason,omitempty"`
}

// RunSummary aggregates the outcome of a completed mapping run.
type RunSummary struct {
	PhysicalCount  int `json:"physicalCount"`
	LogicalCount   int `json:"logicalCount"`
	MappedCount    int `json:"mappedCount"`
	UncertainCount int `json:"uncertainCount"`

	// MECECoverage is true iff every physical id produced exactly one mapping
	// record. The mapper guarantees this by construction; the field makes the
	// invariant visible to callers.
	MECECoverage bool `json:"meceCoverage"`
}

// RunInput contains the parameters for one mapping run.
type RunInput struct {
	// Physicals is the ordered set of physical applications to map.
	Physicals []ApplicationRecord `json:"physicals"`

	// Logicals is the closed set of logical application candidates.
	Logicals []ApplicationRecord `json:"logicals"`

	// Context is optional free text forwarded to the oracle with every item.
	Context string `json:"context,omitempty"`

	// MaxConcurrency bounds the number of in-flight oracle calls.
	// Values above MaxConcurrencyLimit are clamped; values below
	// MinConcurrency fail validation.
	MaxConcurrency int `json:"maxConcurrency"`
}

// RunResult is the complete outcome of a mapping run, with records in
// physical input order.
type RunResult struct {
	RunID    string          `json:"runId"`
	Mappings []MappingRecord `json:"mappings"`
	Summary  RunSummary      `json:"summary"`
}

// OracleResult is the oracle's proposed assignment for one physical
// application. LogicalID is unvalidated and may reference an unknown id.
type OracleResult struct {
	LogicalID  string
	Similarity float64
	Rationale  string
}

// Concurrency bounds for a mapping run.
const (
	MinConcurrency      = 1
	MaxConcurrencyLimit = 100
)

// DefaultUncertaintyThreshold is the similarity below which a mapping is
// flagged for manual review.
const DefaultUncertaintyThreshold = 0.3
