// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/appatlas/appmap/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// ProgressFunc receives the completed-item count after each physical
// application produces a record. Invocations are serialized by the mapper, so
// processed is monotonically increasing across calls.
type ProgressFunc func(processed, total int)

// MapperOptions holds tunables for the mapping run.
type MapperOptions struct {
	// UncertaintyThreshold is the similarity below which a record is flagged
	// uncertain. Zero selects domain.DefaultUncertaintyThreshold.
	UncertaintyThreshold float64

	// OracleTimeout bounds each individual oracle call. Zero disables the
	// per-call deadline (the oracle's own transport timeout still applies).
	OracleTimeout time.Duration
}

// AppMapper maps every physical application to exactly one logical
// application group, driving the oracle under a bounded concurrency budget.
// It implements the core MECE guarantee: one record per physical input,
// produced exactly once, with LogicalID always referencing a known logical id.
type AppMapper struct {
	oracle        domain.MappingOracle
	logger        Logger
	threshold     float64
	oracleTimeout time.Duration
}

// NewAppMapper creates a new AppMapper with the given dependencies.
// All dependencies are injected to support testing and SOLID principles.
func NewAppMapper(oracle domain.MappingOracle, log Logger, opts MapperOptions) *AppMapper {
	threshold := opts.UncertaintyThreshold
	if threshold <= 0 {
		threshold = domain.DefaultUncertaintyThreshold
	}
	return &AppMapper{
		oracle:        oracle,
		logger:        log,
		threshold:     threshold,
		oracleTimeout: opts.OracleTimeout,
	}
}

// Validate checks run input without issuing any oracle call.
// Returns a *domain.ValidationError describing the first violation found.
func (m *AppMapper) Validate(input domain.RunInput) error {
	if len(input.Physicals) == 0 {
		return domain.NewValidationError("physical application set is empty")
	}
	if len(input.Logicals) == 0 {
		return domain.NewValidationError("logical application set is empty")
	}
	if err := checkIDs("physical", input.Physicals); err != nil {
		return err
	}
	if err := checkIDs("logical", input.Logicals); err != nil {
		return err
	}
	if input.MaxConcurrency < domain.MinConcurrency {
		return domain.NewValidationError(fmt.Sprintf(
			"maxConcurrency must be at least %d, got %d", domain.MinConcurrency, input.MaxConcurrency))
	}
	return nil
}

// checkIDs verifies that every record in a set has a non-empty id unique
// within the set.
func checkIDs(role string, records []domain.ApplicationRecord) error {
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return domain.NewValidationError(fmt.Sprintf("%s application at index %d has an empty id", role, i))
		}
		if _, dup := seen[rec.ID]; dup {
			return domain.NewValidationError(fmt.Sprintf("duplicate %s application id %q", role, rec.ID))
		}
		seen[rec.ID] = struct{}{}
	}
	return nil
}

// Run executes the mapping run. It validates input, fans out over a
// semaphore-bounded worker per physical application, applies the per-item
// repair policy, and returns records normalized to physical input order.
//
// Per-item oracle failures never fail the run: a failed call is retried once
// and then absorbed into a synthesized record. Only validation aborts.
//
// Cancelling ctx stops new oracle calls from being dispatched; in-flight
// calls finish naturally and undispatched items receive synthesized records
// so the result set still covers every physical id.
func (m *AppMapper) Run(ctx context.Context, input domain.RunInput, onProgress ProgressFunc) (*domain.RunResult, error) {
	if err := m.Validate(input); err != nil {
		return nil, err
	}

	maxConcurrency := input.MaxConcurrency
	if maxConcurrency > domain.MaxConcurrencyLimit {
		maxConcurrency = domain.MaxConcurrencyLimit
	}

	runID := uuid.NewString()
	total := len(input.Physicals)

	m.logger.Info(ctx, "starting mapping run", map[string]interface{}{
		"run_id":          runID,
		"physical_count":  total,
		"logical_count":   len(input.Logicals),
		"max_concurrency": maxConcurrency,
	})

	logicalByID := make(map[string]domain.ApplicationRecord, len(input.Logicals))
	for _, logical := range input.Logicals {
		logicalByID[logical.ID] = logical
	}

	// Records are written into their input-order slot, so no re-sort is
	// needed even though workers complete in arbitrary order.
	records := make([]domain.MappingRecord, total)

	var (
		sem       = semaphore.NewWeighted(int64(maxConcurrency))
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)

	for i, physical := range input.Physicals {
		wg.Add(1)
		go func(slot int, physical domain.ApplicationRecord) {
			defer wg.Done()

			var record domain.MappingRecord
			if err := sem.Acquire(ctx, 1); err != nil {
				// Caller went away before this item was dispatched. Synthesize
				// a record so the run still covers every physical id.
				record = m.synthesizeRecord(physical, input.Logicals[0],
					fmt.Sprintf("run cancelled before dispatch: %v", err))
			} else {
				record = m.mapOne(ctx, runID, physical, input, logicalByID)
				sem.Release(1)
			}

			// Slot write, counter increment, and progress callback share one
			// critical section so emitted counts are strictly monotonic.
			mu.Lock()
			records[slot] = record
			processed++
			current := processed
			if onProgress != nil {
				onProgress(current, total)
			}
			mu.Unlock()
		}(i, physical)
	}
	wg.Wait()

	summary := buildSummary(input, records)

	m.logger.Info(ctx, "mapping run complete", map[string]interface{}{
		"run_id":          runID,
		"mapped_count":    summary.MappedCount,
		"uncertain_count": summary.UncertainCount,
		"mece_coverage":   summary.MECECoverage,
	})

	return &domain.RunResult{
		RunID:    runID,
		Mappings: records,
		Summary:  summary,
	}, nil
}

// mapOne obtains a validated record for one physical application, applying
// the retry and repair policy.
func (m *AppMapper) mapOne(
	ctx context.Context,
	runID string,
	physical domain.ApplicationRecord,
	input domain.RunInput,
	logicalByID map[string]domain.ApplicationRecord,
) domain.MappingRecord {
	result, err := m.callOracle(ctx, physical, input.Logicals, input.Context)
	if err != nil {
		m.logger.Warn(ctx, "oracle call failed, retrying once", map[string]interface{}{
			"run_id":      runID,
			"physical_id": physical.ID,
			"error":       err.Error(),
		})
		result, err = m.callOracle(ctx, physical, input.Logicals, input.Context)
	}
	if err != nil {
		m.logger.Error(ctx, "oracle call failed after retry, synthesizing record", err, map[string]interface{}{
			"run_id":      runID,
			"physical_id": physical.ID,
		})
		return m.synthesizeRecord(physical, input.Logicals[0],
			fmt.Sprintf("oracle call failed after retry: %v", err))
	}

	logical, known := logicalByID[result.LogicalID]
	if !known {
		fallback := bestLexicalCandidate(physical, input.Logicals)
		m.logger.Warn(ctx, "oracle returned unknown logical id, substituting by lexical similarity", map[string]interface{}{
			"run_id":           runID,
			"physical_id":      physical.ID,
			"model_logical_id": result.LogicalID,
			"substituted_id":   fallback.ID,
		})
		return domain.MappingRecord{
			PhysicalID:      physical.ID,
			PhysicalName:    physical.Name,
			LogicalID:       fallback.ID,
			LogicalName:     fallback.Name,
			Similarity:      result.Similarity,
			Rationale:       result.Rationale,
			Uncertain:       true,
			ModelLogicalID:  result.LogicalID,
			AutoSubstituted: true,
			MismatchReason: fmt.Sprintf(
				"model returned unknown logical id %q; substituted %q by lexical similarity", result.LogicalID, fallback.ID),
		}
	}

	return domain.MappingRecord{
		PhysicalID:   physical.ID,
		PhysicalName: physical.Name,
		LogicalID:    logical.ID,
		LogicalName:  logical.Name,
		Similarity:   result.Similarity,
		Rationale:    result.Rationale,
		Uncertain:    result.Similarity < m.threshold,
	}
}

// callOracle issues one oracle call under the configured per-call deadline.
func (m *AppMapper) callOracle(
	ctx context.Context,
	physical domain.ApplicationRecord,
	logicals []domain.ApplicationRecord,
	runContext string,
) (*domain.OracleResult, error) {
	if m.oracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.oracleTimeout)
		defer cancel()
	}
	return m.oracle.Map(ctx, physical, logicals, runContext)
}

// synthesizeRecord builds the record for a physical application whose oracle
// calls could not produce a usable answer. The fallback is the first logical
// application in input order, which keeps the choice deterministic.
func (m *AppMapper) synthesizeRecord(
	physical domain.ApplicationRecord,
	fallback domain.ApplicationRecord,
	reason string,
) domain.MappingRecord {
	return domain.MappingRecord{
		PhysicalID:      physical.ID,
		PhysicalName:    physical.Name,
		LogicalID:       fallback.ID,
		LogicalName:     fallback.Name,
		Similarity:      0,
		Rationale:       "",
		Uncertain:       true,
		AutoSubstituted: true,
		MismatchReason:  reason,
	}
}

// bestLexicalCandidate picks the logical application whose name and text are
// most similar to the physical application's. Candidates are scanned in input
// order and only a strictly greater score replaces the current best, so ties
// resolve to the earliest candidate and the choice is deterministic. With no
// lexical signal at all this degrades to the first logical application.
func bestLexicalCandidate(physical domain.ApplicationRecord, logicals []domain.ApplicationRecord) domain.ApplicationRecord {
	physicalText := physical.Name + " " + physical.TextContent
	best := logicals[0]
	bestScore := -1.0
	for _, candidate := range logicals {
		score := lexicalSimilarity(physicalText, candidate.Name+" "+candidate.TextContent)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}

// buildSummary computes aggregate statistics over the final record set.
// MECE coverage is re-derived from the records rather than assumed, so a
// future regression surfaces as meceCoverage=false instead of silent
// corruption.
func buildSummary(input domain.RunInput, records []domain.MappingRecord) domain.RunSummary {
	uncertain := 0
	seen := make(map[string]int, len(records))
	for _, rec := range records {
		if rec.Uncertain {
			uncertain++
		}
		seen[rec.PhysicalID]++
	}

	mece := len(records) == len(input.Physicals)
	for _, physical := range input.Physicals {
		if seen[physical.ID] != 1 {
			mece = false
			break
		}
	}

	return domain.RunSummary{
		PhysicalCount:  len(input.Physicals),
		LogicalCount:   len(input.Logicals),
		MappedCount:    len(records),
		UncertainCount: uncertain,
		MECECoverage:   mece,
	}
}
