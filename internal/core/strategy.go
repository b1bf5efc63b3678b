package core

import (
	"context"
	"fmt"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/metrics"
)

// maxRejectReasons bounds the rejection reasons kept per batch for logging.
const maxRejectReasons = 5

// WriteStrategy persists one batch and reports per-record outcomes folded
// into a BatchResult.
type WriteStrategy interface {
	Name() string
	Write(ctx context.Context, batch []RegistryRecord) (BatchResult, error)
}

// storeStrategy applies a conflict policy through a RegistryStore.
type storeStrategy struct {
	store  RegistryStore
	policy ConflictPolicy
}

// NewWriteStrategy returns the strategy of the given conflict policy:
// ConflictSkip leaves existing SIRETs untouched and counts them as skipped,
// ConflictReplace overwrites them and counts them as updated.
func NewWriteStrategy(store RegistryStore, policy ConflictPolicy) WriteStrategy {
	return &storeStrategy{store: store, policy: policy}
}

// StrategyForMode returns the write strategy used by an import mode.
func StrategyForMode(store RegistryStore, mode ImportMode) WriteStrategy {
	return NewWriteStrategy(store, mode.Policy())
}

func (s *storeStrategy) Name() string { return s.policy.String() }

func (s *storeStrategy) Write(ctx context.Context, batch []RegistryRecord) (BatchResult, error) {
	if len(batch) == 0 {
		return BatchResult{}, nil
	}

	start := time.Now()
	outcomes, err := s.store.WriteBatch(ctx, batch, s.policy)
	metrics.ObserveBatch(s.Name(), time.Since(start))
	if err != nil {
		return BatchResult{}, fmt.Errorf("write batch (%s, %d records): %w", s.Name(), len(batch), err)
	}
	if len(outcomes) != len(batch) {
		return BatchResult{}, fmt.Errorf("write batch (%s): store returned %d outcomes for %d records",
			s.Name(), len(outcomes), len(batch))
	}

	res := foldOutcomes(outcomes)
	metrics.AddRows(metrics.OutcomeInserted, res.Inserted)
	metrics.AddRows(metrics.OutcomeUpdated, res.Updated)
	metrics.AddRows(metrics.OutcomeSkipped, res.Skipped)
	metrics.AddRows(metrics.OutcomeRejected, res.Rejected)
	return res, nil
}

func foldOutcomes(outcomes []WriteOutcome) BatchResult {
	var res BatchResult
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeInserted:
			res.Inserted++
		case OutcomeUpdated:
			res.Updated++
		case OutcomeSkippedDuplicate:
			res.Skipped++
		default:
			res.Rejected++
			if len(res.Reasons) < maxRejectReasons {
				res.Reasons = append(res.Reasons, o.Reason)
			}
		}
	}
	return res
}
