package usecase

import (
	"context"
	"time"

	"github.com/custos-io/custos/internal/domain"
)

// ArtifactStore is the slice of the store retention needs; *artifact.Store is
// the production implementation.
type ArtifactStore interface {
	List(database string) ([]domain.ArtifactRecord, error)
	Remove(record domain.ArtifactRecord) error
}

// EnforceResult records one retention pass. Failed holds artifacts whose
// deletion errored; they stay on disk and will be candidates again next pass.
type EnforceResult struct {
	Deleted []domain.ArtifactRecord
	Kept    []domain.ArtifactRecord
	Failed  []domain.ArtifactRecord
}

// Retention applies the dual keep_days/keep_count policy over a database's
// artifacts. An artifact is kept when either clause protects it: it is young
// enough, or it ranks among the newest KeepCount. Deletion is best effort per
// file and the pass is idempotent.
type Retention struct {
	store  ArtifactStore
	logger Logger
}

func NewRetention(store ArtifactStore, logger Logger) *Retention {
	return &Retention{store: store, logger: logger}
}

// Enforce scans the store for database and deletes every artifact protected
// by neither clause. justCreated names the artifact written by the current
// pipeline pass; it is never deleted regardless of policy. KeepCount is
// clamped to 1 internally so a zero-count policy cannot delete on write.
func (r *Retention) Enforce(ctx context.Context, database string, policy domain.RetentionPolicy, justCreated string) (EnforceResult, error) {
	var result EnforceResult

	records, err := r.store.List(database)
	if err != nil {
		return result, err
	}

	keepCount := policy.KeepCount
	if keepCount < 1 {
		keepCount = 1
	}
	cutoff := time.Now().AddDate(0, 0, -policy.KeepDays)

	for i, rec := range records {
		protected := i < keepCount ||
			!rec.CreatedAt.Before(cutoff) ||
			(justCreated != "" && rec.FilePath == justCreated)

		if protected {
			result.Kept = append(result.Kept, rec)
			continue
		}

		if err := r.store.Remove(rec); err != nil {
			r.logger.Errorf("[%s] Failed to delete expired artifact %s: %v", database, rec.FilePath, err)
			result.Failed = append(result.Failed, rec)
			continue
		}
		r.logger.Infof("[%s] Deleted expired artifact: %s", database, rec.FilePath)
		result.Deleted = append(result.Deleted, rec)
	}

	if len(result.Deleted) > 0 || len(result.Failed) > 0 {
		r.logger.Infof("[%s] Retention pass: %d deleted, %d kept, %d failed",
			database, len(result.Deleted), len(result.Kept), len(result.Failed))
	}

	return result, nil
}
