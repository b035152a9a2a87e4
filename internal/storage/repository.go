package storage

import (
	"context"
	"time"

	"github.com/hperssn/sages/internal/domain"
)

// Repository persists retreat content and completion records.
type Repository interface {
	// SaveCompletion writes rec once. Saving a record id that already
	// exists returns the stored record with created=false.
	SaveCompletion(ctx context.Context, rec *domain.CompletionRecord) (stored *domain.CompletionRecord, created bool, err error)

	ListCompletionsByUser(ctx context.Context, userID string, limit int) ([]domain.CompletionRecord, error)

	ListRecentCompletions(ctx context.Context, userID string, since time.Time) ([]domain.CompletionRecord, error)

	GetCompletionStats(ctx context.Context, userID string) (*domain.CompletionStats, error)

	UpsertRetreat(ctx context.Context, r *domain.Retreat) error

	GetRetreat(ctx context.Context, id int64) (*domain.Retreat, error)

	ListRetreats(ctx context.Context) ([]domain.Retreat, error)

	Close() error
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
