package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hperssn/sages/internal/domain"
)

// MemoryRepository keeps everything in process. Used for local runs and
// tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	retreats    map[int64]domain.Retreat
	completions map[string]domain.CompletionRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		retreats:    make(map[int64]domain.Retreat),
		completions: make(map[string]domain.CompletionRecord),
	}
}

func (m *MemoryRepository) SaveCompletion(_ context.Context, rec *domain.CompletionRecord) (*domain.CompletionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.completions[rec.ID]; ok {
		return &existing, false, nil
	}
	stored := *rec
	stored.CompletedAt = stored.CompletedAt.UTC()
	m.completions[rec.ID] = stored
	return &stored, true, nil
}

func (m *MemoryRepository) ListCompletionsByUser(_ context.Context, userID string, limit int) ([]domain.CompletionRecord, error) {
	records := m.filter(func(c domain.CompletionRecord) bool { return c.UserID == userID })
	if n := normalizeLimit(limit); len(records) > n {
		records = records[:n]
	}
	return records, nil
}

func (m *MemoryRepository) ListRecentCompletions(_ context.Context, userID string, since time.Time) ([]domain.CompletionRecord, error) {
	return m.filter(func(c domain.CompletionRecord) bool {
		return c.UserID == userID && !c.CompletedAt.Before(since)
	}), nil
}

func (m *MemoryRepository) GetCompletionStats(_ context.Context, userID string) (*domain.CompletionStats, error) {
	stats := &domain.CompletionStats{ByRetreat: make(map[int64]int)}
	ratingSum := 0

	for _, c := range m.filter(func(c domain.CompletionRecord) bool { return c.UserID == userID }) {
		stats.TotalCompletions++
		stats.ByRetreat[c.RetreatID]++
		if c.Rating != nil {
			stats.RatedCount++
			ratingSum += *c.Rating
		}
	}
	stats.DistinctRetreats = len(stats.ByRetreat)
	if stats.RatedCount > 0 {
		stats.AverageRating = float64(ratingSum) / float64(stats.RatedCount)
	}
	return stats, nil
}

func (m *MemoryRepository) UpsertRetreat(_ context.Context, r *domain.Retreat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retreats[r.ID] = *r.Clone()
	return nil
}

func (m *MemoryRepository) GetRetreat(_ context.Context, id int64) (*domain.Retreat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.retreats[id]
	if !ok {
		return nil, domain.ErrRetreatNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryRepository) ListRetreats(_ context.Context) ([]domain.Retreat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Retreat, 0, len(m.retreats))
	for _, r := range m.retreats {
		out = append(out, *r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) Close() error { return nil }

// filter returns matches newest first.
func (m *MemoryRepository) filter(keep func(domain.CompletionRecord) bool) []domain.CompletionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.CompletionRecord
	for _, c := range m.completions {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out
}
