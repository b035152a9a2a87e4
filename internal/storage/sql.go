package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hperssn/sages/internal/domain"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlRepository is the database/sql implementation shared by the SQLite
// and PostgreSQL backends. Queries are written with ? placeholders.
type sqlRepository struct {
	db      *sql.DB
	dialect dialect
}

func (r *sqlRepository) rebind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *sqlRepository) SaveCompletion(ctx context.Context, rec *domain.CompletionRecord) (*domain.CompletionRecord, bool, error) {
	query := r.rebind(`
		INSERT INTO completions (id, retreat_id, user_id, reflection_notes, rating, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)

	var notes sql.NullString
	if rec.ReflectionNotes != nil {
		notes = sql.NullString{String: *rec.ReflectionNotes, Valid: true}
	}
	var rating sql.NullInt64
	if rec.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*rec.Rating), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RetreatID,
		rec.UserID,
		notes,
		rating,
		rec.CompletedAt.UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert completion: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert completion: %w", err)
	}
	if n == 1 {
		stored := *rec
		return &stored, true, nil
	}

	existing, err := r.getCompletion(ctx, rec.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *sqlRepository) getCompletion(ctx context.Context, id string) (*domain.CompletionRecord, error) {
	query := r.rebind(`
		SELECT id, retreat_id, user_id, reflection_notes, rating, completed_at
		FROM completions
		WHERE id = ?
	`)

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	defer rows.Close()

	records, err := scanCompletions(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("get completion %s: %w", id, sql.ErrNoRows)
	}
	return &records[0], nil
}

func (r *sqlRepository) ListCompletionsByUser(ctx context.Context, userID string, limit int) ([]domain.CompletionRecord, error) {
	query := r.rebind(`
		SELECT id, retreat_id, user_id, reflection_notes, rating, completed_at
		FROM completions
		WHERE user_id = ?
		ORDER BY completed_at DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	return scanCompletions(rows)
}

func (r *sqlRepository) ListRecentCompletions(ctx context.Context, userID string, since time.Time) ([]domain.CompletionRecord, error) {
	query := r.rebind(`
		SELECT id, retreat_id, user_id, reflection_notes, rating, completed_at
		FROM completions
		WHERE user_id = ? AND completed_at >= ?
		ORDER BY completed_at DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list recent completions: %w", err)
	}
	defer rows.Close()

	return scanCompletions(rows)
}

func (r *sqlRepository) GetCompletionStats(ctx context.Context, userID string) (*domain.CompletionStats, error) {
	query := r.rebind(`
		SELECT
			COUNT(*) as total,
			COUNT(rating) as rated,
			AVG(rating) as avg_rating,
			COUNT(DISTINCT retreat_id) as retreats
		FROM completions
		WHERE user_id = ?
	`)

	stats := domain.CompletionStats{ByRetreat: make(map[int64]int)}
	var avgRating sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.TotalCompletions,
		&stats.RatedCount,
		&avgRating,
		&stats.DistinctRetreats,
	)
	if err != nil {
		return nil, fmt.Errorf("completion stats: %w", err)
	}
	if avgRating.Valid {
		stats.AverageRating = avgRating.Float64
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT retreat_id, COUNT(*)
		FROM completions
		WHERE user_id = ?
		GROUP BY retreat_id
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("completion stats by retreat: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		stats.ByRetreat[id] = n
	}

	return &stats, rows.Err()
}

func (r *sqlRepository) UpsertRetreat(ctx context.Context, rt *domain.Retreat) error {
	stepsJSON, err := json.Marshal(rt.Steps)
	if err != nil {
		return err
	}

	query := r.rebind(`
		INSERT INTO retreats (id, title, description, steps_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			steps_json = excluded.steps_json,
			updated_at = excluded.updated_at
	`)

	_, err = r.db.ExecContext(ctx, query,
		rt.ID,
		rt.Title,
		rt.Description,
		string(stepsJSON),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert retreat %d: %w", rt.ID, err)
	}
	return nil
}

func (r *sqlRepository) GetRetreat(ctx context.Context, id int64) (*domain.Retreat, error) {
	query := r.rebind(`
		SELECT id, title, description, steps_json
		FROM retreats
		WHERE id = ?
	`)

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get retreat %d: %w", id, err)
	}
	defer rows.Close()

	retreats, err := scanRetreats(rows)
	if err != nil {
		return nil, err
	}
	if len(retreats) == 0 {
		return nil, domain.ErrRetreatNotFound
	}
	return &retreats[0], nil
}

func (r *sqlRepository) ListRetreats(ctx context.Context) ([]domain.Retreat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, steps_json
		FROM retreats
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list retreats: %w", err)
	}
	defer rows.Close()

	return scanRetreats(rows)
}

func (r *sqlRepository) Close() error {
	return r.db.Close()
}

func scanCompletions(rows *sql.Rows) ([]domain.CompletionRecord, error) {
	var records []domain.CompletionRecord

	for rows.Next() {
		var record domain.CompletionRecord
		var notes sql.NullString
		var rating sql.NullInt64

		err := rows.Scan(
			&record.ID,
			&record.RetreatID,
			&record.UserID,
			&notes,
			&rating,
			&record.CompletedAt,
		)
		if err != nil {
			return nil, err
		}

		if notes.Valid {
			record.ReflectionNotes = &notes.String
		}
		if rating.Valid {
			v := int(rating.Int64)
			record.Rating = &v
		}
		record.CompletedAt = record.CompletedAt.UTC()

		records = append(records, record)
	}

	return records, rows.Err()
}

func scanRetreats(rows *sql.Rows) ([]domain.Retreat, error) {
	var retreats []domain.Retreat

	for rows.Next() {
		var rt domain.Retreat
		var description sql.NullString
		var stepsJSON []byte

		if err := rows.Scan(&rt.ID, &rt.Title, &description, &stepsJSON); err != nil {
			return nil, err
		}
		rt.Description = description.String

		if err := json.Unmarshal(stepsJSON, &rt.Steps); err != nil {
			return nil, fmt.Errorf("decode steps of retreat %d: %w", rt.ID, err)
		}

		retreats = append(retreats, rt)
	}

	return retreats, rows.Err()
}
