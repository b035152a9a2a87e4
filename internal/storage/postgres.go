package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type PostgresRepository struct {
	sqlRepository
}

func NewPostgresRepository(connStr string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	repo := &PostgresRepository{sqlRepository{db: db, dialect: dialectPostgres}}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return repo, nil
}

func (r *PostgresRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS retreats (
		id BIGINT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		steps_json JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS completions (
		id UUID PRIMARY KEY,
		retreat_id BIGINT NOT NULL,
		user_id TEXT NOT NULL,
		reflection_notes TEXT,
		rating SMALLINT CHECK (rating BETWEEN 1 AND 5),
		completed_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_completions_user_id ON completions(user_id);
	CREATE INDEX IF NOT EXISTS idx_completions_completed_at ON completions(completed_at);
	`

	_, err := r.db.Exec(schema)
	return err
}
