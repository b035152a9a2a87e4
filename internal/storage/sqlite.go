package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	sqlRepository
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// an in-memory database lives and dies with its single connection
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{sqlRepository{db: db, dialect: dialectSQLite}}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS retreats (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		steps_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS completions (
		id TEXT PRIMARY KEY,
		retreat_id INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		reflection_notes TEXT,
		rating INTEGER CHECK (rating BETWEEN 1 AND 5),
		completed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_completions_user_id ON completions(user_id);
	CREATE INDEX IF NOT EXISTS idx_completions_completed_at ON completions(completed_at);
	`

	_, err := r.db.Exec(schema)
	return err
}
