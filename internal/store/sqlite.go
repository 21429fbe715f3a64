// Package store persists interactions and memories in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"memobot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.InteractionStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		provider_message_id TEXT NOT NULL UNIQUE,
		type                TEXT NOT NULL,
		content             TEXT,
		direction           TEXT NOT NULL,
		status              TEXT NOT NULL,
		created_at          DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS memories (
		id             TEXT PRIMARY KEY,
		interaction_id TEXT NOT NULL UNIQUE REFERENCES interactions(id) ON DELETE CASCADE,
		external_id    TEXT,
		content        TEXT NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateInteraction inserts a PENDING row. The UNIQUE index on
// provider_message_id is the linearization point for concurrent redeliveries:
// INSERT OR IGNORE plus a rows-affected check turns the constraint violation
// into domain.ErrDuplicateInteraction without string-matching driver errors.
func (s *SQLiteStore) CreateInteraction(ctx context.Context, in domain.Interaction) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO interactions (id, user_id, provider_message_id, type, content, direction, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, in.ProviderMessageID, string(in.Type), in.Content,
		string(in.Direction), string(in.Status), in.CreatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrDuplicateInteraction
	}
	return nil
}

func (s *SQLiteStore) GetInteractionByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.Interaction, error) {
	var in domain.Interaction
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider_message_id, type, content, direction, status, created_at
		 FROM interactions WHERE provider_message_id = ?`, providerMessageID,
	).Scan(&in.ID, &in.UserID, &in.ProviderMessageID, &in.Type, &in.Content,
		&in.Direction, &in.Status, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *SQLiteStore) UpdateInteractionStatus(ctx context.Context, id string, status domain.InteractionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interactions SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("interaction %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) ListInteractions(ctx context.Context, userID string, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, provider_message_id, type, content, direction, status, created_at
		 FROM interactions WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var in domain.Interaction
		if err := rows.Scan(&in.ID, &in.UserID, &in.ProviderMessageID, &in.Type,
			&in.Content, &in.Direction, &in.Status, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveMemory(ctx context.Context, mem domain.Memory) error {
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, interaction_id, external_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		mem.ID, mem.InteractionID, mem.ExternalID, mem.Content, mem.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetMemoryByInteraction(ctx context.Context, interactionID string) (*domain.Memory, error) {
	var mem domain.Memory
	err := s.db.QueryRowContext(ctx,
		`SELECT id, interaction_id, external_id, content, created_at
		 FROM memories WHERE interaction_id = ?`, interactionID,
	).Scan(&mem.ID, &mem.InteractionID, &mem.ExternalID, &mem.Content, &mem.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mem, nil
}

// SearchMemories is a keyword LIKE search over locally persisted memories.
// It backs degraded-mode recall when the remote memory store is unavailable;
// ranking is recency, score is a constant.
func (s *SQLiteStore) SearchMemories(ctx context.Context, query, userID string, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.content
		 FROM memories m
		 JOIN interactions i ON i.id = m.interaction_id
		 WHERE i.user_id = ? AND m.content LIKE ?
		 ORDER BY m.created_at DESC LIMIT ?`,
		userID, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.ID, &r.Content); err != nil {
			return nil, err
		}
		r.Score = 1.0
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
