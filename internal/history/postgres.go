package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists interaction records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interaction_history (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			transcription TEXT NOT NULL DEFAULT '',
			answer TEXT NOT NULL DEFAULT '',
			passages JSONB NOT NULL DEFAULT '[]'::jsonb,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interaction_history_session_created ON interaction_history (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	passages := record.Passages
	if passages == nil {
		passages = []PassageRef{}
	}
	raw, err := json.Marshal(passages)
	if err != nil {
		return fmt.Errorf("encode passages: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO interaction_history (id, session_id, outcome, transcription, answer, passages, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		record.ID,
		record.SessionID,
		record.Outcome,
		record.Transcription,
		record.Answer,
		string(raw),
		record.Error,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, outcome, transcription, answer, passages::text, error, created_at
		 FROM interaction_history WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent interactions: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r   Record
			raw string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Outcome, &r.Transcription, &r.Answer, &raw, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Passages); err != nil {
			return nil, fmt.Errorf("decode passages: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows: %w", err)
	}

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
