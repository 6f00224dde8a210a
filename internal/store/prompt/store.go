package prompt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/sangha-bot/internal/model/prompt"
)

// Store exposes prompt persistence for the dispatcher and the scheduler.
type Store interface {
	Add(ctx context.Context, messageRef, sourceContent, promptText string) error
	Remove(ctx context.Context, id int64) error
	Pop(ctx context.Context) (*prompt.Record, error)
	List(ctx context.Context, n int) ([]prompt.Record, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// SQLiteStore implements Store on a single sqlite table. A mutex serializes
// every call because the dispatcher goroutines and the scheduler's tick
// goroutine share one connection.
type SQLiteStore struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// prompts table exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	// WAL mode plus a busy timeout keeps the single writer responsive.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS prompts (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		inserted_at    TIMESTAMP NOT NULL,
		message_ref    TEXT NOT NULL,
		source_content TEXT NOT NULL,
		prompt         TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add stores a new prompt with a fresh id and the current timestamp.
func (s *SQLiteStore) Add(ctx context.Context, messageRef, sourceContent, promptText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (inserted_at, message_ref, source_content, prompt) VALUES (?, ?, ?, ?)`,
		s.now().UTC(), messageRef, sourceContent, promptText)
	if err != nil {
		return fmt.Errorf("failed to insert prompt: %w", err)
	}
	return nil
}

// Remove deletes at most one prompt by id. Removing an absent id succeeds;
// callers are not told whether a row existed.
func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete prompt %d: %w", id, err)
	}
	return nil
}

// Pop atomically removes and returns the most recently inserted prompt, or
// nil when the store is empty. Ties on inserted_at go to the highest id.
func (s *SQLiteStore) Pop(ctx context.Context) (*prompt.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin pop transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, inserted_at, message_ref, source_content, prompt
		 FROM prompts ORDER BY inserted_at DESC, id DESC LIMIT 1`)

	var rec prompt.Record
	if err := row.Scan(&rec.ID, &rec.InsertedAt, &rec.MessageRef, &rec.SourceContent, &rec.Prompt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select prompt: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, rec.ID); err != nil {
		return nil, fmt.Errorf("failed to delete popped prompt %d: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pop: %w", err)
	}
	return &rec, nil
}

// List returns at most n prompts, most recent first.
func (s *SQLiteStore) List(ctx context.Context, n int) ([]prompt.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, inserted_at, message_ref, source_content, prompt
		 FROM prompts ORDER BY inserted_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	records := make([]prompt.Record, 0, n)
	for rows.Next() {
		var rec prompt.Record
		if err := rows.Scan(&rec.ID, &rec.InsertedAt, &rec.MessageRef, &rec.SourceContent, &rec.Prompt); err != nil {
			return nil, fmt.Errorf("failed to scan prompt row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompt rows: %w", err)
	}
	return records, nil
}

// Count reports how many prompts are stored.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count prompts: %w", err)
	}
	return count, nil
}
