package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/eternisai/agent-console/internal/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Status values for a conversation record.
const (
	StatusActive    = "active"
	StatusAbandoned = "abandoned"
)

// ConversationRecord is the persisted conversation row. Written
// opportunistically by the orchestrator on first message and on archival.
type ConversationRecord struct {
	ConversationID string
	AgentID        string
	UserID         string
	Title          string
	Status         string
	LastActive     time.Time
}

// Options configures the database connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Store persists conversation records to Postgres. It satisfies
// chat.ConversationRecorder.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open connects to the database, applies pool settings, and runs
// migrations.
func Open(databaseURL string, opts Options, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.WithComponent("conversation-store"),
	}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordFirstMessage creates the conversation row on first write, deriving
// the title from the first words of the user's text. Idempotent: a
// concurrent or repeated write only refreshes last_active.
func (s *Store) RecordFirstMessage(ctx context.Context, conversationID, agentID, userID, firstMessage string) error {
	title := DeriveTitle(firstMessage)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, agent_id, user_id, title, status, last_active)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (conversation_id)
		DO UPDATE SET last_active = now(), status = $5`,
		conversationID, agentID, userID, title, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to record conversation: %w", err)
	}

	s.logger.Debug("conversation recorded",
		slog.String("conversation_id", conversationID),
		slog.String("title", title))

	return nil
}

// Touch refreshes last_active and revives an abandoned conversation the
// user came back to.
func (s *Store) Touch(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_active = now(), status = $2
		WHERE conversation_id = $1`,
		conversationID, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return nil
}

// Archive flips the record out of active status.
func (s *Store) Archive(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $2
		WHERE conversation_id = $1`,
		conversationID, StatusAbandoned)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}

	s.logger.Debug("conversation archived",
		slog.String("conversation_id", conversationID))

	return nil
}

// Get returns one conversation record.
func (s *Store) Get(ctx context.Context, conversationID string) (*ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, agent_id, user_id, title, status, last_active
		FROM conversations
		WHERE conversation_id = $1`,
		conversationID)

	var rec ConversationRecord
	if err := row.Scan(&rec.ConversationID, &rec.AgentID, &rec.UserID, &rec.Title, &rec.Status, &rec.LastActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	return &rec, nil
}

// ListForUser returns a user's conversations, most recently active first.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, agent_id, user_id, title, status, last_active
		FROM conversations
		WHERE user_id = $1
		ORDER BY last_active DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		if err := rows.Scan(&rec.ConversationID, &rec.AgentID, &rec.UserID, &rec.Title, &rec.Status, &rec.LastActive); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// markStale flips active conversations idle longer than abandonAfter to
// abandoned. Called by the janitor.
func (s *Store) markStale(ctx context.Context, abandonAfter time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $1
		WHERE status = $2 AND last_active < now() - $3::interval`,
		StatusAbandoned, StatusActive,
		fmt.Sprintf("%d seconds", int64(abandonAfter.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale conversations: %w", err)
	}

	return res.RowsAffected()
}
