package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed journal.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the status server read while the bot writes.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		prompt_length INTEGER NOT NULL,
		reply_length INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		resumed INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL,
		started_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_started ON turns(started_at);

	CREATE TABLE IF NOT EXISTS health_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		summary TEXT NOT NULL,
		occurred_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_occurred ON health_transitions(occurred_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordTurn appends a completed turn.
func (s *SQLiteStore) RecordTurn(ctx context.Context, turn *domain.TurnRecord) error {
	query := `
	INSERT INTO turns (chat_id, prompt_length, reply_length, outcome, resumed, duration_ms, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return withRetry(ctx, "record turn", func() error {
		res, err := s.db.ExecContext(ctx, query,
			int64(turn.ConversationID), turn.PromptLength, turn.ReplyLength,
			string(turn.Outcome), boolToInt(turn.Resumed),
			turn.Duration.Milliseconds(), turn.StartedAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
		turn.ID, err = res.LastInsertId()
		return err
	})
}

// RecordTransition appends a watchdog transition.
func (s *SQLiteStore) RecordTransition(ctx context.Context, transition *domain.HealthTransition) error {
	query := `INSERT INTO health_transitions (kind, summary, occurred_at) VALUES (?, ?, ?)`

	return withRetry(ctx, "record transition", func() error {
		res, err := s.db.ExecContext(ctx, query,
			string(transition.Kind), transition.Summary, transition.OccurredAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
		transition.ID, err = res.LastInsertId()
		return err
	})
}

// RecentTurns returns up to limit turns, newest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, limit int) ([]domain.TurnRecord, error) {
	query := `
		SELECT id, chat_id, prompt_length, reply_length, outcome, resumed, duration_ms, started_at
		FROM turns ORDER BY started_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.TurnRecord
	for rows.Next() {
		var turn domain.TurnRecord
		var chatID, durationMs, startedAt int64
		var resumed int
		var outcome string
		if err := rows.Scan(&turn.ID, &chatID, &turn.PromptLength, &turn.ReplyLength,
			&outcome, &resumed, &durationMs, &startedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.ConversationID = domain.ConversationID(chatID)
		turn.Outcome = domain.OutcomeKind(outcome)
		turn.Resumed = resumed != 0
		turn.Duration = time.Duration(durationMs) * time.Millisecond
		turn.StartedAt = time.UnixMilli(startedAt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// RecentTransitions returns up to limit transitions, newest first.
func (s *SQLiteStore) RecentTransitions(ctx context.Context, limit int) ([]domain.HealthTransition, error) {
	query := `
		SELECT id, kind, summary, occurred_at
		FROM health_transitions ORDER BY occurred_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []domain.HealthTransition
	for rows.Next() {
		var t domain.HealthTransition
		var kind string
		var occurredAt int64
		if err := rows.Scan(&t.ID, &kind, &t.Summary, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan transition row: %w", err)
		}
		t.Kind = domain.TransitionKind(kind)
		t.OccurredAt = time.UnixMilli(occurredAt)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return transitions, nil
}

// Prune deletes turns and transitions older than before.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()
	var total int64
	for _, query := range []string{
		`DELETE FROM turns WHERE started_at < ?`,
		`DELETE FROM health_transitions WHERE occurred_at < ?`,
	} {
		err := withRetry(ctx, "prune journal", func() error {
			res, err := s.db.ExecContext(ctx, query, cutoff)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			total += n
			return err
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
