package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// SQLiteStore is a SQLite implementation of the ResultStore and StateStore
// interfaces. Classification results never expire; every Put also appends
// to a retained history table.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite durable store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS classification_results (
			message_id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			priority TEXT NOT NULL,
			sentiment TEXT NOT NULL,
			topics TEXT,
			action_required BOOLEAN,
			summary TEXT,
			confidence REAL,
			source TEXT NOT NULL,
			routing TEXT,
			processing_id TEXT,
			classified_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS classification_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			category TEXT NOT NULL,
			priority TEXT NOT NULL,
			sentiment TEXT NOT NULL,
			topics TEXT,
			action_required BOOLEAN,
			summary TEXT,
			confidence REAL,
			source TEXT NOT NULL,
			routing TEXT,
			processing_id TEXT,
			classified_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_message_id ON classification_history(message_id)`,
		`CREATE TABLE IF NOT EXISTS classifier_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			state BLOB NOT NULL,
			updated_at TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves the authoritative result for a message
func (s *SQLiteStore) Get(ctx context.Context, messageID string) (*core.ClassificationResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT category, priority, sentiment, topics, action_required, summary,
		       confidence, source, routing, processing_id, classified_at
		FROM classification_results
		WHERE message_id = ?
	`, messageID)

	result, err := scanResult(row, messageID)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query classification result: %w", err)
	}
	return result, nil
}

// Put replaces the authoritative result and appends to history
func (s *SQLiteStore) Put(ctx context.Context, result *core.ClassificationResult) error {
	topics, err := json.Marshal(result.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := []interface{}{
		result.MessageID,
		string(result.Category),
		string(result.Priority),
		string(result.Sentiment),
		string(topics),
		result.ActionRequired,
		result.Summary,
		result.Confidence,
		string(result.Source),
		string(result.Routing),
		result.ProcessingID,
		result.ClassifiedAt.Format(time.RFC3339),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO classification_results
			(message_id, category, priority, sentiment, topics, action_required,
			 summary, confidence, source, routing, processing_id, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...); err != nil {
		return fmt.Errorf("failed to upsert classification result: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO classification_history
			(message_id, category, priority, sentiment, topics, action_required,
			 summary, confidence, source, routing, processing_id, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...); err != nil {
		return fmt.Errorf("failed to append classification history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit classification result: %w", err)
	}
	return nil
}

// History returns every result ever stored for a message, oldest first
func (s *SQLiteStore) History(ctx context.Context, messageID string) ([]*core.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, priority, sentiment, topics, action_required, summary,
		       confidence, source, routing, processing_id, classified_at
		FROM classification_history
		WHERE message_id = ?
		ORDER BY id ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classification history: %w", err)
	}
	defer rows.Close()

	var results []*core.ClassificationResult
	for rows.Next() {
		result, err := scanResult(rows, messageID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	return results, nil
}

// LoadClassifierState returns the persisted classifier snapshot
func (s *SQLiteStore) LoadClassifierState(ctx context.Context) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM classifier_state WHERE id = 1
	`).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load classifier state: %w", err)
	}
	return state, nil
}

// SaveClassifierState persists the classifier snapshot
func (s *SQLiteStore) SaveClassifierState(ctx context.Context, snapshot []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO classifier_state (id, state, updated_at)
		VALUES (1, ?, ?)
	`, snapshot, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save classifier state: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row scanner, messageID string) (*core.ClassificationResult, error) {
	var (
		category, priority, sentiment string
		topicsRaw                     sql.NullString
		actionRequired                bool
		summary, source, routing      string
		confidence                    float64
		processingID                  string
		classifiedAt                  string
	)
	if err := row.Scan(&category, &priority, &sentiment, &topicsRaw, &actionRequired,
		&summary, &confidence, &source, &routing, &processingID, &classifiedAt); err != nil {
		return nil, err
	}

	// Stored enums pass back through the parsers so a corrupted row is an
	// error, not a silently invalid result.
	result, err := core.NewClassificationResult(messageID, category, priority, sentiment, nil, actionRequired, summary)
	if err != nil {
		return nil, fmt.Errorf("corrupt stored result: %w", err)
	}
	if topicsRaw.Valid && topicsRaw.String != "" {
		if err := json.Unmarshal([]byte(topicsRaw.String), &result.Topics); err != nil {
			return nil, fmt.Errorf("corrupt stored topics: %w", err)
		}
	}
	result.Confidence = confidence
	result.Source = core.Source(source)
	result.Routing = core.Routing(routing)
	result.ProcessingID = processingID
	if ts, err := time.Parse(time.RFC3339, classifiedAt); err == nil {
		result.ClassifiedAt = ts
	}
	return result, nil
}
