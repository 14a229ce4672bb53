package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// MySQLStore is a MySQL implementation of the ResultStore and StateStore
// interfaces.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL durable store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS classification_results (
			message_id VARCHAR(255) PRIMARY KEY,
			category VARCHAR(32) NOT NULL,
			priority VARCHAR(16) NOT NULL,
			sentiment VARCHAR(16) NOT NULL,
			topics TEXT,
			action_required BOOLEAN,
			summary TEXT,
			confidence DOUBLE,
			source VARCHAR(16) NOT NULL,
			routing VARCHAR(32),
			processing_id VARCHAR(64),
			classified_at VARCHAR(64)
		)`,
		`CREATE TABLE IF NOT EXISTS classification_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			message_id VARCHAR(255) NOT NULL,
			category VARCHAR(32) NOT NULL,
			priority VARCHAR(16) NOT NULL,
			sentiment VARCHAR(16) NOT NULL,
			topics TEXT,
			action_required BOOLEAN,
			summary TEXT,
			confidence DOUBLE,
			source VARCHAR(16) NOT NULL,
			routing VARCHAR(32),
			processing_id VARCHAR(64),
			classified_at VARCHAR(64),
			INDEX idx_history_message_id (message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS classifier_state (
			id INT PRIMARY KEY,
			state MEDIUMBLOB NOT NULL,
			updated_at VARCHAR(64)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves the authoritative result for a message
func (s *MySQLStore) Get(ctx context.Context, messageID string) (*core.ClassificationResult, error) {
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
func (s *MySQLStore) Put(ctx context.Context, result *core.ClassificationResult) error {
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
		REPLACE INTO classification_results
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
func (s *MySQLStore) History(ctx context.Context, messageID string) ([]*core.ClassificationResult, error) {
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
func (s *MySQLStore) LoadClassifierState(ctx context.Context) ([]byte, error) {
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
func (s *MySQLStore) SaveClassifierState(ctx context.Context, snapshot []byte) error {
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO classifier_state (id, state, updated_at)
		VALUES (1, ?, ?)
	`, snapshot, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save classifier state: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
