// Package store persists conversation logs and the leader state that lets
// an interrupted or step-capped run continue on the next turn.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/leader"
	"github.com/tmc/langchaingo/llms"
)

type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; one connection also keeps :memory: coherent
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, id);`,
		`CREATE TABLE IF NOT EXISTS conversation_state (
			chat_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

// AddMessages appends messages to the chat's log in one transaction.
func (h *HistoryStore) AddMessages(ctx context.Context, chatID string, messages ...chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (chat_id, role, content, metadata) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range messages {
		meta, err := json.Marshal(m.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, chatID, string(m.Role), m.Content, string(meta)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetHistory returns the most recent limit messages in chronological order.
// A limit of zero or less returns the whole log.
func (h *HistoryStore) GetHistory(ctx context.Context, chatID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT role, content, metadata FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []chat.Message
	for rows.Next() {
		var role, content, meta string
		if err := rows.Scan(&role, &content, &meta); err != nil {
			return nil, err
		}

		m := chat.Message{Role: parseRole(role), Content: content}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("message metadata: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

func parseRole(role string) llms.ChatMessageType {
	switch llms.ChatMessageType(role) {
	case llms.ChatMessageTypeAI, llms.ChatMessageTypeSystem, llms.ChatMessageTypeTool, llms.ChatMessageTypeGeneric:
		return llms.ChatMessageType(role)
	default:
		return llms.ChatMessageTypeHuman
	}
}

// SaveState stores st as the chat's latest leader state. The message log is
// not duplicated into the state row.
func (h *HistoryStore) SaveState(ctx context.Context, st *leader.State) error {
	if st == nil || st.ChatID == "" {
		return errors.New("state has no chat id")
	}
	snapshot := *st
	snapshot.Messages = nil
	raw, err := json.Marshal(&snapshot)
	if err != nil {
		return err
	}
	query := `INSERT INTO conversation_state (chat_id, run_id, state, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id) DO UPDATE SET
			run_id = excluded.run_id,
			state = excluded.state,
			updated_at = excluded.updated_at`
	_, err = h.DB.ExecContext(ctx, query, st.ChatID, st.RunID, string(raw))
	return err
}

// LoadState returns the chat's latest leader state, or nil if none was saved.
func (h *HistoryStore) LoadState(ctx context.Context, chatID string) (*leader.State, error) {
	var raw string
	err := h.DB.QueryRowContext(ctx, `SELECT state FROM conversation_state WHERE chat_id = ?`, chatID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st leader.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode state for %s: %w", chatID, err)
	}
	return &st, nil
}

// Clear drops the chat's log and state.
func (h *HistoryStore) Clear(ctx context.Context, chatID string) error {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_state WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	return tx.Commit()
}
