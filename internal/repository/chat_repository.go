package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/finassist/internal/models"
)

type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) FindByID(ctx context.Context, id string) (*models.Chat, error) {
	const query = `
SELECT id, user_id, title, model, messages, created_at, updated_at
FROM chats WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var c models.Chat
	var raw []byte
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &raw, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	if err := json.Unmarshal(raw, &c.Messages); err != nil {
		return nil, fmt.Errorf("decode chat messages: %w", err)
	}
	return &c, nil
}

// Upsert writes the whole chat document. An existing row is only overwritten
// when it belongs to the same user; the second return value is false otherwise.
func (r *ChatRepository) Upsert(ctx context.Context, chat *models.Chat) (bool, error) {
	messages := chat.Messages
	if messages == nil {
		messages = []models.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return false, fmt.Errorf("encode chat messages: %w", err)
	}

	const query = `
INSERT INTO chats (id, user_id, title, model, messages)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    title = IF(user_id = VALUES(user_id), VALUES(title), title),
    model = IF(user_id = VALUES(user_id), VALUES(model), model),
    messages = IF(user_id = VALUES(user_id), VALUES(messages), messages),
    updated_at = IF(user_id = VALUES(user_id), NOW(), updated_at)`
	if _, err := r.db.ExecContext(ctx, query, chat.ID, chat.UserID, chat.Title, chat.Model, raw); err != nil {
		return false, fmt.Errorf("upsert chat: %w", err)
	}

	var owner string
	if err := r.db.QueryRowContext(ctx, `SELECT user_id FROM chats WHERE id = ?`, chat.ID).Scan(&owner); err != nil {
		return false, fmt.Errorf("check chat owner: %w", err)
	}
	return owner == chat.UserID, nil
}

func (r *ChatRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ChatSummary, error) {
	const query = `
SELECT id, title, model, updated_at
FROM chats WHERE user_id = ?
ORDER BY updated_at DESC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []models.ChatSummary{}
	for rows.Next() {
		var c models.ChatSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.Model, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat summary: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Delete removes the chat if it belongs to userID and reports whether a row was removed.
func (r *ChatRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	const query = `DELETE FROM chats WHERE id = ? AND user_id = ?`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}
