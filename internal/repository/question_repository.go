package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digkill/finassist/internal/models"
)

type QuestionRepository struct {
	db *sql.DB
}

func NewQuestionRepository(db *sql.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func (r *QuestionRepository) Log(ctx context.Context, entry models.QuestionLog) error {
	const query = `
INSERT INTO question_logs (user_id, chat_id, model, plan)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.UserID, entry.ChatID, entry.Model, entry.Plan); err != nil {
		return fmt.Errorf("insert question log: %w", err)
	}
	return nil
}

// CountSince returns the number of answered questions in [since, now).
func (r *QuestionRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM question_logs WHERE created_at >= ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}
