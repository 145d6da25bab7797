package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-chat-server/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Insert(ctx context.Context, m model.Message) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, user_id, nickname, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.Nickname, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (model.Message, error) {
	var m model.Message
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, nickname, content, is_deleted, created_at
		 FROM messages WHERE id = $1`, id).
		Scan(&m.ID, &m.UserID, &m.Nickname, &m.Content, &m.IsDeleted, &m.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, model.ErrMessageNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("find message: %w", err)
	}
	return m, nil
}

// Recent returns the newest non-deleted messages in chronological order.
func (r *MessageRepository) Recent(ctx context.Context, limit int) ([]model.Message, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, nickname, content, is_deleted, created_at
		 FROM messages WHERE NOT is_deleted
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Nickname, &m.Content, &m.IsDeleted, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE NOT is_deleted`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
