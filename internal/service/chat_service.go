package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-chat-server/internal/model"
	"go-chat-server/pkg/apierror"
)

type MessageStore interface {
	Insert(ctx context.Context, m model.Message) error
	FindByID(ctx context.Context, id string) (model.Message, error)
	Recent(ctx context.Context, limit int) ([]model.Message, error)
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type ChatService struct {
	messages     MessageStore
	historyLimit int
}

func NewChatService(messages MessageStore, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatService{messages: messages, historyLimit: historyLimit}
}

// SaveMessage validates and persists a chat message for broadcast.
func (s *ChatService) SaveMessage(ctx context.Context, userID string, nickname string, content string) (model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, apierror.Validation("message cannot be empty", "content")
	}
	if len(content) > model.MaxMessageLength {
		return model.Message{}, apierror.Validation("message too long (max 1000 characters)", "content")
	}

	message := model.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Nickname:  nickname,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.messages.Insert(ctx, message); err != nil {
		return model.Message{}, err
	}

	slog.Debug("message saved", "user_id", userID, "message_id", message.ID)
	return message, nil
}

func (s *ChatService) RecentMessages(ctx context.Context) ([]model.Message, error) {
	return s.messages.Recent(ctx, s.historyLimit)
}

// DeleteMessage soft-deletes a message. Only the author or an admin may
// delete.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID string, userID string, role string) error {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	if message.UserID != userID && role != model.RoleAdmin {
		return model.ErrForbidden
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	slog.Info("message deleted", "message_id", messageID, "user_id", userID)
	return nil
}

func (s *ChatService) MessageCount(ctx context.Context) (int, error) {
	return s.messages.Count(ctx)
}
