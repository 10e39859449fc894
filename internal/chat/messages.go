package chat

import (
	"context"
	"fmt"

	"directchat/internal/content"
	"directchat/internal/models"
)

// Append adds a message from senderID to an existing chat.
func (s *Service) Append(ctx context.Context, chatID, senderID, text string) (models.Message, error) {
	if chatID == "" || senderID == "" {
		return models.Message{}, fmt.Errorf("%w: chat id and sender id are required", models.ErrValidation)
	}
	text, err := content.Message(text)
	if err != nil {
		return models.Message{}, err
	}
	return s.append(chatID, senderID, text)
}

// Send delivers a message to recipientID, resolving or creating their chat first.
// Content is validated before any chat is created.
func (s *Service) Send(ctx context.Context, senderID, recipientID, text string) (models.Message, error) {
	text, err := content.Message(text)
	if err != nil {
		return models.Message{}, err
	}
	chatID, err := s.ResolveOrCreate(ctx, senderID, recipientID)
	if err != nil {
		return models.Message{}, err
	}
	return s.append(chatID, senderID, text)
}

// ListByChat returns the full history of a chat ordered by (timestamp, seq).
func (s *Service) ListByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", models.ErrValidation)
	}
	messages, err := s.store.ListMessages(chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *Service) append(chatID, senderID, text string) (models.Message, error) {
	msg, err := s.store.AppendMessage(models.Message{
		ID:        s.newID(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   text,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}
