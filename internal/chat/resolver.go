package chat

import (
	"context"
	"fmt"
	"log/slog"

	"directchat/internal/models"
)

// ResolveOrCreate returns the id of the one chat between userA and userB,
// creating it on first contact. The argument order does not matter.
func (s *Service) ResolveOrCreate(ctx context.Context, userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", fmt.Errorf("%w: both user ids are required", models.ErrValidation)
	}
	if userA == userB {
		return "", fmt.Errorf("%w: cannot start a chat with yourself", models.ErrValidation)
	}

	newID := s.newID()
	chat, err := s.store.ResolveChat(newID, userA, userB, s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("resolve chat: %w", err)
	}
	if chat.ID == newID {
		slog.InfoContext(ctx, "chat created", "chat_id", chat.ID, "user_a", userA, "user_b", userB)
	}
	return chat.ID, nil
}
