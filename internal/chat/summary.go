package chat

import (
	"context"
	"fmt"
	"sort"

	"directchat/internal/models"
	"directchat/internal/storage"

	"github.com/samber/lo"
)

// ListForUser returns the populated chats of userID, most recently updated first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.PopulatedChat, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	snapshots, err := s.store.ListUserChats(userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	chats := lo.Map(snapshots, func(snap storage.ChatSnapshot, _ int) models.PopulatedChat {
		return populate(snap, userID)
	})
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].UpdatedAt != chats[j].UpdatedAt {
			return chats[i].UpdatedAt > chats[j].UpdatedAt
		}
		return chats[i].ID < chats[j].ID
	})
	return chats, nil
}

func populate(snap storage.ChatSnapshot, userID string) models.PopulatedChat {
	other, ok := lo.Find(snap.Participants, func(u models.User) bool {
		return u.ID != userID
	})
	if !ok && len(snap.Participants) > 0 {
		other = snap.Participants[0]
	}
	return models.PopulatedChat{
		Version:      models.PopulatedChatVersion,
		ID:           snap.Chat.ID,
		UpdatedAt:    snap.Chat.UpdatedAt,
		Participants: snap.Participants,
		OtherUser:    other,
		LastMessage:  snap.LastMessage,
	}
}
