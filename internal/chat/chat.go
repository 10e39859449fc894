// Package chat resolves the chat of a user pair, stores messages and projects
// the chat list of a user.
package chat

import (
	"time"

	"directchat/internal/models"
	"directchat/internal/storage"

	"github.com/google/uuid"
)

type chatStore interface {
	ResolveChat(newID, userA, userB string, now int64) (models.Chat, error)
	AppendMessage(message models.Message) (models.Message, error)
	ListMessages(chatID string) ([]models.Message, error)
	ListUserChats(userID string) ([]storage.ChatSnapshot, error)
}

type Service struct {
	store chatStore
	now   func() time.Time
	newID func() string
}

func New(store chatStore) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}
