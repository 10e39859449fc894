package syncloop

import (
	"slices"

	"directchat/internal/models"

	"github.com/samber/lo"
)

// View is a snapshot of the client state. Chats and Messages are replaced
// wholesale on every refetch.
type View struct {
	User          models.User
	Chats         []models.PopulatedChat
	Messages      []models.Message
	Selection     Selection
	Input         string
	SearchQuery   string
	SearchResults []models.User
	// Err is the error of the last failed foreground action.
	Err error
}

// Counterpart returns the user on the other side of the open conversation.
func (v View) Counterpart() (models.User, bool) {
	switch s := v.Selection.(type) {
	case Pending:
		return s.Target, true
	case Selected:
		c, ok := lo.Find(v.Chats, func(c models.PopulatedChat) bool {
			return c.ID == s.ChatID
		})
		return c.OtherUser, ok
	}
	return models.User{}, false
}

func (v View) clone() View {
	v.Chats = slices.Clone(v.Chats)
	v.Messages = slices.Clone(v.Messages)
	v.SearchResults = slices.Clone(v.SearchResults)
	return v
}
