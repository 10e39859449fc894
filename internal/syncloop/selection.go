package syncloop

import "directchat/internal/models"

// Selection is the conversation the user is looking at. It is one of Idle,
// Selected or Pending.
type Selection interface {
	selection()
}

// Idle means no conversation is open.
type Idle struct{}

// Selected is a conversation that exists on the server.
type Selected struct {
	ChatID string
}

// Pending is a conversation with Target that will be created by the first
// message. It has no chat id.
type Pending struct {
	Target models.User
}

func (Idle) selection()     {}
func (Selected) selection() {}
func (Pending) selection()  {}
