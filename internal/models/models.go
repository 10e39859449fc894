package models

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	// ErrTransient marks network or storage failures that a later attempt may not hit.
	ErrTransient = errors.New("transient error")
)

// PopulatedChatVersion is the schema version of PopulatedChat.
const PopulatedChatVersion = 1

// User represents a user in the system.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp (milliseconds)
}

// Chat represents a conversation between exactly two users.
type Chat struct {
	ID             string    `json:"id"`
	UpdatedAt      int64     `json:"updatedAt"` // Unix timestamp (milliseconds)
	ParticipantIDs [2]string `json:"participantIds"`
}

// Message represents a chat message.
type Message struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"` // Insertion order inside the chat
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp (milliseconds)
}

// PopulatedChat is a chat joined with its participants and its most recent message.
// It is built by the summary projector only.
type PopulatedChat struct {
	Version      int      `json:"version"`
	ID           string   `json:"id"`
	UpdatedAt    int64    `json:"updatedAt"`
	Participants []User   `json:"participants"`
	OtherUser    User     `json:"otherUser"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
}

// LoginRequest is sent by a client to log in or register.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
}

// SendMessageRequest addresses a message to a user; the chat is resolved by the server.
type SendMessageRequest struct {
	SenderID    string `json:"senderId" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	Content     string `json:"content" validate:"required"`
}

// AppendMessageRequest adds a message to an existing chat.
type AppendMessageRequest struct {
	SenderID string `json:"senderId" validate:"required"`
	Content  string `json:"content" validate:"required"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
