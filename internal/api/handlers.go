package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"directchat/internal/models"

	"github.com/go-playground/validator/v10"
)

type userDirectory interface {
	Login(ctx context.Context, username string) (models.User, error)
	Search(ctx context.Context, query, excludeUserID string) ([]models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type chatService interface {
	Send(ctx context.Context, senderID, recipientID, content string) (models.Message, error)
	Append(ctx context.Context, chatID, senderID, content string) (models.Message, error)
	ListByChat(ctx context.Context, chatID string) ([]models.Message, error)
	ListForUser(ctx context.Context, userID string) ([]models.PopulatedChat, error)
}

type API struct {
	users    userDirectory
	chats    chatService
	validate *validator.Validate
}

func New(users userDirectory, chats chatService) *API {
	return &API{
		users:    users,
		chats:    chats,
		validate: validator.New(),
	}
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}

	user, err := a.users.Login(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, user)
}

func (a *API) SearchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := a.users.Search(r.Context(), q.Get("query"), q.Get("currentUserId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, users)
}

func (a *API) UserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.users.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, user)
}

func (a *API) ChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := a.chats.ListForUser(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, chats)
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := a.chats.ListByChat(r.Context(), r.URL.Query().Get("chatId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, messages)
}

// SendMessageHandler resolves the chat between sender and recipient before appending.
func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if !a.decode(w, r, &req) {
		return
	}

	msg, err := a.chats.Send(r.Context(), req.SenderID, req.RecipientID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, msg)
}

func (a *API) AppendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AppendMessageRequest
	if !a.decode(w, r, &req) {
		return
	}

	msg, err := a.chats.Append(r.Context(), r.PathValue("id"), req.SenderID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, msg)
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, models.APIResponse{Success: true})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeStatus(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		writeStatus(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "path", r.URL.Path, "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeStatus(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeStatus(w, r, http.StatusNotFound, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeStatus(w, r, http.StatusInternalServerError, "Internal error")
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(models.APIResponse{Success: false, Message: message}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode error response", "error", err)
	}
}
