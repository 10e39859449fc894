// Package client is a typed HTTP client for the directchat JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"directchat/internal/models"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Login(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodPost, "/api/auth", nil, models.LoginRequest{Username: username}, &user)
	return user, err
}

func (c *Client) SearchUsers(ctx context.Context, query, excludeUserID string) ([]models.User, error) {
	var users []models.User
	params := url.Values{"query": {query}, "currentUserId": {excludeUserID}}
	err := c.do(ctx, http.MethodGet, "/api/search", params, nil, &users)
	return users, err
}

func (c *Client) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(id), nil, nil, &user)
	return user, err
}

func (c *Client) ListChats(ctx context.Context, userID string) ([]models.PopulatedChat, error) {
	var chats []models.PopulatedChat
	err := c.do(ctx, http.MethodGet, "/api/chats", url.Values{"userId": {userID}}, nil, &chats)
	return chats, err
}

func (c *Client) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var messages []models.Message
	err := c.do(ctx, http.MethodGet, "/api/messages", url.Values{"chatId": {chatID}}, nil, &messages)
	return messages, err
}

// SendMessage addresses a message to a user; the server resolves or creates their chat.
func (c *Client) SendMessage(ctx context.Context, senderID, recipientID, content string) (models.Message, error) {
	var msg models.Message
	req := models.SendMessageRequest{SenderID: senderID, RecipientID: recipientID, Content: content}
	err := c.do(ctx, http.MethodPost, "/api/messages", nil, req, &msg)
	return msg, err
}

func (c *Client) AppendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, error) {
	var msg models.Message
	req := models.AppendMessageRequest{SenderID: senderID, Content: content}
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/messages", nil, req, &msg)
	return msg, err
}

func (c *Client) Health(ctx context.Context) error {
	var resp models.APIResponse
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil, &resp)
}

// do performs one JSON round trip. Error responses are mapped onto
// models.ErrValidation, models.ErrNotFound or models.ErrTransient.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", models.ErrTransient, method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		var apiErr models.APIResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return statusError(resp.StatusCode, apiErr.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", models.ErrTransient, err)
	}
	return nil
}

func statusError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", models.ErrValidation, strings.TrimPrefix(message, models.ErrValidation.Error()+": "))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, message)
	default:
		return fmt.Errorf("%w: status %d: %s", models.ErrTransient, status, message)
	}
}
