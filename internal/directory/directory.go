// Package directory resolves usernames to stable user identities.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"directchat/internal/content"
	"directchat/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const DefaultSearchLimit = 20

type userStore interface {
	UpsertUser(newID, username string, now int64) (models.User, error)
	GetUser(id string) (models.User, error)
	ListUsers() ([]models.User, error)
}

type Config struct {
	SearchLimit int
}

type Directory struct {
	store       userStore
	searchLimit int
	// Users are immutable, so a lookup never goes stale.
	cache geche.Geche[string, models.User]
	now   func() time.Time
}

func New(store userStore, config Config) *Directory {
	limit := config.SearchLimit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return &Directory{
		store:       store,
		searchLimit: limit,
		cache:       geche.NewMapCache[string, models.User](),
		now:         time.Now,
	}
}

// Login returns the user with the given username, registering it on first use.
// No credential is checked.
func (d *Directory) Login(ctx context.Context, username string) (models.User, error) {
	if err := content.ValidateUsername(username); err != nil {
		return models.User{}, err
	}
	user, err := d.store.UpsertUser(uuid.NewString(), username, d.now().UnixMilli())
	if err != nil {
		return models.User{}, fmt.Errorf("login %q: %w", username, err)
	}
	d.cache.Set(user.ID, user)
	slog.DebugContext(ctx, "user logged in", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Search returns up to the configured limit of users whose username contains
// query, case-insensitively, in registration order. The caller is never included.
func (d *Directory) Search(ctx context.Context, query, excludeUserID string) ([]models.User, error) {
	if excludeUserID == "" {
		return nil, fmt.Errorf("%w: current user id is required", models.ErrValidation)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}

	users, err := d.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	needle := strings.ToLower(query)
	matches := lo.Filter(users, func(u models.User, _ int) bool {
		return u.ID != excludeUserID && strings.Contains(strings.ToLower(u.Username), needle)
	})
	if len(matches) > d.searchLimit {
		matches = matches[:d.searchLimit]
	}
	return matches, nil
}

func (d *Directory) GetByID(ctx context.Context, id string) (models.User, error) {
	if id == "" {
		return models.User{}, fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	if user, err := d.cache.Get(id); err == nil {
		return user, nil
	}
	user, err := d.store.GetUser(id)
	if err != nil {
		return models.User{}, err
	}
	d.cache.Set(user.ID, user)
	return user, nil
}
