package directory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"directchat/internal/models"
	"directchat/internal/storage"

	"github.com/stretchr/testify/require"
)

func newDirectory(t *testing.T, limit int) *Directory {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, Config{SearchLimit: limit})
}

func TestDirectory_Login(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, 0)

	alice, err := d.Login(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, alice.ID)
	require.Equal(t, "alice", alice.Username)

	again, err := d.Login(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, alice, again)

	other, err := d.Login(ctx, "ALICE")
	require.NoError(t, err)
	require.NotEqual(t, alice.ID, other.ID)

	_, err = d.Login(ctx, "   ")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestDirectory_ConcurrentLogin(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, 0)

	const workers = 10
	users := make([]models.User, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Go(func() {
			u, err := d.Login(ctx, "dave")
			if err != nil {
				t.Errorf("Login failed: %v", err)
				return
			}
			users[i] = u
		})
	}
	wg.Wait()

	for _, u := range users {
		require.Equal(t, users[0].ID, u.ID)
	}
	found, err := d.Search(ctx, "dave", "someone-else")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestDirectory_Search(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, 3)

	alice, err := d.Login(ctx, "alice")
	require.NoError(t, err)

	// bob does not exist yet
	found, err := d.Search(ctx, "bob", alice.ID)
	require.NoError(t, err)
	require.Empty(t, found)

	bob, err := d.Login(ctx, "bob")
	require.NoError(t, err)

	found, err = d.Search(ctx, "BO", alice.ID)
	require.NoError(t, err)
	require.Equal(t, []models.User{bob}, found)

	// Self is excluded
	found, err = d.Search(ctx, "alice", alice.ID)
	require.NoError(t, err)
	require.Empty(t, found)

	// Blank query returns nothing
	found, err = d.Search(ctx, "  ", alice.ID)
	require.NoError(t, err)
	require.Empty(t, found)

	_, err = d.Search(ctx, "bob", "")
	require.ErrorIs(t, err, models.ErrValidation)

	// Results are capped and keep registration order
	var names []string
	for i := range 5 {
		u, err := d.Login(ctx, fmt.Sprintf("robot-%d", i))
		require.NoError(t, err)
		names = append(names, u.Username)
	}
	found, err = d.Search(ctx, "robot", alice.ID)
	require.NoError(t, err)
	require.Len(t, found, 3)
	for i, u := range found {
		require.Equal(t, names[i], u.Username)
	}
}

func TestDirectory_GetByID(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, 0)

	alice, err := d.Login(ctx, "alice")
	require.NoError(t, err)

	got, err := d.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, alice, got)

	_, err = d.GetByID(ctx, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = d.GetByID(ctx, "")
	require.ErrorIs(t, err, models.ErrValidation)
}
