package commands

import (
	"context"
	"fmt"

	"directchat/internal/client"
	"directchat/internal/config"
)

// Login signs in (or registers) username against a running server and prints
// the resulting identity.
func Login(ctx context.Context, username string, cfg *config.Config) error {
	c := client.New(cfg.BaseURL, nil)

	user, err := c.Login(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to log in: %w. Is the server running?", err)
	}

	fmt.Printf("\nLogged in.\n")
	fmt.Printf("Username:  %s\n", user.Username)
	fmt.Printf("User ID:   %s\n\n", user.ID)
	return nil
}
