package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/blogify/cmd/cli/internal/credentials"
)

// LogoutCmd removes the stored session token.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.newStore()
	if err != nil {
		return err
	}

	provider := credentials.NewProvider(store, globals.Server)
	if err := provider.SignOut(); err != nil {
		if errors.Is(err, credentials.ErrNotLoggedIn) {
			fmt.Fprintln(globals.out(), "Not logged in.")
			return nil
		}
		return fmt.Errorf("failed to log out: %w", err)
	}

	fmt.Fprintln(globals.out(), "Logged out.")
	return nil
}
