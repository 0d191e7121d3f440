package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/blogify/internal/client"
	"github.com/wolfeidau/blogify/internal/store"
)

// SignupCmd creates an account. It does not log in.
type SignupCmd struct {
	Name     string `arg:"" help:"Display name"`
	Email    string `arg:"" help:"Account email address"`
	Password string `help:"Password (prompted when omitted)" env:"BLOGIFY_PASSWORD"`
}

func (c *SignupCmd) Run(ctx context.Context, globals *Globals) error {
	credStore, err := globals.newStore()
	if err != nil {
		return err
	}

	cooldown, err := newCooldown(credStore)
	if err != nil {
		return err
	}

	if wait := cooldown.Remaining(time.Now()); wait > 0 {
		return fmt.Errorf("too many failed attempts, try again in %s", wait.Round(100*time.Millisecond))
	}

	api, err := globals.newClient()
	if err != nil {
		return err
	}

	password := c.Password
	if password == "" {
		password, err = readPassword("Choose a password: ")
		if err != nil {
			return err
		}
	}

	identity, err := api.Signup(ctx, c.Name, c.Email, password)
	if err != nil {
		var (
			apiErr  *client.APIError
			limited *client.RateLimitedError
		)
		switch {
		case errors.Is(err, store.ErrUserAlreadyExists):
			wait := recordFailure(credStore, cooldown)
			return fmt.Errorf("an account with this email already exists, wait %s before retrying", wait)
		case errors.As(err, &apiErr) && apiErr.StatusCode < 500:
			wait := recordFailure(credStore, cooldown)
			return fmt.Errorf("%s, wait %s before retrying", apiErr.Message, wait)
		case errors.As(err, &limited):
			return fmt.Errorf("signup rate limited by server, retry after %s", limited.RetryAfter)
		default:
			return fmt.Errorf("signup failed: %w", err)
		}
	}

	recordSuccess(credStore, cooldown)

	fmt.Fprintf(globals.out(), "Created account for %s <%s>\n", identity.Name, identity.Email)
	fmt.Fprintf(globals.out(), "Run: blogify login %s\n", identity.Email)

	return nil
}
