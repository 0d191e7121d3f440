package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/cmd/cli/internal/credentials"
	"github.com/wolfeidau/blogify/internal/client"
	"golang.org/x/term"
)

// LoginCmd signs in with email and password and stores the session token.
type LoginCmd struct {
	Email    string `arg:"" help:"Account email address"`
	Password string `help:"Password (prompted when omitted)" env:"BLOGIFY_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.newStore()
	if err != nil {
		return err
	}

	cooldown, err := newCooldown(store)
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
		password, err = readPassword("Password: ")
		if err != nil {
			return err
		}
	}

	resp, err := api.Login(ctx, c.Email, password)
	if err != nil {
		var limited *client.RateLimitedError
		switch {
		case errors.Is(err, client.ErrInvalidCredentials):
			wait := recordFailure(store, cooldown)
			log.Debug().Dur("cooldown", wait).Msg("Login failed")
			return fmt.Errorf("invalid email or password, wait %s before retrying", wait)
		case errors.As(err, &limited):
			return fmt.Errorf("login rate limited by server, retry after %s", limited.RetryAfter)
		default:
			return fmt.Errorf("login failed: %w", err)
		}
	}

	provider := credentials.NewProvider(store, globals.Server)
	if _, err := provider.SignIn(resp.AccessToken); err != nil {
		return err
	}
	cooldown.Success()

	fmt.Fprintf(globals.out(), "Logged in as %s <%s>\n", resp.Name, resp.Email)
	fmt.Fprintf(globals.out(), "Session expires %s\n", resp.ExpiresAt.Local().Format("2006-01-02 15:04"))

	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(data), nil
	}

	// piped input
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
