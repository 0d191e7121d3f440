package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/blogify/cmd/cli/internal/credentials"
	"github.com/wolfeidau/blogify/internal/client"
	"github.com/wolfeidau/blogify/internal/session"
)

// Login cooldown after consecutive failures: 1s, 2s, 4s ... capped at 30s.
const (
	cooldownBase = time.Second
	cooldownMax  = 30 * time.Second
)

type Globals struct {
	Debug     bool
	Version   string
	Server    string
	Timeout   time.Duration
	ConfigDir string
	CacheDir  string

	// Out receives command output, defaults to stdout.
	Out io.Writer
}

func (g *Globals) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) newClient() (*client.Client, error) {
	cfg := client.DefaultConfig()
	if g.Server != "" {
		cfg.ServerURL = g.Server
	}
	if g.Timeout > 0 {
		cfg.Timeout = g.Timeout
	}
	cfg.CacheDir = g.CacheDir

	c, err := client.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

func (g *Globals) newStore() (*credentials.Store, error) {
	store, err := credentials.NewStore(g.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	return store, nil
}

// newCooldown restores the persisted failure count into a Cooldown.
func newCooldown(store *credentials.Store) (*session.Cooldown, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, err
	}

	cooldown := session.NewCooldown(cooldownBase, cooldownMax)
	cooldown.Restore(creds.Failures, creds.LastFailure)
	return cooldown, nil
}

// recordFailure persists a failed attempt and returns the wait before the next one.
func recordFailure(store *credentials.Store, cooldown *session.Cooldown) time.Duration {
	wait := cooldown.Failure()
	failures, last := cooldown.Failures()
	if err := store.SaveFailures(failures, last); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save login failures: %v\n", err)
	}
	return wait
}

// recordSuccess resets the persisted failure count.
func recordSuccess(store *credentials.Store, cooldown *session.Cooldown) {
	cooldown.Success()
	if err := store.SaveFailures(0, time.Time{}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to reset login failures: %v\n", err)
	}
}
