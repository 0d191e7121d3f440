package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/cmd/cli/internal/credentials"
	"github.com/wolfeidau/blogify/internal/models"
	"github.com/wolfeidau/blogify/internal/session"
)

// WhoamiCmd restores the stored session and prints the resolved identity.
type WhoamiCmd struct {
	FallbackTimeout time.Duration `help:"Give up waiting for the profile after this long" default:"3s"`
}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.newStore()
	if err != nil {
		return err
	}

	api, err := globals.newClient()
	if err != nil {
		return err
	}

	st := session.NewStore()
	unsubscribe := st.Subscribe(func(snap session.Snapshot) {
		log.Debug().Str("state", snap.State.String()).Bool("loading", snap.Loading).Msg("Session changed")
	})
	defer unsubscribe()

	provider := credentials.NewProvider(store, globals.Server)
	reconciler := session.NewReconciler(st, provider, api, session.WithFallbackTimeout(c.FallbackTimeout))
	reconciler.Start(ctx)
	defer reconciler.Stop()

	printState(globals, st.Get())
	return nil
}

func printState(globals *Globals, state models.SessionState) {
	out := globals.out()

	switch state.Kind {
	case models.StateAuthenticated:
		identity := state.Identity
		fmt.Fprintf(out, "Logged in as %s <%s>\n", identity.Name, identity.Email)
		fmt.Fprintf(out, "ID: %s\n", identity.ID)
		if identity.AvatarURL != nil {
			fmt.Fprintf(out, "Avatar: %s\n", *identity.AvatarURL)
		}
		if !identity.CreatedAt.IsZero() {
			fmt.Fprintf(out, "Member since: %s\n", identity.CreatedAt.Local().Format("2006-01-02"))
		}
	case models.StateAnonymous:
		fmt.Fprintln(out, "Not logged in.")
	default:
		fmt.Fprintln(out, "Session could not be resolved.")
	}
}
