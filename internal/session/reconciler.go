package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/models"
	"github.com/wolfeidau/blogify/internal/store"
)

// DefaultFallbackTimeout bounds how long loading may stay true after Initialize.
const DefaultFallbackTimeout = 3 * time.Second

// Reconciler turns the provider's startup query and its racing event stream
// into a single SessionState in the Store.
//
// Every resolution attempt takes a new generation number and may only write
// if no newer attempt has started since, so a slow profile fetch can never
// overwrite the outcome of a later sign-out. The provider's "initial"
// broadcast is ignored because Initialize already answers the same question.
type Reconciler struct {
	store    *Store
	provider Provider
	profiles ProfileStore

	fallbackTimeout time.Duration

	mu          sync.Mutex
	generation  uint64
	fallback    *time.Timer
	unsubscribe func()
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithFallbackTimeout overrides DefaultFallbackTimeout.
func WithFallbackTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.fallbackTimeout = d
		}
	}
}

// NewReconciler creates a reconciler writing to st.
func NewReconciler(st *Store, provider Provider, profiles ProfileStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:           st,
		provider:        provider,
		profiles:        profiles,
		fallbackTimeout: DefaultFallbackTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to provider events and then runs Initialize.
func (r *Reconciler) Start(ctx context.Context) {
	// Subscribe may deliver the initial broadcast synchronously, so r.mu must not be held here.
	unsubscribe := r.provider.Subscribe(func(ev Event) {
		r.OnAuthEvent(ctx, ev)
	})

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	r.Initialize(ctx)
}

// Stop unsubscribes from the provider and cancels the fallback timer.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	if r.fallback != nil {
		r.fallback.Stop()
		r.fallback = nil
	}
}

// Initialize restores the session available at startup.
// Loading always ends: either through a resolution or through the fallback timer.
func (r *Reconciler) Initialize(ctx context.Context) {
	gen := r.begin()
	r.armFallback()

	sess, err := r.provider.CurrentSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to restore session, continuing anonymous")
		r.resolve(gen, models.Anonymous())
		return
	}

	if sess == nil {
		log.Debug().Msg("No session to restore")
		r.resolve(gen, models.Anonymous())
		return
	}

	r.resolve(gen, models.Authenticated(r.lookup(ctx, sess)))
}

// OnAuthEvent applies a provider notification.
func (r *Reconciler) OnAuthEvent(ctx context.Context, ev Event) {
	log.Debug().Str("event", string(ev.Kind)).Bool("session", ev.Session != nil).Msg("Auth event")

	switch ev.Kind {
	case EventInitial:
		r.ignoreDuplicateInitial(ev)

	case EventSignedOut:
		r.resolve(r.begin(), models.Anonymous())

	case EventSignedIn, EventTokenRefreshed:
		gen := r.begin()
		if ev.Session == nil {
			r.resolve(gen, models.Anonymous())
			return
		}
		r.resolve(gen, models.Authenticated(r.lookup(ctx, ev.Session)))

	default:
		log.Warn().Str("event", string(ev.Kind)).Msg("Ignoring unknown auth event")
	}
}

// Login records an identity obtained by an explicit user action.
func (r *Reconciler) Login(identity models.Identity) {
	r.resolve(r.begin(), models.Authenticated(identity))
}

// Logout clears the identity after an explicit user action.
func (r *Reconciler) Logout() {
	r.resolve(r.begin(), models.Anonymous())
}

// ignoreDuplicateInitial drops the provider's startup broadcast. Acting on it
// as well as on Initialize races the two and can briefly downgrade an
// authenticated session to anonymous.
func (r *Reconciler) ignoreDuplicateInitial(ev Event) {
	log.Debug().Bool("session", ev.Session != nil).Msg("Ignoring initial auth event, handled by Initialize")
}

// lookup resolves the profile for a session, degrading to an identity built from the session claims.
func (r *Reconciler) lookup(ctx context.Context, sess *models.Session) models.Identity {
	identity, err := r.profiles.GetProfile(ctx, sess.Subject)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		log.Debug().Str("user_id", sess.Subject.String()).Msg("Profile not found, using session claims")
	case err != nil:
		log.Warn().Err(err).Str("user_id", sess.Subject.String()).Msg("Profile lookup failed, using session claims")
	case identity == nil:
		log.Debug().Str("user_id", sess.Subject.String()).Msg("Empty profile, using session claims")
	default:
		return *identity
	}

	return models.FallbackIdentity(sess)
}

func (r *Reconciler) begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	return r.generation
}

// resolve writes state if gen is still the latest attempt. The generation check
// runs inside the store write, lock order is store then r.mu.
func (r *Reconciler) resolve(gen uint64, state models.SessionState) {
	current := false
	r.store.ResolveIf(func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()

		if gen != r.generation {
			return false
		}
		current = true
		if r.fallback != nil {
			r.fallback.Stop()
			r.fallback = nil
		}
		return true
	}, state)

	if !current {
		log.Debug().Uint64("generation", gen).Msg("Discarding stale session resolution")
		return
	}
	log.Debug().Str("state", state.String()).Msg("Session resolved")
}

func (r *Reconciler) armFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback != nil {
		r.fallback.Stop()
	}
	r.fallback = time.AfterFunc(r.fallbackTimeout, func() {
		if r.store.Loading() {
			log.Warn().Dur("timeout", r.fallbackTimeout).Msg("Session not resolved in time, clearing loading")
			r.store.SetLoading(false)
		}
	})
}
