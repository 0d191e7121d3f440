package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/auth"
	"github.com/wolfeidau/blogify/internal/models"
	"github.com/wolfeidau/blogify/internal/session"
)

var _ session.Provider = (*Provider)(nil)

// Provider exposes the session file as an identity provider.
//
// Like hosted identity SDKs it replays the current session to every new
// subscriber as an EventInitial, and broadcasts signed_in and signed_out
// when SignIn or SignOut change the file.
type Provider struct {
	store  *Store
	server string
	now    func() time.Time

	mu          sync.Mutex
	subscribers map[int]func(session.Event)
	nextID      int
}

// NewProvider creates a provider for tokens issued by server.
func NewProvider(store *Store, server string) *Provider {
	return &Provider{
		store:       store,
		server:      server,
		now:         time.Now,
		subscribers: make(map[int]func(session.Event)),
	}
}

// CurrentSession returns the stored session, or nil when there is none or it
// has expired.
func (p *Provider) CurrentSession(ctx context.Context) (*models.Session, error) {
	token, err := p.store.Token(p.server)
	if err != nil {
		if errors.Is(err, ErrNotLoggedIn) {
			return nil, nil
		}
		return nil, err
	}

	sess, err := auth.ParseUnverified(token)
	if err != nil {
		return nil, fmt.Errorf("stored session token: %w", err)
	}

	if sess.IsExpired(p.now()) {
		log.Debug().Time("expires_at", sess.ExpiresAt).Msg("Stored session has expired")
		return nil, nil
	}

	return sess, nil
}

// Subscribe registers fn and delivers the current session to it as an
// EventInitial before returning.
func (p *Provider) Subscribe(fn func(session.Event)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn
	p.mu.Unlock()

	sess, err := p.CurrentSession(context.Background())
	if err != nil {
		log.Debug().Err(err).Msg("Initial session unavailable")
	}
	fn(session.Event{Kind: session.EventInitial, Session: sess})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// SignIn stores token and notifies subscribers.
func (p *Provider) SignIn(token string) (*models.Session, error) {
	sess, err := auth.ParseUnverified(token)
	if err != nil {
		return nil, fmt.Errorf("server returned an unreadable session token: %w", err)
	}

	if err := p.store.SaveToken(p.server, token); err != nil {
		return nil, err
	}

	p.broadcast(session.Event{Kind: session.EventSignedIn, Session: sess})

	return sess, nil
}

// SignOut removes the stored token and notifies subscribers.
func (p *Provider) SignOut() error {
	if err := p.store.ClearToken(); err != nil {
		return err
	}

	p.broadcast(session.Event{Kind: session.EventSignedOut})

	return nil
}

func (p *Provider) broadcast(ev session.Event) {
	p.mu.Lock()
	fns := make([]func(session.Event), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
