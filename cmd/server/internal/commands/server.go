package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/api"
	"github.com/wolfeidau/blogify/internal/auth"
	"github.com/wolfeidau/blogify/internal/gate"
	httpmiddleware "github.com/wolfeidau/blogify/internal/http"
	"github.com/wolfeidau/blogify/internal/logger"
	"github.com/wolfeidau/blogify/internal/login"
	"github.com/wolfeidau/blogify/internal/ratelimit"
	"github.com/wolfeidau/blogify/internal/store"
	memorystore "github.com/wolfeidau/blogify/internal/store/memory"
	postgresstore "github.com/wolfeidau/blogify/internal/store/postgres"
	"github.com/wolfeidau/blogify/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8443" env:"BLOGIFY_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"BLOGIFY_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"BLOGIFY_TLS_KEY"`

	// Session configuration
	SessionSecret string        `help:"HMAC secret for session cookies, at least 32 bytes" env:"BLOGIFY_SESSION_SECRET"`
	SessionTTL    time.Duration `help:"session TTL" default:"168h" env:"BLOGIFY_SESSION_TTL"`
	SecureCookies bool          `help:"set the Secure attribute on cookies" default:"true" negatable:"" env:"BLOGIFY_SECURE_COOKIES"`

	// Routing
	Gate       GateFlags      `embed:"" prefix:"gate-"`
	RateLimit  RateLimitFlags `embed:"" prefix:"ratelimit-"`
	BackendURL string         `help:"backend API that receives every other /api/ request" default:"" env:"BLOGIFY_BACKEND_URL"`
	WebDir     string         `help:"directory with the built front end" default:"" env:"BLOGIFY_WEB_DIR"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"BLOGIFY_CORS_ORIGINS"`

	// Proxies whose X-Forwarded-For and X-Real-IP headers are honored
	TrustedProxies []string `help:"CIDRs or addresses of reverse proxies allowed to set the client IP" env:"BLOGIFY_TRUSTED_PROXIES"`

	// GitHub OAuth configuration
	Github GithubFlags `embed:"" prefix:"github-"`

	// Telemetry
	Tracing          bool    `help:"enable tracing and metrics export" default:"false" env:"BLOGIFY_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces kept" default:"1" env:"BLOGIFY_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"BLOGIFY_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

// Validate is called by kong after parsing.
func (c *ServerCmd) Validate() error {
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 bytes (--session-secret or BLOGIFY_SESSION_SECRET)")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be greater than 0")
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}
	if _, err := httpmiddleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return err
	}
	if c.StoreType == "postgres" {
		if err := c.PostgresStore.Validate(); err != nil {
			return err
		}
	}
	if c.Github.enabled() {
		if err := c.Github.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Float64("sample_ratio", c.TraceSampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "blogify-server",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	users, closeStore, err := c.openUserStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rules, err := c.RateLimit.Rules()
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.WithSweepInterval(c.RateLimit.SweepInterval))
	limiter.Start(ctx)
	defer limiter.Stop()

	log.Info().
		Int("login_limit", rules.Login.Limit).
		Dur("login_window", rules.Login.Window).
		Int("signup_limit", rules.Signup.Limit).
		Dur("signup_window", rules.Signup.Window).
		Int("api_limit", rules.API.Limit).
		Dur("api_window", rules.API.Window).
		Msg("Rate limits configured")

	sessions, err := auth.NewCookieSessions([]byte(c.SessionSecret), auth.WithSecureCookies(c.SecureCookies))
	if err != nil {
		return fmt.Errorf("failed to create session codec: %w", err)
	}

	edge, err := gate.New(sessions, limiter, c.Gate.config(rules))
	if err != nil {
		return fmt.Errorf("failed to create gate: %w", err)
	}

	loginHandler, err := login.NewHandler(users, sessions, c.SessionTTL)
	if err != nil {
		return fmt.Errorf("failed to create login handler: %w", err)
	}

	apiHandler, err := api.NewHandler(users, c.BackendURL)
	if err != nil {
		return fmt.Errorf("failed to create API handler: %w", err)
	}
	if c.BackendURL == "" {
		log.Warn().Msg("No backend URL configured, unknown /api/ routes will return 502")
	}

	routes := []registrar{loginHandler, apiHandler}

	if c.Github.enabled() {
		gh, err := login.NewGithub(c.Github.ClientID, c.Github.ClientSecret, c.Github.CallbackURL, users, sessions, c.SessionTTL, c.Gate.LandingPath)
		if err != nil {
			return fmt.Errorf("failed to initialize GitHub OAuth: %w", err)
		}
		routes = append(routes, gh)
		log.Info().Msg("GitHub sign-in enabled")
	}

	trustedProxies, err := httpmiddleware.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return err
	}
	if len(trustedProxies) == 0 {
		log.Info().Msg("No trusted proxies configured, rate limits key on the peer address")
	}

	if c.WebDir == "" {
		log.Warn().Msg("No web directory configured, pages will return 404")
	}

	handler := newHandler(handlerConfig{
		Logger:         log,
		Gate:           edge,
		Routes:         routes,
		WebDir:         c.WebDir,
		CORSOrigins:    c.CORSOrigins,
		APIPrefix:      gate.DefaultConfig().APIPrefix,
		TrustedProxies: trustedProxies,
		Tracing:        c.Tracing,
	})

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" {
			log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		log.Warn().Str("addr", c.Listen).Msg("Starting HTTP server without TLS")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (c *ServerCmd) openUserStore(ctx context.Context, log zerolog.Logger) (store.UserStore, func(), error) {
	switch c.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, c.PostgresStore.poolConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		log.Info().Bool("auto_migrate", c.PostgresStore.AutoMigrate).Msg("Using PostgreSQL user store")
		return postgresstore.NewUserStore(pool), pool.Close, nil

	default:
		log.Info().Msg("Using in-memory user store")
		return memorystore.NewUserStore(), func() {}, nil
	}
}
