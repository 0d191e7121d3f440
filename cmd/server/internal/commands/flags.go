package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/blogify/internal/gate"
	"github.com/wolfeidau/blogify/internal/ratelimit"
	postgresstore "github.com/wolfeidau/blogify/internal/store/postgres"
)

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString     string        `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`
	ConnectTimeout time.Duration `help:"timeout for establishing connections" default:"10s"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"BLOGIFY_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", s.MinConns, s.MaxConns)
	}
	return nil
}

func (s *PostgresStoreFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
		ConnectTimeout:  s.ConnectTimeout,
		AutoMigrate:     s.AutoMigrate,
	}
}

// RateLimitFlags configures the edge rate limiter. Per-rule flags override
// the rules file, which overrides the built in defaults.
type RateLimitFlags struct {
	RulesFile     string        `help:"YAML file with login, signup and api rules" type:"existingfile" env:"BLOGIFY_RATELIMIT_RULES_FILE"`
	SweepInterval time.Duration `help:"how often expired counters are pruned" default:"1m" env:"BLOGIFY_RATELIMIT_SWEEP_INTERVAL"`

	LoginLimit   int           `help:"login requests allowed per window" env:"BLOGIFY_RATELIMIT_LOGIN_LIMIT"`
	LoginWindow  time.Duration `help:"login window" env:"BLOGIFY_RATELIMIT_LOGIN_WINDOW"`
	SignupLimit  int           `help:"signup requests allowed per window" env:"BLOGIFY_RATELIMIT_SIGNUP_LIMIT"`
	SignupWindow time.Duration `help:"signup window" env:"BLOGIFY_RATELIMIT_SIGNUP_WINDOW"`
	APILimit     int           `help:"other API requests allowed per window" env:"BLOGIFY_RATELIMIT_API_LIMIT"`
	APIWindow    time.Duration `help:"other API window" env:"BLOGIFY_RATELIMIT_API_WINDOW"`
}

// Rules resolves the effective rules.
func (f *RateLimitFlags) Rules() (ratelimit.Rules, error) {
	rules := ratelimit.DefaultRules()
	if f.RulesFile != "" {
		loaded, err := ratelimit.LoadRules(f.RulesFile)
		if err != nil {
			return rules, err
		}
		rules = loaded
	}

	override(&rules.Login, f.LoginLimit, f.LoginWindow)
	override(&rules.Signup, f.SignupLimit, f.SignupWindow)
	override(&rules.API, f.APILimit, f.APIWindow)

	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("invalid rate limit rules: %w", err)
	}
	return rules, nil
}

func override(rule *ratelimit.Rule, limit int, window time.Duration) {
	if limit > 0 {
		rule.Limit = limit
	}
	if window > 0 {
		rule.Window = window
	}
}

// GateFlags configures which routes need a session.
type GateFlags struct {
	ProtectedPages []string `help:"page paths (path.Match patterns) that require a session" default:"/profile,/posts/new,/posts/*/edit" env:"BLOGIFY_PROTECTED_PAGES"`
	LandingPath    string   `help:"where logged in users are sent from login and signup" default:"/feed" env:"BLOGIFY_LANDING_PATH"`
	LoginPath      string   `help:"login page path" default:"/login" env:"BLOGIFY_LOGIN_PATH"`
	SignupPath     string   `help:"signup page path" default:"/signup" env:"BLOGIFY_SIGNUP_PATH"`
}

func (f *GateFlags) config(rules ratelimit.Rules) gate.Config {
	cfg := gate.DefaultConfig()
	cfg.ProtectedPages = f.ProtectedPages
	cfg.LandingPath = f.LandingPath
	cfg.LoginPath = f.LoginPath
	cfg.SignupPath = f.SignupPath
	cfg.Rules = rules
	return cfg
}

// GithubFlags enables GitHub sign-in when the client ID is set.
type GithubFlags struct {
	ClientID     string `help:"GitHub client ID" default:"" env:"BLOGIFY_GITHUB_CLIENT_ID"`
	ClientSecret string `help:"GitHub client secret" default:"" env:"BLOGIFY_GITHUB_CLIENT_SECRET"`
	CallbackURL  string `help:"GitHub callback URL" default:"" env:"BLOGIFY_GITHUB_CALLBACK_URL"`
}

func (f *GithubFlags) enabled() bool {
	return f.ClientID != ""
}

func (f *GithubFlags) validate() error {
	if f.ClientSecret == "" || f.CallbackURL == "" {
		return errors.New("GitHub client secret and callback URL are required when the client ID is set")
	}
	return nil
}
