package gate

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/wolfeidau/blogify/internal/ratelimit"
)

// Mutation is a method and API path prefix that requires a session.
type Mutation struct {
	Method string
	Prefix string
}

// Config describes the routes the gate protects.
type Config struct {
	// ProtectedPages are page paths that need a session. Entries may be
	// path.Match patterns, so "/posts/*/edit" covers every post's edit page.
	ProtectedPages []string

	// Mutations are API calls rejected with 401 when anonymous.
	Mutations []Mutation

	LoginPath   string
	SignupPath  string
	LandingPath string

	APIPrefix      string
	LoginEndpoint  string
	SignupEndpoint string

	Rules ratelimit.Rules
}

// DefaultConfig returns the blog's route layout with the default rate limits.
func DefaultConfig() Config {
	mutations := make([]Mutation, 0, 6)
	for _, prefix := range []string{"/api/posts", "/api/users"} {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			mutations = append(mutations, Mutation{Method: method, Prefix: prefix})
		}
	}

	return Config{
		ProtectedPages: []string{"/profile", "/posts/new", "/posts/*/edit"},
		Mutations:      mutations,
		LoginPath:      "/login",
		SignupPath:     "/signup",
		LandingPath:    "/feed",
		APIPrefix:      "/api/",
		LoginEndpoint:  "/api/auth/login",
		SignupEndpoint: "/api/auth/signup",
		Rules:          ratelimit.DefaultRules(),
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	for _, p := range c.ProtectedPages {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("protected page %q must start with /", p)
		}
		if _, err := path.Match(p, "/"); err != nil {
			return fmt.Errorf("protected page %q: %w", p, err)
		}
	}

	for _, m := range c.Mutations {
		if m.Method == "" || !strings.HasPrefix(m.Prefix, "/") {
			return fmt.Errorf("invalid mutation %s %q", m.Method, m.Prefix)
		}
	}

	if c.LoginPath == "" || c.LandingPath == "" {
		return errors.New("login and landing paths are required")
	}

	if !strings.HasPrefix(c.APIPrefix, "/") {
		return errors.New("api prefix must start with /")
	}

	return c.Rules.Validate()
}

// isProtectedPage reports whether p needs a session.
func (c Config) isProtectedPage(p string) bool {
	p = trimTrailingSlash(p)
	for _, pattern := range c.ProtectedPages {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// isAuthPage reports whether p is the login or signup page.
func (c Config) isAuthPage(p string) bool {
	p = trimTrailingSlash(p)
	return p == c.LoginPath || (c.SignupPath != "" && p == c.SignupPath)
}

func (c Config) isAPI(p string) bool {
	return strings.HasPrefix(p, c.APIPrefix) || p == strings.TrimSuffix(c.APIPrefix, "/")
}

// isMutation reports whether method and p match a protected mutation.
// A prefix matches itself and anything below it, not siblings sharing its text.
func (c Config) isMutation(method, p string) bool {
	for _, m := range c.Mutations {
		if m.Method != method {
			continue
		}
		if p == m.Prefix || strings.HasPrefix(p, m.Prefix+"/") {
			return true
		}
	}
	return false
}

// ruleFor picks the rate limit rule applied to an API path.
func (c Config) ruleFor(p string) ratelimit.Rule {
	switch trimTrailingSlash(p) {
	case c.LoginEndpoint:
		return c.Rules.Login
	case c.SignupEndpoint:
		return c.Rules.Signup
	default:
		return c.Rules.API
	}
}

func trimTrailingSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}
