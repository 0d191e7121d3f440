package gate

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/auth"
	httpmiddleware "github.com/wolfeidau/blogify/internal/http"
	"github.com/wolfeidau/blogify/internal/ratelimit"
	"github.com/wolfeidau/blogify/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	msgUnauthorized    = "Unauthorized"
	msgTooManyRequests = "Too many requests. Please try again later."
)

// Gate decisions recorded in telemetry.
const (
	decisionPass          = "pass"
	decisionLoginRedirect = "login_redirect"
	decisionHomeRedirect  = "landing_redirect"
	decisionUnauthorized  = "unauthorized"
	decisionRateLimited   = "rate_limited"
)

// Gate is the edge middleware that checks sessions and rate limits before a
// request reaches page or API handlers. It keeps no per-request state; all
// counters live in the limiter.
type Gate struct {
	verifier auth.SessionVerifier
	limiter  *ratelimit.Limiter
	cfg      Config
}

// New creates a gate. The limiter's background sweep is owned by the caller.
func New(verifier auth.SessionVerifier, limiter *ratelimit.Limiter, cfg Config) (*Gate, error) {
	if verifier == nil {
		return nil, fmt.Errorf("session verifier is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate config: %w", err)
	}

	return &Gate{verifier: verifier, limiter: limiter, cfg: cfg}, nil
}

// Middleware wraps next with the gate. The verified session state is stored
// in the request context, see auth.SessionFromContext.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		state := g.verifier.Verify(ctx, r.Cookies())
		r = r.WithContext(auth.WithSession(ctx, state))

		if g.cfg.isAPI(r.URL.Path) {
			g.serveAPI(w, r, next, state.IsAuthenticated())
			return
		}

		g.servePage(w, r, next, state.IsAuthenticated())
	})
}

func (g *Gate) servePage(w http.ResponseWriter, r *http.Request, next http.Handler, authenticated bool) {
	p := r.URL.Path

	if !authenticated && g.cfg.isProtectedPage(p) {
		target := g.cfg.LoginPath + "?returnTo=" + escapeReturnTo(p)
		log.Debug().Str("path", p).Msg("Anonymous request for protected page, redirecting to login")
		g.record(r, decisionLoginRedirect)
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	if authenticated && g.cfg.isAuthPage(p) {
		log.Debug().Str("path", p).Msg("Authenticated request for auth page, redirecting to landing")
		g.record(r, decisionHomeRedirect)
		http.Redirect(w, r, g.cfg.LandingPath, http.StatusFound)
		return
	}

	g.record(r, decisionPass)
	next.ServeHTTP(w, r)
}

// escapeReturnTo percent-encodes p like encodeURIComponent, so a space is %20
// rather than +.
func escapeReturnTo(p string) string {
	return strings.ReplaceAll(url.QueryEscape(p), "+", "%20")
}

// serveAPI applies the rate limit and the mutation check. Both must pass, the
// limit is counted first so rejected calls still consume quota.
func (g *Gate) serveAPI(w http.ResponseWriter, r *http.Request, next http.Handler, authenticated bool) {
	ctx := r.Context()
	p := r.URL.Path
	rule := g.cfg.ruleFor(p)

	key := httpmiddleware.ClientIPFromContext(ctx) + ":" + p
	res := g.limiter.CheckRule(key, rule)

	m := telemetry.GetMetrics()
	m.RateLimitChecksTotal.Add(ctx, 1)

	setQuotaHeaders(w.Header(), res)

	if !res.Allowed {
		retryAfter := int(res.RetryAfter(g.limiter.Now()).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))

		log.Debug().Str("key", key).Int("retry_after", retryAfter).Msg("Rate limit exceeded")
		m.RateLimitDeniedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", p)))
		g.record(r, decisionRateLimited)
		httpmiddleware.WriteError(w, http.StatusTooManyRequests, msgTooManyRequests)
		return
	}

	if !authenticated && g.cfg.isMutation(r.Method, p) {
		log.Debug().Str("method", r.Method).Str("path", p).Msg("Anonymous API mutation rejected")
		g.record(r, decisionUnauthorized)
		httpmiddleware.WriteError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	g.record(r, decisionPass)
	next.ServeHTTP(w, r)
}

func (g *Gate) record(r *http.Request, decision string) {
	telemetry.GetMetrics().GateDecisionsTotal.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("decision", decision),
	))
}

func setQuotaHeaders(h http.Header, res ratelimit.Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
