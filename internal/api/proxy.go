package api

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/auth"
	httpmiddleware "github.com/wolfeidau/blogify/internal/http"
)

// UserIDHeader carries the verified session subject to the backend.
// Any value sent by the client is dropped.
const UserIDHeader = "X-Blogify-User-Id"

func newBackendProxy(backendURL string) (http.Handler, error) {
	if backendURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpmiddleware.WriteError(w, http.StatusBadGateway, "backend not configured")
		}), nil
	}

	target, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", backendURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			pr.Out.Header.Del(UserIDHeader)
			if state, ok := auth.SessionFromContext(pr.In.Context()); ok && state.IsAuthenticated() {
				pr.Out.Header.Set(UserIDHeader, state.Identity.ID.String())
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Backend request failed")
			httpmiddleware.WriteError(w, http.StatusBadGateway, "backend unavailable")
		},
	}, nil
}
