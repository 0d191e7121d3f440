package commands

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/blogify/internal/gate"
	httpmiddleware "github.com/wolfeidau/blogify/internal/http"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// registrar mounts a group of routes on the mux.
type registrar interface {
	Register(mux *http.ServeMux)
}

type handlerConfig struct {
	Logger         zerolog.Logger
	Gate           *gate.Gate
	Routes         []registrar
	WebDir         string
	CORSOrigins    []string
	APIPrefix      string
	TrustedProxies httpmiddleware.TrustedProxies
	Tracing        bool
}

// newHandler builds the request chain:
// ClientIP → RequestLogger → Gate → (API: CORS | pages: CSRF) → mux.
func newHandler(cfg handlerConfig) http.Handler {
	mux := http.NewServeMux()
	for _, r := range cfg.Routes {
		r.Register(mux)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", newPageHandler(cfg.WebDir))

	apiHandler := withCORS(cfg.CORSOrigins, mux)
	pageHandler := csrf.New().Handler(mux)

	split := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API routes get CORS, HTML routes get CSRF
		if strings.HasPrefix(r.URL.Path, cfg.APIPrefix) {
			apiHandler.ServeHTTP(w, r)
			return
		}
		pageHandler.ServeHTTP(w, r)
	})

	var handler http.Handler = cfg.Gate.Middleware(split)
	handler = httpmiddleware.RequestLogger(cfg.Logger)(handler)
	handler = httpmiddleware.ClientIPMiddleware(cfg.TrustedProxies)(handler)

	if cfg.Tracing {
		handler = otelhttp.NewHandler(handler, "blogify")
	}

	return handler
}

// newPageHandler serves the built front end from dir. Paths that are not files
// are client side routes and get index.html.
func newPageHandler(dir string) http.Handler {
	if dir == "" {
		return http.NotFoundHandler()
	}

	root := os.DirFS(dir)
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			files.ServeHTTP(w, r)
			return
		}

		if info, err := fs.Stat(root, name); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}

		http.ServeFileFS(w, r, root, "index.html")
	})
}

// withCORS allows browser calls to the API from the configured origins with cookies.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
