package gate

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/blogify/internal/ratelimit"
)

func TestConfig_isProtectedPage(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		path string
		want bool
	}{
		{"/profile", true},
		{"/profile/", true},
		{"/posts/new", true},
		{"/posts/42/edit", true},
		{"/posts/42/edit/", true},
		{"/posts/42", false},
		{"/posts/a/b/edit", false},
		{"/profiles", false},
		{"/", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, cfg.isProtectedPage(tt.path))
		})
	}
}

func TestConfig_isMutation(t *testing.T) {
	cfg := DefaultConfig()

	require.True(t, cfg.isMutation(http.MethodPost, "/api/posts"))
	require.True(t, cfg.isMutation(http.MethodDelete, "/api/users/1"))
	require.False(t, cfg.isMutation(http.MethodGet, "/api/posts"))
	require.False(t, cfg.isMutation(http.MethodPatch, "/api/posts/1"))
	require.False(t, cfg.isMutation(http.MethodPost, "/api/postsx"))
	require.False(t, cfg.isMutation(http.MethodPost, "/api/auth/login"))
}

func TestConfig_ruleFor(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, ratelimit.Rule{Limit: 5, Window: time.Minute}, cfg.ruleFor("/api/auth/login"))
	require.Equal(t, ratelimit.Rule{Limit: 3, Window: time.Minute}, cfg.ruleFor("/api/auth/signup"))
	require.Equal(t, ratelimit.Rule{Limit: 60, Window: time.Minute}, cfg.ruleFor("/api/posts"))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ProtectedPages = append(cfg.ProtectedPages, "posts")
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.APIPrefix = "api"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Mutations = []Mutation{{Method: "", Prefix: "/api/posts"}}
	require.Error(t, cfg.Validate())
}
