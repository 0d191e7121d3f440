package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/auth"
	httpmiddleware "github.com/wolfeidau/blogify/internal/http"
	"github.com/wolfeidau/blogify/internal/store"
)

// profileCacheControl lets the browser and the CLI's cache reuse a profile briefly.
const profileCacheControl = "private, max-age=30"

// UpdateUserRequest is the body of PUT /api/users/{id}. Nil fields are left unchanged.
type UpdateUserRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"profile_picture_url"`
}

// Handler serves the user profile API and proxies the rest of /api/ to the backend.
type Handler struct {
	users   store.UserStore
	backend http.Handler
}

// NewHandler creates the API handler. An empty backendURL answers every
// proxied route with 502.
func NewHandler(users store.UserStore, backendURL string) (*Handler, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}

	backend, err := newBackendProxy(backendURL)
	if err != nil {
		return nil, err
	}

	return &Handler{users: users, backend: backend}, nil
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users/{id}", h.GetUser)
	mux.HandleFunc("PUT /api/users/{id}", h.UpdateUser)
	mux.Handle("/api/", h.backend)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if errors.Is(err, store.ErrUserNotFound) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", id.String()).Msg("Failed to load user")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", profileCacheControl)
	httpmiddleware.WriteJSON(w, http.StatusOK, user.Identity)
}

// UpdateUser changes the caller's own name or avatar.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, ok := auth.SessionFromContext(ctx)
	if !ok || !state.IsAuthenticated() {
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if id != state.Identity.ID {
		log.Warn().Str("user_id", state.Identity.ID.String()).Str("target", id.String()).Msg("Attempt to update another user's profile")
		httpmiddleware.WriteError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req UpdateUserRequest
	if err := httpmiddleware.DecodeJSON(w, r, &req); err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.Get(ctx, id)
	if errors.Is(err, store.ErrUserNotFound) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", id.String()).Msg("Failed to load user")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			httpmiddleware.WriteError(w, http.StatusBadRequest, "Name cannot be empty")
			return
		}
		user.Name = name
	}

	if req.AvatarURL != nil {
		if avatar := strings.TrimSpace(*req.AvatarURL); avatar != "" {
			user.AvatarURL = &avatar
		} else {
			user.AvatarURL = nil
		}
	}

	if err := h.users.Update(ctx, user); err != nil {
		log.Error().Err(err).Str("user_id", id.String()).Msg("Failed to update user")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info().Str("user_id", id.String()).Msg("Profile updated")
	httpmiddleware.WriteJSON(w, http.StatusOK, user.Identity)
}
