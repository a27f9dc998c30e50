package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/usecase"
)

const (
	sessionName = "streamzilla_session"

	sessionKeyOAuthState   = "oauth_state"
	sessionKeyUserID       = "user_id"
	sessionKeyUserLogin    = "user_login"
	sessionKeyDisplayName  = "user_display_name"
	sessionKeyProfileImage = "user_profile_image_url"
)

type AuthURLResponse struct {
	URL string `json:"url"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserVideosResponse struct {
	Videos     []model.Video `json:"videos"`
	TotalCount int           `json:"total_count"`
}

type LoginResponse struct {
	Message string            `json:"message"`
	User    *model.TwitchUser `json:"user"`
}

// AuthHandler drives the user login flow and keeps the result in a cookie session.
type AuthHandler struct {
	svc   usecase.AuthService
	store sessions.Store
}

func NewAuthHandler(svc usecase.AuthService, store sessions.Store) *AuthHandler {
	return &AuthHandler{svc: svc, store: store}
}

// URL handles GET /api/auth/url
func (h *AuthHandler) URL(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.Get(r, sessionName)
	if err != nil {
		slog.WarnContext(r.Context(), "discarding unreadable session", "error", err)
	}

	state := h.svc.NewState()
	session.Values[sessionKeyOAuthState] = state
	if err := session.Save(r, w); err != nil {
		slog.ErrorContext(r.Context(), "failed to save oauth state", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "Failed to start login")
		return
	}

	JSON(w, http.StatusOK, AuthURLResponse{URL: h.svc.AuthURL(state)})
}

// Callback handles GET /api/auth/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.Get(r, sessionName)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_session", "Login session is missing or invalid")
		return
	}

	expected, ok := session.Values[sessionKeyOAuthState].(string)
	if !ok || expected == "" || r.URL.Query().Get("state") != expected {
		Error(w, http.StatusBadRequest, "invalid_state", "OAuth state does not match")
		return
	}

	// A state is single use, whatever the outcome of the exchange.
	delete(session.Values, sessionKeyOAuthState)
	if err := session.Save(r, w); err != nil {
		slog.ErrorContext(r.Context(), "failed to consume oauth state", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "Failed to save the session")
		return
	}

	user, err := h.svc.Login(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrEmptyCode):
			Error(w, http.StatusBadRequest, "invalid_code", "Authorization code is required")
		case errors.Is(err, usecase.ErrCodeExchange):
			slog.WarnContext(r.Context(), "authorization code exchange failed", "error", err)
			Error(w, http.StatusBadRequest, "invalid_code", "Authorization code was rejected")
		case errors.Is(err, usecase.ErrUserTokenStore):
			slog.ErrorContext(r.Context(), "failed to store user token", "error", err)
			Error(w, http.StatusInternalServerError, "internal_error", "Failed to complete login")
		default:
			slog.ErrorContext(r.Context(), "login failed", "error", err)
			Error(w, http.StatusBadGateway, "upstream_error", "Failed to fetch the user profile")
		}
		return
	}

	session.Values[sessionKeyUserID] = user.ID
	session.Values[sessionKeyUserLogin] = user.Login
	session.Values[sessionKeyDisplayName] = user.DisplayName
	session.Values[sessionKeyProfileImage] = user.ProfileImageURL
	if err := session.Save(r, w); err != nil {
		slog.ErrorContext(r.Context(), "failed to save session", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "Failed to save the session")
		return
	}

	slog.InfoContext(r.Context(), "user logged in", "user_id", user.ID, "login", user.Login)
	JSON(w, http.StatusOK, LoginResponse{Message: "Successfully authenticated", User: user})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, userID, ok := h.sessionUser(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthenticated", "Not logged in")
		return
	}

	if err := h.svc.Logout(r.Context(), userID); err != nil {
		slog.ErrorContext(r.Context(), "logout failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "Failed to log out")
		return
	}

	session.Values = map[interface{}]interface{}{}
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		slog.ErrorContext(r.Context(), "failed to clear session", "error", err)
	}

	JSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Videos handles GET /api/auth/videos
func (h *AuthHandler) Videos(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.sessionUser(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthenticated", "Not logged in")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	videos, err := h.svc.UserVideos(r.Context(), userID, limit)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidLimit):
			Error(w, http.StatusBadRequest, "invalid_limit", err.Error())
		case errors.Is(err, usecase.ErrNotLoggedIn), errors.Is(err, usecase.ErrUserTokenExpired):
			Error(w, http.StatusUnauthorized, "unauthenticated", "Login again to continue")
		default:
			slog.ErrorContext(r.Context(), "failed to list user videos", "user_id", userID, "error", err)
			Error(w, http.StatusBadGateway, "upstream_error", "Failed to fetch videos")
		}
		return
	}

	JSON(w, http.StatusOK, UserVideosResponse{Videos: videos, TotalCount: len(videos)})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, id, ok := h.sessionUser(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthenticated", "Not logged in")
		return
	}

	user := &model.TwitchUser{ID: id}
	user.Login, _ = session.Values[sessionKeyUserLogin].(string)
	user.DisplayName, _ = session.Values[sessionKeyDisplayName].(string)
	user.ProfileImageURL, _ = session.Values[sessionKeyProfileImage].(string)

	JSON(w, http.StatusOK, user)
}

func (h *AuthHandler) sessionUser(r *http.Request) (*sessions.Session, string, bool) {
	session, err := h.store.Get(r, sessionName)
	if err != nil {
		return nil, "", false
	}
	id, ok := session.Values[sessionKeyUserID].(string)
	if !ok || id == "" {
		return nil, "", false
	}
	return session, id, true
}
