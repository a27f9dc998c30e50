package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/flozac77/StreamZilla/internal/usecase"
)

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Error(w http.ResponseWriter, status int, err string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// defaultRetryAfter is advertised when the upstream gave no wait hint.
const defaultRetryAfter = 5 * time.Second

// writeAuthError maps a token lifecycle failure to a sanitized response.
// It returns false when err is not an *usecase.AuthError.
func writeAuthError(w http.ResponseWriter, err error) bool {
	var authErr *usecase.AuthError
	if !errors.As(err, &authErr) {
		return false
	}

	switch authErr.Kind {
	case usecase.AuthErrorRateLimited:
		wait := authErr.RetryAfter
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		Error(w, http.StatusServiceUnavailable, "rate_limited", "Twitch is rate limiting requests, retry later")
	case usecase.AuthErrorUnauthorized:
		Error(w, http.StatusBadGateway, "upstream_unauthorized", "Twitch rejected the application credentials")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
	return true
}
