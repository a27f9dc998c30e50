package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/usecase"
)

// SearchHandler serves game searches.
type SearchHandler struct {
	svc usecase.SearchService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(svc usecase.SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search handles GET /api/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	input := usecase.SearchInput{
		GameName:     q.Get("game"),
		Cursor:       q.Get("cursor"),
		CursorSource: model.CursorSource(q.Get("cursor_source")),
		UseCache:     true,
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_limit", "Limit must be an integer between 1 and 100")
			return
		}
		input.Limit = limit
	}

	if raw := q.Get("use_cache"); raw != "" {
		useCache, err := strconv.ParseBool(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_use_cache", "use_cache must be true or false")
			return
		}
		input.UseCache = useCache
	}

	result, err := h.svc.SearchVideosByGame(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

func (h *SearchHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if writeAuthError(w, err) {
		return
	}

	switch {
	case errors.Is(err, usecase.ErrEmptyGameName):
		Error(w, http.StatusBadRequest, "invalid_game", "Game name is required")
	case errors.Is(err, usecase.ErrInvalidLimit):
		Error(w, http.StatusBadRequest, "invalid_limit", "Limit must be an integer between 1 and 100")
	case errors.Is(err, usecase.ErrInvalidCursorSource):
		Error(w, http.StatusBadRequest, "invalid_cursor_source", "Cursor source must be streams or videos")
	default:
		slog.ErrorContext(r.Context(), "search request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
