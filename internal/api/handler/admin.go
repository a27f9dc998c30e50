package handler

import (
	"log/slog"
	"net/http"

	"github.com/flozac77/StreamZilla/internal/usecase"
)

type ClearCacheResponse struct {
	Deleted int `json:"deleted"`
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	svc usecase.SearchService
}

func NewAdminHandler(svc usecase.SearchService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// ClearCache handles DELETE /api/admin/cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ClearCache(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to clear search cache", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "Failed to clear the cache")
		return
	}

	slog.InfoContext(r.Context(), "search cache cleared", "deleted", n)
	JSON(w, http.StatusOK, ClearCacheResponse{Deleted: n})
}
