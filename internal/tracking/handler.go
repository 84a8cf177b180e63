package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Redirector is satisfied by *Service.
type Redirector interface {
	Redirect(ctx context.Context, shortLinkID string, q url.Values) (string, error)
}

// Handler serves the public redirect endpoint. Recipients only ever see a
// redirect or a bare 500.
type Handler struct {
	svc Redirector
}

func NewHandler(svc Redirector) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/redirect/{shortLinkID}", h.HandleRedirect)
	r.Get("/health", h.HandleHealth)
	return r
}

func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "shortLinkID")
	dest, err := h.svc.Redirect(r.Context(), id, r.URL.Query())
	if err != nil {
		fields := []interface{}{"short_link_id", id, "ip", realIP(r), "error", err}
		if errors.Is(err, ErrEmptyDestination) {
			logger.Error("[tracking.Handler] link has no destination", fields...)
		} else if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("[tracking.Handler] link chain incomplete", fields...)
		} else {
			logger.Warn("[tracking.Handler] redirect rejected", fields...)
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
