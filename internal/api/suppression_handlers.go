package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

func (h *Handlers) suppressionsEnabled(w http.ResponseWriter) bool {
	if h.suppressions == nil {
		httputil.JSON(w, http.StatusNotImplemented, httputil.ErrorResponse{Error: "suppression list is not configured"})
		return false
	}
	return true
}

// ListSuppressions handles GET /internal/suppressions.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	p := parsePagination(r, 100, 1000)
	entries, total, err := h.suppressions.List(r.Context(), suppression.ListFilter{
		Channel: domain.ChannelType(r.URL.Query().Get("channel")),
		Reason:  domain.SuppressionReason(r.URL.Query().Get("reason")),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"suppressions": entries,
		"pagination":   p.meta(total),
	})
}

// CreateSuppression handles POST /internal/suppressions.
func (h *Handlers) CreateSuppression(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	var entry domain.Suppression
	if !httputil.Decode(w, r, &entry) {
		return
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if err := h.suppressions.Suppress(r.Context(), entry); err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.NoContent(w)
}

// DeleteSuppression handles DELETE /internal/suppressions/{channel}/{recipientID}.
func (h *Handlers) DeleteSuppression(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	channel := domain.ChannelType(chi.URLParam(r, "channel"))
	if err := h.suppressions.Remove(r.Context(), chi.URLParam(r, "recipientID"), channel); err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.NoContent(w)
}

// SuppressionStats handles GET /internal/suppressions/stats.
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	stats, err := h.suppressions.GetStats(r.Context())
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.OK(w, stats)
}
