package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// SchedulerCallbackRequest is what the scheduler posts when a task fires.
// The payload registered with the task carries campaign_id; task_id is
// added by the scheduler.
type SchedulerCallbackRequest struct {
	CampaignID string `json:"campaign_id"`
	TaskID     string `json:"task_id"`
}

// SchedulerCallback handles POST /internal/scheduler/callback.
func (h *Handlers) SchedulerCallback(w http.ResponseWriter, r *http.Request) {
	var req SchedulerCallbackRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CampaignID) == "" {
		httputil.Fail(w, apperr.InvalidUsage("campaign_id", "campaign_id is required"))
		return
	}
	if strings.TrimSpace(req.TaskID) == "" {
		httputil.Fail(w, apperr.InvalidUsage("task_id", "task_id is required"))
		return
	}
	job, err := h.campaigns.SendFromSchedule(r.Context(), req.CampaignID, req.TaskID)
	if err != nil {
		logger.Warn("[api] scheduled send rejected", "campaign_id", req.CampaignID, "task_id", req.TaskID, "error", err)
		httputil.Fail(w, err)
		return
	}
	httputil.Accepted(w, job)
}

// RecordReply handles POST /internal/blasts/{id}/replies.
func (h *Handlers) RecordReply(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.RecordReply(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.NoContent(w)
}

// RecordOpen handles POST /internal/blasts/{id}/opens.
func (h *Handlers) RecordOpen(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.RecordOpen(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.NoContent(w)
}

type optOutRequest struct {
	RecipientID string `json:"recipient_id"`
}

// RecordOptOut handles POST /internal/blasts/{id}/opt-outs.
func (h *Handlers) RecordOptOut(w http.ResponseWriter, r *http.Request) {
	var req optOutRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.campaigns.RecordOptOut(r.Context(), chi.URLParam(r, "id"), req.RecipientID); err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.NoContent(w)
}

type updateShortLinkRequest struct {
	DestinationURL string `json:"destination_url"`
}

// UpdateShortLink handles PATCH /internal/short-links/{id}.
func (h *Handlers) UpdateShortLink(w http.ResponseWriter, r *http.Request) {
	if h.links == nil {
		httputil.JSON(w, http.StatusNotImplemented, httputil.ErrorResponse{Error: "short links are not served by this process"})
		return
	}
	var req updateShortLinkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	link, err := h.links.UpdateDestination(r.Context(), chi.URLParam(r, "id"), req.DestinationURL)
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.OK(w, link)
}
