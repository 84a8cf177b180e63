package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// ListCampaigns handles GET /campaigns.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := h.campaigns.List(r.Context(), callerFrom(r))
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	if list == nil {
		list = []domain.Campaign{}
	}
	httputil.OK(w, map[string]any{
		"campaigns": list,
		"total":     len(list),
	})
}

// CreateCampaign handles POST /campaigns.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), callerFrom(r), in)
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.Created(w, c)
}

// GetCampaign handles GET /campaigns/{id}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"), callerFrom(r))
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.OK(w, c)
}

// UpdateCampaign handles PATCH /campaigns/{id}.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var patch domain.CampaignPatch
	if !httputil.Decode(w, r, &patch) {
		return
	}
	c, err := h.campaigns.Update(r.Context(), chi.URLParam(r, "id"), callerFrom(r), patch)
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.OK(w, c)
}

// DeleteCampaign handles DELETE /campaigns/{id}.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id"), callerFrom(r)); err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.NoContent(w)
}

type scheduleResponse struct {
	TaskID string `json:"task_id"`
}

// ScheduleCampaign handles POST /campaigns/{id}/schedule.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var spec domain.ScheduleSpec
	if !httputil.Decode(w, r, &spec) {
		return
	}
	taskID, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), callerFrom(r), spec)
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.Created(w, scheduleResponse{TaskID: taskID})
}

// RescheduleCampaign handles PUT /campaigns/{id}/schedule.
func (h *Handlers) RescheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var spec domain.ScheduleSpec
	if !httputil.Decode(w, r, &spec) {
		return
	}
	taskID, err := h.campaigns.Reschedule(r.Context(), chi.URLParam(r, "id"), callerFrom(r), spec)
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.OK(w, scheduleResponse{TaskID: taskID})
}

// UnscheduleCampaign handles DELETE /campaigns/{id}/schedule.
func (h *Handlers) UnscheduleCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Unschedule(r.Context(), chi.URLParam(r, "id"), callerFrom(r)); err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.NoContent(w)
}

// SendCampaign handles POST /campaigns/{id}/send. The send runs on a
// worker; the response carries the queued job.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	job, err := h.campaigns.Send(r.Context(), chi.URLParam(r, "id"), callerFrom(r))
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	httputil.Accepted(w, job)
}

// ListBlasts handles GET /campaigns/{id}/blasts.
func (h *Handlers) ListBlasts(w http.ResponseWriter, r *http.Request) {
	blasts, err := h.campaigns.ListBlasts(r.Context(), chi.URLParam(r, "id"), callerFrom(r))
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	if blasts == nil {
		blasts = []domain.Blast{}
	}
	httputil.OK(w, map[string]any{"blasts": blasts})
}

// ListSends handles GET /blasts/{id}/sends.
func (h *Handlers) ListSends(w http.ResponseWriter, r *http.Request) {
	sends, err := h.campaigns.ListSends(r.Context(), chi.URLParam(r, "id"), callerFrom(r))
	if err != nil {
		httputil.Fail(w, err)
		return
	}
	if sends == nil {
		sends = []domain.Send{}
	}
	httputil.OK(w, map[string]any{"sends": sends})
}
