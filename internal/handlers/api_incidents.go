package handlers

import (
	"net/http"
	"time"

	"github.com/incidra/incidra/internal/api"
	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/services"
)

// handleListIncidents handles GET /api/incidents
func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	params := api.ParsePagination(r)
	q := r.URL.Query()

	filter := services.ListFilter{
		Status:     database.IncidentStatus(q.Get("status")),
		Severity:   database.Severity(q.Get("severity")),
		Category:   q.Get("category"),
		AssignedTo: q.Get("assigned_to"),
		Limit:      params.PerPage,
		Offset:     params.Offset(),
	}

	incidents, total, err := h.incidentService.List(filter)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, api.IncidentListResponse{
		Incidents:  api.IncidentsToListItems(incidents, time.Now()),
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: params.TotalPages(total),
	})
}

// handleCreateIncident handles POST /api/incidents
func (h *APIHandler) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req api.CreateIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	inc, err := h.incidentService.Create(services.CreateIncidentInput{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Severity:          database.Severity(req.Severity),
		AssignedTo:        req.AssignedTo,
		AffectedAssets:    req.AffectedAssets,
		RelatedThreats:    req.RelatedThreats,
		SLAResponseTime:   time.Duration(req.SLAResponseSeconds) * time.Second,
		SLAResolutionTime: time.Duration(req.SLAResolutionSeconds) * time.Second,
	}, actor(r))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}

	if h.notifier != nil {
		h.notifier.IncidentCreated(inc)
	}

	api.RespondJSON(w, http.StatusCreated, inc)
}

// handleGetIncident handles GET /api/incidents/{uuid}
func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidentService.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleAssignIncident handles POST /api/incidents/{uuid}/assign
func (h *APIHandler) handleAssignIncident(w http.ResponseWriter, r *http.Request) {
	var req api.AssignIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	inc, err := h.incidentService.Assign(r.PathValue("uuid"), req.Assignee, actor(r))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleTransitionIncident handles POST /api/incidents/{uuid}/transition
func (h *APIHandler) handleTransitionIncident(w http.ResponseWriter, r *http.Request) {
	var req api.TransitionIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	inc, err := h.incidentService.Transition(
		r.PathValue("uuid"), database.IncidentStatus(req.Status), actor(r), req.Reason)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleReprioritizeIncident handles POST /api/incidents/{uuid}/reprioritize
func (h *APIHandler) handleReprioritizeIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidentService.Reprioritize(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleIncidentSLA handles GET /api/incidents/{uuid}/sla
func (h *APIHandler) handleIncidentSLA(w http.ResponseWriter, r *http.Request) {
	info, err := h.incidentService.SLAStatus(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, info)
}

// handleLinkIncident handles POST /api/incidents/{uuid}/links
func (h *APIHandler) handleLinkIncident(w http.ResponseWriter, r *http.Request) {
	var req api.LinkIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	inc, err := h.incidentService.LinkIncident(r.PathValue("uuid"), req.TargetUUID, actor(r))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleLinkThreat handles POST /api/incidents/{uuid}/threats
func (h *APIHandler) handleLinkThreat(w http.ResponseWriter, r *http.Request) {
	var req api.LinkThreatRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	inc, err := h.incidentService.LinkThreat(r.PathValue("uuid"), req.Threat, actor(r))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleGetTimeline handles GET /api/incidents/{uuid}/timeline
func (h *APIHandler) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.incidentService.Timeline(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, events)
}

// handleAddTimelineEvent handles POST /api/incidents/{uuid}/timeline
func (h *APIHandler) handleAddTimelineEvent(w http.ResponseWriter, r *http.Request) {
	var req api.AddTimelineEventRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	event, err := h.incidentService.AddTimelineEvent(r.PathValue("uuid"), actor(r), req.Event, req.Message)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, event)
}

// handleListEvidence handles GET /api/incidents/{uuid}/evidence
func (h *APIHandler) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	items, err := h.incidentService.ListEvidence(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, items)
}

// handleAddEvidence handles POST /api/incidents/{uuid}/evidence
func (h *APIHandler) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	var req api.AddEvidenceRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	ev, err := h.incidentService.AddEvidence(
		r.PathValue("uuid"), req.Reference, req.Kind, req.Filename, actor(r))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, ev)
}

// handleListNotifications handles GET /api/incidents/{uuid}/notifications
func (h *APIHandler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidentService.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	records, err := h.notifier.ListForIncident(inc.ID)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, records)
}

// handleGetPostMortem handles GET /api/incidents/{uuid}/postmortem
func (h *APIHandler) handleGetPostMortem(w http.ResponseWriter, r *http.Request) {
	pm, err := h.postMortemService.Get(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, pm)
}

// handleBuildPostMortem handles POST /api/incidents/{uuid}/postmortem
func (h *APIHandler) handleBuildPostMortem(w http.ResponseWriter, r *http.Request) {
	var req api.BuildPostMortemRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pm, err := h.postMortemService.Build(r.PathValue("uuid"), req.Summary, actor(r))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, pm)
}
