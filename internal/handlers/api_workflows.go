package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/incidra/incidra/internal/api"
	"github.com/incidra/incidra/internal/errs"
	"github.com/incidra/incidra/internal/workflow"
)

// handleListWorkflows handles GET /api/workflows
func (h *APIHandler) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	params := api.ParsePagination(r)
	workflows, err := h.engine.List(params.PerPage)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, workflows)
}

// handleCreateWorkflow handles POST /api/workflows
func (h *APIHandler) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req api.CreateWorkflowRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	var incidentID *uint
	if req.IncidentUUID != "" {
		inc, err := h.incidentService.GetByUUID(req.IncidentUUID)
		if err != nil {
			api.RespondDomainError(w, err)
			return
		}
		incidentID = &inc.ID
	}

	specs := make([]workflow.TaskSpec, len(req.Tasks))
	for i, task := range req.Tasks {
		specs[i] = workflow.TaskSpec{
			Name:             task.Name,
			Action:           task.Action,
			Parameters:       task.Parameters,
			RequiresApproval: task.RequiresApproval,
			TimeoutSeconds:   task.TimeoutSeconds,
			MaxRetries:       task.MaxRetries,
		}
	}

	wf, err := h.engine.CreateWorkflow(req.Name, req.Description, incidentID, specs)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, wf)
}

// handleGetWorkflow handles GET /api/workflows/{uuid}
func (h *APIHandler) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.engine.Get(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, wf)
}

// handleListIncidentWorkflows handles GET /api/incidents/{uuid}/workflows
func (h *APIHandler) handleListIncidentWorkflows(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidentService.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	workflows, err := h.engine.ListByIncident(inc.ID)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, workflows)
}

// handleExecuteWorkflow handles POST /api/workflows/{uuid}/execute.
// Execution runs in the background; the response only acknowledges the start.
func (h *APIHandler) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowUUID := r.PathValue("uuid")

	wf, err := h.engine.Get(workflowUUID)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	if wf.Status.IsTerminal() {
		api.RespondDomainError(w, errs.ErrWorkflowTerminal)
		return
	}

	go h.driveWorkflow(workflowUUID)

	api.RespondJSON(w, http.StatusAccepted, map[string]string{
		"uuid":   workflowUUID,
		"status": "executing",
	})
}

// driveWorkflow runs a workflow to its next stopping point and notifies the
// incident channel about the outcome.
func (h *APIHandler) driveWorkflow(workflowUUID string) {
	err := h.engine.Execute(context.Background(), workflowUUID)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrApprovalRequired):
		log.Printf("Workflow %s suspended awaiting approval", workflowUUID)
	case errors.Is(err, errs.ErrExecutionInProgress):
		log.Printf("Workflow %s already has a driver", workflowUUID)
		return
	default:
		log.Printf("Workflow %s execution failed: %v", workflowUUID, err)
	}

	if h.notifier == nil {
		return
	}
	if wf, getErr := h.engine.Get(workflowUUID); getErr == nil && wf.IncidentID != nil {
		h.notifier.WorkflowEvent(*wf.IncidentID, wf.Name, string(wf.Status))
	}
}

// handleApproveTask handles POST /api/workflows/{uuid}/approve.
// Approval releases the gate and resumes execution in the background.
func (h *APIHandler) handleApproveTask(w http.ResponseWriter, r *http.Request) {
	var req api.ApproveTaskRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	workflowUUID := r.PathValue("uuid")
	if err := h.engine.ApproveTask(workflowUUID, req.Approver); err != nil {
		api.RespondDomainError(w, err)
		return
	}

	go h.driveWorkflow(workflowUUID)

	api.RespondJSON(w, http.StatusAccepted, map[string]string{
		"uuid":   workflowUUID,
		"status": "resuming",
	})
}

// handleCancelWorkflow handles POST /api/workflows/{uuid}/cancel
func (h *APIHandler) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.PathValue("uuid"), actor(r)); err != nil {
		api.RespondDomainError(w, err)
		return
	}
	wf, err := h.engine.Get(r.PathValue("uuid"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, wf)
}

// handleWorkflowLog handles GET /api/workflows/{uuid}/log
func (h *APIHandler) handleWorkflowLog(w http.ResponseWriter, r *http.Request) {
	var sinceID uint
	if v := r.URL.Query().Get("since_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			sinceID = uint(n)
		}
	}

	entries, err := h.engine.ExecutionLog(r.PathValue("uuid"), sinceID)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, entries)
}

// handleListPlaybooks handles GET /api/playbooks
func (h *APIHandler) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, h.playbookService.List())
}

// handleGetPlaybook handles GET /api/playbooks/{name}
func (h *APIHandler) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, err := h.playbookService.Get(r.PathValue("name"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, pb)
}

// handleInstantiatePlaybook handles POST /api/playbooks/{name}/instantiate.
// The playbook becomes a concrete workflow, ready to execute.
func (h *APIHandler) handleInstantiatePlaybook(w http.ResponseWriter, r *http.Request) {
	var req api.InstantiatePlaybookRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := r.PathValue("name")
	specs, err := h.playbookService.Instantiate(name, req.Variables)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}

	var incidentID *uint
	if req.IncidentUUID != "" {
		inc, err := h.incidentService.GetByUUID(req.IncidentUUID)
		if err != nil {
			api.RespondDomainError(w, err)
			return
		}
		incidentID = &inc.ID
	}

	pb, _ := h.playbookService.Get(name)
	wf, err := h.engine.CreateWorkflow(pb.Name, pb.Description, incidentID, specs)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, wf)
}
