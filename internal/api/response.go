package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/incidra/incidra/internal/errs"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON response: %v", err)
		}
	}
}

// RespondError writes a standard error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error response with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    "validation_error",
		Details: fieldErrors,
	})
}

// RespondNoContent writes a 204 No Content response with no body.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// RespondDomainError maps a service-layer error onto the HTTP status and
// error code it deserves. Unknown errors become a 500 without leaking the
// internal message.
func RespondDomainError(w http.ResponseWriter, err error) {
	var valErr *errs.ValidationError
	var transErr *errs.InvalidTransitionError
	var wfErr *errs.InvalidWorkflowError

	switch {
	case errors.Is(err, errs.ErrNotFound):
		RespondErrorWithCode(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.As(err, &valErr):
		RespondValidationError(w, map[string]string{valErr.Field: valErr.Reason})
	case errors.As(err, &transErr):
		RespondErrorWithCode(w, http.StatusConflict, "invalid_transition", transErr.Error())
	case errors.As(err, &wfErr):
		RespondErrorWithCode(w, http.StatusBadRequest, "invalid_workflow", wfErr.Error())
	case errors.Is(err, errs.ErrWorkflowTerminal):
		RespondErrorWithCode(w, http.StatusConflict, "workflow_terminal", "workflow has already finished")
	case errors.Is(err, errs.ErrExecutionInProgress):
		RespondErrorWithCode(w, http.StatusConflict, "execution_in_progress", "workflow is already executing")
	default:
		log.Printf("Internal error: %v", err)
		RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
