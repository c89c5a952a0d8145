package api

import (
	"testing"
)

func TestValidate_CreateIncidentRequest(t *testing.T) {
	errs := Validate(CreateIncidentRequest{Title: "Suspicious login", Severity: "high"})
	if errs != nil {
		t.Errorf("expected valid request, got %v", errs)
	}

	errs = Validate(CreateIncidentRequest{})
	if errs == nil || errs["title"] != "is required" {
		t.Errorf("expected title required error, got %v", errs)
	}

	errs = Validate(CreateIncidentRequest{Title: "x", Severity: "catastrophic"})
	if errs == nil || errs["severity"] == "" {
		t.Errorf("expected severity oneof error, got %v", errs)
	}
}

func TestValidate_CreateWorkflowRequest(t *testing.T) {
	errs := Validate(CreateWorkflowRequest{Name: "contain"})
	if errs == nil || errs["tasks"] == "" {
		t.Errorf("expected tasks required error, got %v", errs)
	}

	errs = Validate(CreateWorkflowRequest{
		Name:  "contain",
		Tasks: []WorkflowTaskRequest{{Name: "block", Action: "block_ip"}},
	})
	if errs != nil {
		t.Errorf("expected valid request, got %v", errs)
	}

	// dive validates tasks individually.
	errs = Validate(CreateWorkflowRequest{
		Name:  "contain",
		Tasks: []WorkflowTaskRequest{{Name: "block"}},
	})
	if errs == nil {
		t.Error("expected error for task without an action")
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Title":         "title",
		"AssignedTo":    "assigned_to",
		"SLABreached":   "s_l_a_breached",
		"priorityScore": "priority_score",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
