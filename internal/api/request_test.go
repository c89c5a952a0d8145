package api

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON_Valid(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"Suspicious login"}`))
	var req CreateIncidentRequest
	if err := DecodeJSON(r, &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Title != "Suspicious login" {
		t.Errorf("expected title decoded, got %q", req.Title)
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":`))
	var req CreateIncidentRequest
	err := DecodeJSON(r, &req)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if !strings.Contains(err.Error(), "malformed JSON") && !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"x","bogus":1}`))
	var req CreateIncidentRequest
	err := DecodeJSON(r, &req)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "unknown field") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestDecodeJSON_WrongType(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":123}`))
	var req CreateIncidentRequest
	err := DecodeJSON(r, &req)
	if err == nil {
		t.Fatal("expected error for wrong type")
	}
	if !strings.Contains(err.Error(), "invalid value for field") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestDecodeJSON_Empty(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(""))
	var req CreateIncidentRequest
	err := DecodeJSON(r, &req)
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected empty body error, got %v", err)
	}
}
