package api

import (
	"net/http/httptest"
	"testing"
)

func TestParsePagination_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/incidents", nil)
	p := ParsePagination(r)
	if p.Page != 1 || p.PerPage != 50 {
		t.Errorf("expected defaults 1/50, got %d/%d", p.Page, p.PerPage)
	}
	if p.Offset() != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset())
	}
}

func TestParsePagination_Explicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/incidents?page=3&per_page=20", nil)
	p := ParsePagination(r)
	if p.Page != 3 || p.PerPage != 20 {
		t.Errorf("expected 3/20, got %d/%d", p.Page, p.PerPage)
	}
	if p.Offset() != 40 {
		t.Errorf("expected offset 40, got %d", p.Offset())
	}
}

func TestParsePagination_ClampsAndIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/incidents?page=-1&per_page=9999", nil)
	p := ParsePagination(r)
	if p.Page != 1 {
		t.Errorf("expected negative page ignored, got %d", p.Page)
	}
	if p.PerPage != 200 {
		t.Errorf("expected per_page clamped to 200, got %d", p.PerPage)
	}

	r = httptest.NewRequest("GET", "/api/incidents?page=abc", nil)
	p = ParsePagination(r)
	if p.Page != 1 {
		t.Errorf("expected garbage page ignored, got %d", p.Page)
	}
}

func TestTotalPages(t *testing.T) {
	p := PaginationParams{Page: 1, PerPage: 50}
	if got := p.TotalPages(0); got != 0 {
		t.Errorf("expected 0 pages, got %d", got)
	}
	if got := p.TotalPages(50); got != 1 {
		t.Errorf("expected 1 page, got %d", got)
	}
	if got := p.TotalPages(51); got != 2 {
		t.Errorf("expected 2 pages, got %d", got)
	}
}
