package utils

import (
	"net/http/httptest"
	"testing"
)

func TestExtractPagination(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		page    int
		limit   int
		offset  int
		wantErr bool
	}{
		{"defaults", "", 1, 10, 0, false},
		{"explicit", "?page=3&limit=25", 3, 25, 50, false},
		{"limit capped", "?limit=100000", 1, maxPageLimit, 0, false},
		{"zero page", "?page=0", 0, 0, 0, true},
		{"garbage limit", "?limit=ten", 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/scholar/import-batches"+tt.query, nil)
			got, err := ExtractPagination(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractPagination: %v", err)
			}
			if got.Page != tt.page || got.Limit != tt.limit || got.Offset != tt.offset {
				t.Errorf("got page=%d limit=%d offset=%d, want %d/%d/%d",
					got.Page, got.Limit, got.Offset, tt.page, tt.limit, tt.offset)
			}
		})
	}
}

func TestSetPaginationStats(t *testing.T) {
	p := PaginationParams{Page: 1, Limit: 10}
	p.SetPaginationStats(25)
	if p.TotalRecords != 25 || p.TotalPages != 3 {
		t.Errorf("got records=%d pages=%d, want 25/3", p.TotalRecords, p.TotalPages)
	}
	p.SetPaginationStats(0)
	if p.TotalPages != 0 {
		t.Errorf("empty table should report 0 pages, got %d", p.TotalPages)
	}
}
