package paging

import (
	"net/http/httptest"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		target string
		want   Page
	}{
		{"/audit", Page{Number: 1, Size: PageSize}},
		{"/audit?page=3", Page{Number: 3, Size: PageSize}},
		{"/audit?page=0&per_page=-4", Page{Number: 1, Size: PageSize}},
		{"/audit?page=abc", Page{Number: 1, Size: PageSize}},
		{"/audit?page=2&per_page=10", Page{Number: 2, Size: 10}},
		{"/audit?per_page=5000", Page{Number: 1, Size: MaxPageSize}},
	}
	for _, tt := range tests {
		if got := Parse(httptest.NewRequest("GET", tt.target, nil)); got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.target, got, tt.want)
		}
	}
}

func TestOffsetAndLimit(t *testing.T) {
	p := Page{Number: 3, Size: 20}
	if p.Offset() != 40 || p.Limit() != 20 {
		t.Errorf("Offset/Limit = %d/%d, want 40/20", p.Offset(), p.Limit())
	}
}

func TestMetaFor(t *testing.T) {
	tests := []struct {
		name  string
		page  Page
		total int64
		want  Meta
	}{
		{"empty", Page{1, 10}, 0, Meta{Page: 1, PerPage: 10, Total: 0, TotalPages: 1}},
		{"exact pages", Page{1, 10}, 20, Meta{Page: 1, PerPage: 10, Total: 20, TotalPages: 2, HasNext: true}},
		{"last partial page", Page{3, 10}, 21, Meta{Page: 3, PerPage: 10, Total: 21, TotalPages: 3, HasPrev: true}},
		{"middle", Page{2, 10}, 35, Meta{Page: 2, PerPage: 10, Total: 35, TotalPages: 4, HasPrev: true, HasNext: true}},
	}
	for _, tt := range tests {
		if got := tt.page.MetaFor(tt.total); got != tt.want {
			t.Errorf("%s: MetaFor = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}
