package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_Bounds(t *testing.T) {
	tests := []struct {
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"/?limit=50&offset=10", 50, 10},
		{"/?limit=500", MaxLimit, 0},
		{"/?limit=-1&offset=-5", DefaultLimit, 0},
		{"/?limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			p := FromContext(contextFor(tt.target))
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want %d/%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	r := NewResponse([]int{1, 2}, 5, Params{Limit: 2, Offset: 2})
	if !r.HasMore {
		t.Error("expected more results after offset 2 of 5")
	}
	r = NewResponse([]int{5}, 5, Params{Limit: 2, Offset: 4})
	if r.HasMore {
		t.Error("expected last page")
	}
}
