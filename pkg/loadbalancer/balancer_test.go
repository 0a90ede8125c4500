package loadbalancer

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNextUpstreamRoundRobin(t *testing.T) {
	lb := NewLoadBalancer([]string{"http://a:7143", "http://b:7143"})
	want := []string{"http://a:7143", "http://b:7143", "http://a:7143"}
	for i, w := range want {
		if got := lb.NextUpstream(); got != w {
			t.Errorf("call %d: got %s, want %s", i, got, w)
		}
	}
}

func TestServeHTTPRedirects(t *testing.T) {
	lb := NewLoadBalancer([]string{"http://a:7143"})
	req := httptest.NewRequest(http.MethodGet, "/scholar/import-batches?page=2", nil)
	w := httptest.NewRecorder()
	lb.ServeHTTP(w, req)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "http://a:7143/scholar/import-batches?page=2" {
		t.Errorf("Location = %s", loc)
	}
}

func TestServeHTTPNoUpstreams(t *testing.T) {
	lb := NewLoadBalancer(nil)
	w := httptest.NewRecorder()
	lb.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scholar/recipients", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
