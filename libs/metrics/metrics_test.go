package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPObserveExposedByHandler(t *testing.T) {
	registry := NewRegistry()
	m := NewHTTP(registry)
	m.Observe("GET", "/portfolio", "OK", 15*time.Millisecond)

	w := httptest.NewRecorder()
	Handler(registry).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",path="/portfolio",status="OK"} 1`) {
		t.Fatalf("request counter missing from output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("go collector missing from output")
	}
}

func TestNilHTTPMetricsIsSafe(t *testing.T) {
	var m *HTTP
	m.Observe("GET", "/", "OK", time.Millisecond)
}
