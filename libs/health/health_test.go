package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReadinessReflectsFlagAndChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(false)

	r := gin.New()
	r.GET("/readyz", ReadinessHandler(m))

	serve := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return w.Code
	}

	if code := serve(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", code)
	}

	m.SetReady(true)
	if code := serve(); code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", code)
	}

	m.AddCheck("db", func(context.Context) error { return errors.New("down") })
	if code := serve(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with failing check, got %d", code)
	}
}
