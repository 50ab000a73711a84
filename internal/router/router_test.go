package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/provider"

	"github.com/gin-gonic/gin"
)

func TestSetupRouterRegistersRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Server: config.ServerConfig{Mode: "debug"}}
	engine := SetupRouter(cfg, &provider.Container{Config: cfg})

	want := map[string]bool{
		"POST /callback/stk":               false,
		"POST /callback/c2b":               false,
		"POST /callback/c2b/validation":    false,
		"POST /callback/kopokopo":          false,
		"GET /api/v1/vouchers/:code":       false,
		"POST /api/v1/vouchers/:code/use":  false,
		"GET /api/v1/transactions":         false,
		"GET /api/v1/transactions/:txn_id": false,
		"GET /healthz":                     false,
	}
	for _, route := range engine.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, found := range want {
		if !found {
			t.Fatalf("route %s not registered", key)
		}
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/callback/c2b/validation", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("validation endpoint want 200 got %d", w.Code)
	}
}
