package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockModule struct {
	called bool
}

func (m *mockModule) RegisterRoutes(api *gin.RouterGroup) {
	m.called = true
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %s: %v", w.Body.String(), err)
	}
	return body
}

func openTestSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestHealthHandler(t *testing.T) {
	failing := func(context.Context) error { return errors.New("down") }
	passing := func(context.Context) error { return nil }

	tests := []struct {
		name           string
		checks         map[string]HealthCheck
		wantCode       int
		wantStatus     string
		wantComponents map[string]string
	}{
		{"no checks", nil, http.StatusOK, "ok", map[string]string{}},
		{"all ok", map[string]HealthCheck{"crm": passing}, http.StatusOK, "ok", map[string]string{"crm": "ok"}},
		{"one failing", map[string]HealthCheck{"crm": failing, "cache": passing}, http.StatusServiceUnavailable, "degraded",
			map[string]string{"crm": "error", "cache": "ok"}},
		{"nil check", map[string]HealthCheck{"crm": nil}, http.StatusServiceUnavailable, "degraded", map[string]string{"crm": "error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", healthHandler(tt.checks))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d; want %d", w.Code, tt.wantCode)
			}
			body := decodeBody(t, w)
			if body["status"] != tt.wantStatus {
				t.Errorf("status field = %v; want %s", body["status"], tt.wantStatus)
			}
			comps, ok := body["components"].(map[string]any)
			if !ok {
				t.Fatal("missing components")
			}
			if len(comps) != len(tt.wantComponents) {
				t.Errorf("components = %v; want %v", comps, tt.wantComponents)
			}
			for name, want := range tt.wantComponents {
				if comps[name] != want {
					t.Errorf("components[%s] = %v; want %s", name, comps[name], want)
				}
			}
		})
	}
}

func TestHealthHandler_UsesRequestDeadline(t *testing.T) {
	var deadline time.Time
	check := func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}
	r := gin.New()
	r.GET("/health", healthHandler(map[string]HealthCheck{"crm": check}))

	start := time.Now()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if deadline.IsZero() || deadline.Sub(start) > healthTimeout+time.Second {
		t.Errorf("deadline = %v; want about %s after the request", deadline, healthTimeout)
	}
}

func TestDatabaseCheck(t *testing.T) {
	db := openTestSQLiteDB(t)
	if err := databaseCheck(db)(context.Background()); err != nil {
		t.Errorf("databaseCheck() = %v; want nil", err)
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if err := databaseCheck(db)(context.Background()); err == nil {
		t.Error("databaseCheck() on closed db = nil; want error")
	}
	if err := databaseCheck(nil)(context.Background()); err == nil {
		t.Error("databaseCheck(nil) = nil; want error")
	}
}

func TestRegisterRoutes_Errors(t *testing.T) {
	if err := RegisterRoutes(nil, &RouteDeps{}); err == nil {
		t.Error("nil router: expected error")
	}
	if err := RegisterRoutes(gin.New(), nil); err == nil {
		t.Error("nil deps: expected error")
	}
	if err := RegisterRoutes(gin.New(), &RouteDeps{}); err == nil {
		t.Error("no modules: expected error")
	}
	if err := RegisterRoutes(gin.New(), &RouteDeps{Modules: []Module{&mockModule{}, nil}}); err == nil {
		t.Error("nil module entry: expected error")
	}
}

func TestRegisterRoutes_ModulesAndMiddleware(t *testing.T) {
	m := &mockModule{}
	var sawAPI bool
	r := gin.New()
	err := RegisterRoutes(r, &RouteDeps{
		Modules: []Module{m},
		APIMiddleware: []gin.HandlerFunc{func(c *gin.Context) {
			sawAPI = true
			c.Next()
		}},
	})
	if err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}
	if !m.called {
		t.Fatal("module RegisterRoutes was not called")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Errorf("GET /api/v1/ping = %d %q", w.Code, w.Body.String())
	}
	if !sawAPI {
		t.Error("API middleware did not run")
	}

	sawAPI = false
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d", w.Code)
	}
	if sawAPI {
		t.Error("API middleware ran for /health")
	}
}

func TestRegisterRoutes_FallbackHandlers(t *testing.T) {
	r := gin.New()
	if err := RegisterRoutes(r, &RouteDeps{Modules: []Module{&mockModule{}}}); err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantMsg  string
	}{
		{http.MethodGet, "/nonexistent", http.StatusNotFound, "not found"},
		{http.MethodGet, "/api/v1/nope/deeper", http.StatusNotFound, "not found"},
		{http.MethodPost, "/api/v1/ping", http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d; want %d", w.Code, tt.wantCode)
			}
			body := decodeBody(t, w)
			if body["message"] != tt.wantMsg {
				t.Errorf("message = %v; want %q", body["message"], tt.wantMsg)
			}
			if body["code"] != float64(tt.wantCode) {
				t.Errorf("code = %v; want %d", body["code"], tt.wantCode)
			}
			if body["data"] != nil {
				t.Errorf("data = %v; want nil", body["data"])
			}
		})
	}
}
