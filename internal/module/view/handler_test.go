package view

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crmdesk/internal/pkg"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type viewEnvelope struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    ViewResponse `json:"data"`
}

func setupViewRouter(t *testing.T, b Backend) (*gin.Engine, *Registry) {
	t.Helper()
	reg := newTestRegistry(t, b, Options{})
	r := gin.New()
	NewModule(NewViewHandler(reg)).RegisterRoutes(r.Group("/api/v1"))
	return r, reg
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) ViewResponse {
	t.Helper()
	var env viewEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal %s: %v", w.Body.String(), err)
	}
	return env.Data
}

func mountViaAPI(t *testing.T, r http.Handler, body string) ViewResponse {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/views", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("mount status = %d; body %s", w.Code, w.Body.String())
	}
	return decodeView(t, w)
}

func TestViewHandler_MountAndGet(t *testing.T) {
	r, _ := setupViewRouter(t, &fakeBackend{total: 45})

	v := mountViaAPI(t, r, `{"entity":"RealEstateProperty","view_mode":"grid"}`)
	if v.ID == "" || v.Entity != "RealEstateProperty" {
		t.Fatalf("mounted view = %+v", v)
	}

	w := doJSON(r, http.MethodGet, "/api/v1/views/"+v.ID+"?wait=2s", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeView(t, w)
	if got.State.Loading || got.State.Total != 45 || len(got.State.Records) != 20 {
		t.Errorf("state = loading %v, total %d, records %d", got.State.Loading, got.State.Total, len(got.State.Records))
	}
	if got.State.ViewMode != "grid" {
		t.Errorf("ViewMode = %q; want grid", got.State.ViewMode)
	}
}

func TestViewHandler_MountErrors(t *testing.T) {
	r, _ := setupViewRouter(t, &fakeBackend{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing entity", `{}`, http.StatusBadRequest},
		{"zero page size uses default", `{"entity":"Lead","page_size":0}`, http.StatusCreated},
		{"negative page size", `{"entity":"Lead","page_size":-5}`, http.StatusBadRequest},
		{"unknown entity", `{"entity":"Invoice"}`, http.StatusNotFound},
		{"view mode not offered", `{"entity":"Lead","view_mode":"map"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/v1/views", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d; want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestViewHandler_UnknownView(t *testing.T) {
	r, _ := setupViewRouter(t, &fakeBackend{})

	for _, path := range []string{"/api/v1/views/nope", "/api/v1/views/nope/refresh"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "refresh") {
			method = http.MethodPost
		}
		if w := doJSON(r, method, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d; want 404", method, path, w.Code)
		}
	}
}

func TestViewHandler_Intents(t *testing.T) {
	b := &fakeBackend{total: 500}
	r, reg := setupViewRouter(t, b)
	v := mountViaAPI(t, r, `{"entity":"RealEstateProperty"}`)
	base := "/api/v1/views/" + v.ID

	steps := []struct {
		name   string
		method string
		path   string
		body   string
		check  func(t *testing.T, got ViewResponse)
	}{
		{"page", http.MethodPut, "/page", `{"index":3}`, func(t *testing.T, got ViewResponse) {
			if got.State.PageIndex != 3 {
				t.Errorf("PageIndex = %d; want 3", got.State.PageIndex)
			}
		}},
		{"page size resets offset", http.MethodPut, "/page-size", `{"size":100000}`, func(t *testing.T, got ViewResponse) {
			if got.State.PageSize != 200 || got.State.PageIndex != 0 {
				t.Errorf("page = %d size = %d; want 0, 200", got.State.PageIndex, got.State.PageSize)
			}
		}},
		{"sort", http.MethodPut, "/sort", `{"key":"price","direction":"DESC"}`, func(t *testing.T, got ViewResponse) {
			if got.State.Sort.Key != "price" || got.State.Sort.Direction != "desc" {
				t.Errorf("Sort = %+v", got.State.Sort)
			}
		}},
		{"search", http.MethodPut, "/search", `{"text":"harbour"}`, func(t *testing.T, got ViewResponse) {
			if got.State.RawSearch != "harbour" {
				t.Errorf("RawSearch = %q", got.State.RawSearch)
			}
		}},
		{"view mode", http.MethodPut, "/view-mode", `{"mode":"map"}`, func(t *testing.T, got ViewResponse) {
			if got.State.ViewMode != "map" {
				t.Errorf("ViewMode = %q", got.State.ViewMode)
			}
		}},
		{"narrow view modes", http.MethodPut, "/view-modes", `{"modes":["table","grid"]}`, func(t *testing.T, got ViewResponse) {
			if !slices.Equal(got.State.ViewModes, []string{"table", "grid"}) {
				t.Errorf("ViewModes = %v; want [table grid]", got.State.ViewModes)
			}
			if got.State.ViewMode != "table" {
				t.Errorf("ViewMode = %q; want fallback to table", got.State.ViewMode)
			}
		}},
		{"filter", http.MethodPut, "/filters/panel", `{"where":[{"type":"equals","attribute":"status","value":"Active"}]}`, func(t *testing.T, got ViewResponse) {
			if len(got.State.Filters["panel"]) != 1 {
				t.Errorf("Filters = %v", got.State.Filters)
			}
		}},
		{"clear filter", http.MethodDelete, "/filters/panel", "", func(t *testing.T, got ViewResponse) {
			if len(got.State.Filters["panel"]) != 0 {
				t.Errorf("Filters = %v; want cleared", got.State.Filters)
			}
		}},
	}
	for _, st := range steps {
		w := doJSON(r, st.method, base+st.path, st.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d (%s)", st.name, w.Code, w.Body.String())
		}
		st.check(t, decodeView(t, w))
	}

	s, err := reg.Get(v.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	settle(t, s)
	before := b.fetchCount()
	if w := doJSON(r, http.MethodPost, base+"/refresh", ""); w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}
	settle(t, s)
	if b.fetchCount() != before+1 {
		t.Errorf("fetches = %d; want %d after refresh", b.fetchCount(), before+1)
	}
}

func TestViewHandler_IntentValidation(t *testing.T) {
	r, _ := setupViewRouter(t, &fakeBackend{})
	v := mountViaAPI(t, r, `{"entity":"RealEstateProperty"}`)
	base := "/api/v1/views/" + v.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"page missing index", http.MethodPut, "/page", `{}`},
		{"page size missing", http.MethodPut, "/page-size", `{}`},
		{"unknown view mode", http.MethodPut, "/view-mode", `{"mode":"calendar"}`},
		{"view modes empty", http.MethodPut, "/view-modes", `{"modes":[]}`},
		{"view modes not configured", http.MethodPut, "/view-modes", `{"modes":["table","calendar"]}`},
		{"filter missing type", http.MethodPut, "/filters/panel", `{"where":[{"attribute":"status"}]}`},
		{"filter bad group", http.MethodPut, "/filters/panel", `{"where":[{"type":"or"}]}`},
		{"bad wait", http.MethodGet, "?wait=soon", ""},
		{"empty record", http.MethodPost, "/records", `{}`},
		{"malformed record", http.MethodPost, "/records", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, tt.method, base+tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestViewHandler_Records(t *testing.T) {
	b := &fakeBackend{total: 2}
	r, _ := setupViewRouter(t, b)
	v := mountViaAPI(t, r, `{"entity":"RealEstateProperty"}`)
	base := "/api/v1/views/" + v.ID

	w := doJSON(r, http.MethodPost, base+"/records", `{"name":"Harbour loft","price":450000}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	var created pkg.Response
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec, _ := created.Data.(map[string]any); rec["name"] != "Harbour loft" {
		t.Errorf("created = %v", created.Data)
	}

	if w := doJSON(r, http.MethodPut, base+"/records/r-1", `{"status":"Sold"}`); w.Code != http.StatusOK {
		t.Errorf("update status = %d (%s)", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodDelete, base+"/records/r-0", ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d (%s)", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodDelete, base+"/records/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d; want 404", w.Code)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.created) != 1 || len(b.updated) != 1 || len(b.deleted) != 1 {
		t.Errorf("backend saw created=%d updated=%d deleted=%d", len(b.created), len(b.updated), len(b.deleted))
	}
}

func TestViewHandler_ReadOnlyRecords(t *testing.T) {
	r, _ := setupViewRouter(t, &fakeBackend{})
	v := mountViaAPI(t, r, `{"entity":"Lead"}`)

	w := doJSON(r, http.MethodPost, "/api/v1/views/"+v.ID+"/records", `{"name":"Jo"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want 500 for read-only view", w.Code)
	}
}

func TestViewHandler_ListAndUnmount(t *testing.T) {
	r, reg := setupViewRouter(t, &fakeBackend{})
	a := mountViaAPI(t, r, `{"entity":"Lead"}`)
	mountViaAPI(t, r, `{"entity":"RealEstateProperty"}`)

	w := doJSON(r, http.MethodGet, "/api/v1/views", "")
	var env struct {
		Data struct {
			List  []Info `json:"list"`
			Total int64  `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Data.Total != 2 || len(env.Data.List) != 2 {
		t.Fatalf("list = %+v", env.Data)
	}

	if w := doJSON(r, http.MethodDelete, "/api/v1/views/"+a.ID, ""); w.Code != http.StatusOK {
		t.Fatalf("unmount status = %d", w.Code)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d; want 1", reg.Len())
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/views/"+a.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after unmount status = %d; want 404", w.Code)
	}
}

func TestNewModule_NilHandlerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewModule(nil) should panic")
		}
	}()
	NewModule(nil)
}
