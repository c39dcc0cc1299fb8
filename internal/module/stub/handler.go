package stub

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crmdesk/internal/domain"
	"github.com/simp-lee/crmdesk/internal/pkg"
)

const (
	// maxListSize is the largest maxSize the stub honors.
	maxListSize = 200

	// statusReasonHeader carries the error message next to the JSON body.
	statusReasonHeader = "X-Status-Reason"
)

// CurrentUser is returned by GET /api/v1/App/user.
type CurrentUser struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Name     string `json:"name"`
}

// RecordHandler serves the CRM list and record API. Successful responses
// use the CRM's bare JSON bodies; errors use the standard envelope.
type RecordHandler struct {
	svc  domain.RecordService
	user CurrentUser
}

// NewRecordHandler creates a new RecordHandler with the given service.
func NewRecordHandler(svc domain.RecordService) *RecordHandler {
	return &RecordHandler{
		svc:  svc,
		user: CurrentUser{ID: "stub-admin", UserName: "admin", Name: "Stub Admin"},
	}
}

// List handles GET /api/v1/:entity.
func (h *RecordHandler) List(c *gin.Context) {
	params, err := pkg.ParseListParams(c, maxListSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.svc.ListRecords(c.Request.Context(), c.Param("entity"), params)
	if err != nil {
		h.fail(c, err)
		return
	}

	if len(params.Select) == 0 {
		c.JSON(http.StatusOK, result)
		return
	}
	list, err := project(result.List, params.Select)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": result.Total})
}

// Get handles GET /api/v1/:entity/:id. GET /api/v1/App/user answers with
// the current user.
func (h *RecordHandler) Get(c *gin.Context) {
	if c.Param("entity") == "App" && c.Param("id") == "user" {
		c.JSON(http.StatusOK, gin.H{"user": h.user})
		return
	}

	record, err := h.svc.GetRecord(c.Request.Context(), c.Param("entity"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Create handles POST /api/v1/:entity.
func (h *RecordHandler) Create(c *gin.Context) {
	var input domain.RecordInput
	if !pkg.BindAndValidate(c, &input) {
		return
	}

	record, err := h.svc.CreateRecord(c.Request.Context(), c.Param("entity"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Update handles PUT /api/v1/:entity/:id.
func (h *RecordHandler) Update(c *gin.Context) {
	var input domain.RecordInput
	if !pkg.BindAndValidate(c, &input) {
		return
	}

	record, err := h.svc.UpdateRecord(c.Request.Context(), c.Param("entity"), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Delete handles DELETE /api/v1/:entity/:id.
func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteRecord(c.Request.Context(), c.Param("entity"), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, true)
}

func (h *RecordHandler) fail(c *gin.Context, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		c.Header(statusReasonHeader, appErr.Message)
	}
	pkg.Error(c, err)
}

// project reduces each record to the selected attributes. The id is always
// kept.
func project(records []domain.Record, attrs []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var full map[string]any
		if err := json.Unmarshal(data, &full); err != nil {
			return nil, err
		}
		row := map[string]any{"id": r.ID}
		for _, a := range attrs {
			if v, ok := full[a]; ok {
				row[a] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}
