package view

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crmdesk/internal/collection"
	"github.com/simp-lee/crmdesk/internal/domain"
	"github.com/simp-lee/crmdesk/internal/pkg"
)

const maxWait = 30 * time.Second

// ViewHandler handles REST API requests for mounted list views.
type ViewHandler struct {
	reg *Registry
}

// NewViewHandler creates a new ViewHandler backed by reg.
func NewViewHandler(reg *Registry) *ViewHandler {
	return &ViewHandler{reg: reg}
}

// Mount handles POST /api/v1/views.
func (h *ViewHandler) Mount(c *gin.Context) {
	var req MountRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	s, err := h.reg.Mount(c.Request.Context(), MountInput{
		Entity:   req.Entity,
		PageSize: req.PageSize,
		ViewMode: req.ViewMode,
	})
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, newViewResponse(s, s.Controller().State()))
}

// List handles GET /api/v1/views.
func (h *ViewHandler) List(c *gin.Context) {
	infos := h.reg.List()
	pkg.List(c, infos, int64(len(infos)))
}

// Get handles GET /api/v1/views/:id. With ?wait=<duration> it holds the
// response until the pending fetch settles or the wait elapses.
func (h *ViewHandler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	raw := c.Query("wait")
	if raw == "" {
		pkg.Success(c, newViewResponse(s, s.Controller().State()))
		return
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("invalid wait %q", raw), err))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), min(wait, maxWait))
	defer cancel()
	pkg.Success(c, newViewResponse(s, s.Wait(ctx)))
}

// Unmount handles DELETE /api/v1/views/:id.
func (h *ViewHandler) Unmount(c *gin.Context) {
	if err := h.reg.Unmount(c.Request.Context(), c.Param("id")); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// SetPage handles PUT /api/v1/views/:id/page.
func (h *ViewHandler) SetPage(c *gin.Context) {
	var req PageRequest
	h.apply(c, &req, func(ctrl *collection.Controller) error {
		ctrl.SetPageIndex(*req.Index)
		return nil
	})
}

// SetPageSize handles PUT /api/v1/views/:id/page-size.
func (h *ViewHandler) SetPageSize(c *gin.Context) {
	var req PageSizeRequest
	h.apply(c, &req, func(ctrl *collection.Controller) error {
		ctrl.SetPageSize(*req.Size)
		return nil
	})
}

// SetSort handles PUT /api/v1/views/:id/sort.
func (h *ViewHandler) SetSort(c *gin.Context) {
	var req SortRequest
	h.apply(c, &req, func(ctrl *collection.Controller) error {
		dir, _ := collection.ParseDirection(req.Direction)
		ctrl.SetSort(req.Key, dir)
		return nil
	})
}

// SetSearch handles PUT /api/v1/views/:id/search.
func (h *ViewHandler) SetSearch(c *gin.Context) {
	var req SearchRequest
	h.apply(c, &req, func(ctrl *collection.Controller) error {
		ctrl.SetSearchInput(req.Text)
		return nil
	})
}

// SetViewMode handles PUT /api/v1/views/:id/view-mode.
func (h *ViewHandler) SetViewMode(c *gin.Context) {
	var req ViewModeRequest
	h.apply(c, &req, func(ctrl *collection.Controller) error {
		if !ctrl.SetViewMode(req.Mode) {
			return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("view mode %q is not offered", req.Mode), nil)
		}
		return nil
	})
}

// SetViewModes handles PUT /api/v1/views/:id/view-modes.
func (h *ViewHandler) SetViewModes(c *gin.Context) {
	var req ViewModesRequest
	h.apply(c, &req, func(ctrl *collection.Controller) error {
		offered := ctrl.Config().ViewModes
		for _, mode := range req.Modes {
			if !slices.Contains(offered, mode) {
				return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("view mode %q is not offered", mode), nil)
			}
		}
		if !ctrl.SetViewModes(req.Modes) {
			return domain.ErrClosed
		}
		return nil
	})
}

// SetFilter handles PUT /api/v1/views/:id/filters/:source.
func (h *ViewHandler) SetFilter(c *gin.Context) {
	var req FilterRequest
	h.apply(c, &req, func(ctrl *collection.Controller) error {
		if err := domain.ValidateWhere(req.Where); err != nil {
			return err
		}
		ctrl.SetFilter(c.Param("source"), req.Where)
		return nil
	})
}

// ClearFilter handles DELETE /api/v1/views/:id/filters/:source.
func (h *ViewHandler) ClearFilter(c *gin.Context) {
	h.apply(c, nil, func(ctrl *collection.Controller) error {
		ctrl.ClearFilter(c.Param("source"))
		return nil
	})
}

// Refresh handles POST /api/v1/views/:id/refresh.
func (h *ViewHandler) Refresh(c *gin.Context) {
	h.apply(c, nil, func(ctrl *collection.Controller) error {
		ctrl.Refresh()
		return nil
	})
}

// CreateRecord handles POST /api/v1/views/:id/records.
func (h *ViewHandler) CreateRecord(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	payload, ok := bindRecord(c)
	if !ok {
		return
	}
	rec, err := s.Controller().Create(c.Request.Context(), payload)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, rec)
}

// UpdateRecord handles PUT /api/v1/views/:id/records/:recordId.
func (h *ViewHandler) UpdateRecord(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	payload, ok := bindRecord(c)
	if !ok {
		return
	}
	rec, err := s.Controller().Update(c.Request.Context(), c.Param("recordId"), payload)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, rec)
}

// DeleteRecord handles DELETE /api/v1/views/:id/records/:recordId.
func (h *ViewHandler) DeleteRecord(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Controller().Delete(c.Request.Context(), c.Param("recordId")); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// apply binds req (when non-nil), runs fn against the session's controller
// and responds with the resulting state.
func (h *ViewHandler) apply(c *gin.Context, req any, fn func(ctrl *collection.Controller) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if req != nil && !pkg.BindAndValidate(c, req) {
		return
	}
	if err := fn(s.Controller()); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, newViewResponse(s, s.Controller().State()))
}

func (h *ViewHandler) session(c *gin.Context) (*Session, bool) {
	s, err := h.reg.Get(c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return nil, false
	}
	return s, true
}

func bindRecord(c *gin.Context) (collection.Record, bool) {
	var payload collection.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		pkg.ValidationError(c, err)
		return nil, false
	}
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, pkg.Response{
			Code:    http.StatusBadRequest,
			Message: "record payload is empty",
		})
		return nil, false
	}
	return payload, true
}
