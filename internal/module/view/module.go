package view

import "github.com/gin-gonic/gin"

// ViewModule implements the app.Module interface for hosted list views.
type ViewModule struct {
	handler *ViewHandler
}

// NewModule creates a new ViewModule with the given handler.
// Panics if h is nil.
func NewModule(h *ViewHandler) *ViewModule {
	if h == nil {
		panic("view.NewModule: handler must not be nil")
	}
	return &ViewModule{handler: h}
}

// RegisterRoutes registers the view session API under /views.
func (m *ViewModule) RegisterRoutes(api *gin.RouterGroup) {
	views := api.Group("/views")
	views.POST("", m.handler.Mount)
	views.GET("", m.handler.List)
	views.GET("/:id", m.handler.Get)
	views.DELETE("/:id", m.handler.Unmount)

	views.PUT("/:id/page", m.handler.SetPage)
	views.PUT("/:id/page-size", m.handler.SetPageSize)
	views.PUT("/:id/sort", m.handler.SetSort)
	views.PUT("/:id/search", m.handler.SetSearch)
	views.PUT("/:id/view-mode", m.handler.SetViewMode)
	views.PUT("/:id/view-modes", m.handler.SetViewModes)
	views.PUT("/:id/filters/:source", m.handler.SetFilter)
	views.DELETE("/:id/filters/:source", m.handler.ClearFilter)
	views.POST("/:id/refresh", m.handler.Refresh)

	views.POST("/:id/records", m.handler.CreateRecord)
	views.PUT("/:id/records/:recordId", m.handler.UpdateRecord)
	views.DELETE("/:id/records/:recordId", m.handler.DeleteRecord)
}
