package stub

import "github.com/gin-gonic/gin"

// StubModule implements the app.Module interface for the CRM stub API.
type StubModule struct {
	handler *RecordHandler
}

// NewModule creates a new StubModule with the given handler.
// Panics if h is nil.
func NewModule(h *RecordHandler) *StubModule {
	if h == nil {
		panic("stub.NewModule: handler must not be nil")
	}
	return &StubModule{handler: h}
}

// RegisterRoutes registers the entity routes on api.
func (m *StubModule) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/:entity", m.handler.List)
	api.POST("/:entity", m.handler.Create)
	api.GET("/:entity/:id", m.handler.Get)
	api.PUT("/:entity/:id", m.handler.Update)
	api.DELETE("/:entity/:id", m.handler.Delete)
}
