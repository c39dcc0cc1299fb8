package view

import (
	"github.com/simp-lee/crmdesk/internal/collection"
	"github.com/simp-lee/crmdesk/internal/domain"
)

// MountRequest represents the input for mounting a list view.
type MountRequest struct {
	Entity   string `json:"entity" binding:"required,max=64"`
	PageSize int    `json:"page_size" binding:"omitempty,min=1"`
	ViewMode string `json:"view_mode" binding:"omitempty,max=32"`
}

// PageRequest moves a view to a page. Negative indexes clamp to 0.
type PageRequest struct {
	Index *int `json:"index" binding:"required"`
}

// PageSizeRequest changes the page size. Values are clamped to the
// view's limits.
type PageSizeRequest struct {
	Size *int `json:"size" binding:"required"`
}

// SortRequest selects the sort key. An empty key restores the default sort.
type SortRequest struct {
	Key       string `json:"key" binding:"max=64"`
	Direction string `json:"direction" binding:"omitempty,max=8"`
}

// SearchRequest carries the raw search input.
type SearchRequest struct {
	Text string `json:"text" binding:"max=256"`
}

// ViewModeRequest switches the render mode.
type ViewModeRequest struct {
	Mode string `json:"mode" binding:"required,max=32"`
}

// ViewModesRequest narrows the render modes a view offers. Every mode must
// be one the entity is configured with.
type ViewModesRequest struct {
	Modes []string `json:"modes" binding:"required,min=1,dive,required,max=32"`
}

// FilterRequest replaces the where items contributed by one filter source.
type FilterRequest struct {
	Where []domain.Where `json:"where" binding:"dive"`
}

// ViewResponse is a view session with its current state.
type ViewResponse struct {
	ID     string           `json:"id"`
	Entity string           `json:"entity"`
	State  collection.State `json:"state"`
}

func newViewResponse(s *Session, st collection.State) ViewResponse {
	return ViewResponse{ID: s.ID(), Entity: s.Entity(), State: st}
}
