package domain

import (
	"context"
	"time"
)

// Record is a CRM entity row as stored by the local CRM stub. Attribute
// names in JSON follow the CRM's camelCase wire format.
type Record struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Entity       string    `gorm:"size:64;index;not null" json:"-"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Status       string    `gorm:"size:64" json:"status"`
	Type         string    `gorm:"size:64" json:"type"`
	City         string    `gorm:"size:128" json:"city"`
	Description  string    `gorm:"type:text" json:"description"`
	Price        float64   `json:"price"`
	BedroomCount int       `json:"bedroomCount"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	CreatedAt    time.Time `json:"createdAt"`
	ModifiedAt   time.Time `gorm:"autoUpdateTime" json:"modifiedAt"`
}

// ListParams holds the CRM list dialect: offset paging, a single sort
// attribute, a free-text filter, an attribute selection, and where items.
type ListParams struct {
	Offset     int
	MaxSize    int
	OrderBy    string
	Order      string
	TextFilter string
	Select     []string
	Where      []Where
}

// RecordList is the CRM list envelope.
type RecordList struct {
	List  []Record `json:"list"`
	Total int64    `json:"total"`
}

// RecordRepository defines the data access interface for stub records.
type RecordRepository interface {
	Create(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, entity, id string) (*Record, error)
	List(ctx context.Context, entity string, params ListParams) (*RecordList, error)
	Update(ctx context.Context, record *Record) error
	Delete(ctx context.Context, entity, id string) error
}

// RecordService defines the business logic interface for stub records.
type RecordService interface {
	CreateRecord(ctx context.Context, entity string, input RecordInput) (*Record, error)
	GetRecord(ctx context.Context, entity, id string) (*Record, error)
	ListRecords(ctx context.Context, entity string, params ListParams) (*RecordList, error)
	UpdateRecord(ctx context.Context, entity, id string, input RecordInput) (*Record, error)
	DeleteRecord(ctx context.Context, entity, id string) error
}

// RecordInput is a partial record payload. Nil fields are left unchanged on
// update.
type RecordInput struct {
	Name         *string  `json:"name"`
	Status       *string  `json:"status"`
	Type         *string  `json:"type"`
	City         *string  `json:"city"`
	Description  *string  `json:"description"`
	Price        *float64 `json:"price"`
	BedroomCount *int     `json:"bedroomCount"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}
