package stub

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/simp-lee/crmdesk/internal/domain"
	"github.com/simp-lee/crmdesk/internal/pkg"
)

// recordColumns maps CRM attribute names to record columns for sorting and
// where filters.
var recordColumns = pkg.Columns{
	"id":           {Name: "id"},
	"name":         {Name: "name"},
	"status":       {Name: "status"},
	"type":         {Name: "type"},
	"city":         {Name: "city"},
	"description":  {Name: "description"},
	"price":        {Name: "price", Numeric: true},
	"bedroomCount": {Name: "bedroom_count", Numeric: true},
	"latitude":     {Name: "latitude", Numeric: true},
	"longitude":    {Name: "longitude", Numeric: true},
	"createdAt":    {Name: "created_at"},
	"modifiedAt":   {Name: "modified_at"},
}

// textFilterColumns are matched by textFilter.
var textFilterColumns = []string{"name", "city", "description"}

// recordRepository implements domain.RecordRepository using GORM.
type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepository backed by the given GORM database.
func NewRecordRepository(db *gorm.DB) domain.RecordRepository {
	return &recordRepository{db: db}
}

// Create inserts a new record.
func (r *recordRepository) Create(ctx context.Context, record *domain.Record) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// GetByID retrieves a record of entity by its id.
func (r *recordRepository) GetByID(ctx context.Context, entity, id string) (*domain.Record, error) {
	var record domain.Record
	err := r.db.WithContext(ctx).
		Where("entity = ? AND id = ?", entity, id).
		First(&record).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &record, nil
}

// List returns one page of entity's records together with the number of
// records matching the filters.
func (r *recordRepository) List(ctx context.Context, entity string, params domain.ListParams) (*domain.RecordList, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&domain.Record{}).
		Where("entity = ?", entity).
		Scopes(
			pkg.TextFilter(params.TextFilter, textFilterColumns...),
			pkg.Where(params.Where, recordColumns),
		)

	if err := base.Count(&total).Error; err != nil {
		return nil, mapError(err)
	}

	records := []domain.Record{}
	if err := base.Scopes(
		pkg.Sort(params, recordColumns),
		orderByID,
		pkg.Paginate(params),
	).Find(&records).Error; err != nil {
		return nil, mapError(err)
	}

	return &domain.RecordList{List: records, Total: total}, nil
}

// orderByID breaks ties after the requested sort. Scopes run at execution
// time, so a chained Order would land before them.
func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

// Update saves changes to an existing record.
func (r *recordRepository) Update(ctx context.Context, record *domain.Record) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// Delete removes a record of entity by id.
func (r *recordRepository) Delete(ctx context.Context, entity, id string) error {
	result := r.db.WithContext(ctx).
		Where("entity = ? AND id = ?", entity, id).
		Delete(&domain.Record{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// mapError converts GORM errors to domain errors. AppErrors raised by the
// query scopes pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "already exists", err)
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. Not all GORM dialectors translate driver-level errors to
// gorm.ErrDuplicatedKey (the pure-Go SQLite driver doesn't).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
