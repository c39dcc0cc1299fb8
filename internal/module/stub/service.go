package stub

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simp-lee/crmdesk/internal/domain"
	"github.com/simp-lee/crmdesk/internal/pkg"
)

const maxNameLength = 255

// recordService implements domain.RecordService for a fixed set of entities.
type recordService struct {
	db       *gorm.DB
	repo     domain.RecordRepository
	entities []string
}

// NewRecordService creates a RecordService over db that serves only the
// given entity names.
func NewRecordService(db *gorm.DB, entities []string) domain.RecordService {
	return &recordService{
		db:       db,
		repo:     NewRecordRepository(db),
		entities: slices.Clone(entities),
	}
}

// CreateRecord validates input and stores a new record of entity under a
// fresh id.
func (s *recordService) CreateRecord(ctx context.Context, entity string, input domain.RecordInput) (*domain.Record, error) {
	if err := s.checkEntity(entity); err != nil {
		return nil, err
	}
	if input.Name == nil {
		return nil, domain.NewAppError(domain.CodeValidation, "name is required", nil)
	}

	record := &domain.Record{ID: uuid.NewString(), Entity: entity}
	if err := applyInput(record, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetRecord retrieves a record of entity by id.
func (s *recordService) GetRecord(ctx context.Context, entity, id string) (*domain.Record, error) {
	if err := s.checkEntity(entity); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, entity, id)
}

// ListRecords returns one page of entity's records.
func (s *recordService) ListRecords(ctx context.Context, entity string, params domain.ListParams) (*domain.RecordList, error) {
	if err := s.checkEntity(entity); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, entity, params)
}

// UpdateRecord applies the non-nil fields of input to an existing record
// inside a transaction.
func (s *recordService) UpdateRecord(ctx context.Context, entity, id string, input domain.RecordInput) (*domain.Record, error) {
	if err := s.checkEntity(entity); err != nil {
		return nil, err
	}

	var updated *domain.Record
	err := pkg.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		repo := NewRecordRepository(tx)
		record, err := repo.GetByID(ctx, entity, id)
		if err != nil {
			return err
		}
		if err := applyInput(record, input); err != nil {
			return err
		}
		if err := repo.Update(ctx, record); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRecord removes a record of entity by id.
func (s *recordService) DeleteRecord(ctx context.Context, entity, id string) error {
	if err := s.checkEntity(entity); err != nil {
		return err
	}
	return s.repo.Delete(ctx, entity, id)
}

func (s *recordService) checkEntity(entity string) error {
	if !slices.Contains(s.entities, entity) {
		return domain.NewAppError(domain.CodeNotFound, fmt.Sprintf("entity %q not found", entity), nil)
	}
	return nil
}

// applyInput copies the non-nil fields of in onto r after validating them.
func applyInput(r *domain.Record, in domain.RecordInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.NewAppError(domain.CodeValidation, "name is required", nil)
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("name must be at most %d characters", maxNameLength), nil)
		}
		r.Name = name
	}
	if in.Price != nil && (*in.Price < 0 || !isFinite(*in.Price)) {
		return domain.NewAppError(domain.CodeValidation, "price must be a finite non-negative number", nil)
	}
	if in.BedroomCount != nil && *in.BedroomCount < 0 {
		return domain.NewAppError(domain.CodeValidation, "bedroomCount must not be negative", nil)
	}
	if in.Latitude != nil && (!isFinite(*in.Latitude) || *in.Latitude < -90 || *in.Latitude > 90) {
		return domain.NewAppError(domain.CodeValidation, "latitude must be between -90 and 90", nil)
	}
	if in.Longitude != nil && (!isFinite(*in.Longitude) || *in.Longitude < -180 || *in.Longitude > 180) {
		return domain.NewAppError(domain.CodeValidation, "longitude must be between -180 and 180", nil)
	}

	setString(&r.Status, in.Status)
	setString(&r.Type, in.Type)
	setString(&r.City, in.City)
	setString(&r.Description, in.Description)
	if in.Price != nil {
		r.Price = *in.Price
	}
	if in.BedroomCount != nil {
		r.BedroomCount = *in.BedroomCount
	}
	if in.Latitude != nil {
		r.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		r.Longitude = *in.Longitude
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
