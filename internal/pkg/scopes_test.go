package pkg

import (
	"testing"

	"gorm.io/gorm"

	"github.com/simp-lee/crmdesk/internal/domain"
)

var testColumns = Columns{
	"name":         {Name: "name"},
	"status":       {Name: "status"},
	"city":         {Name: "city"},
	"price":        {Name: "price", Numeric: true},
	"bedroomCount": {Name: "bedroom_count", Numeric: true},
	"evil":         {Name: "name; DROP TABLE records"},
}

func seedScopeDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTxTestDB(t)
	rows := []domain.Record{
		{ID: "1", Entity: "RealEstateProperty", Name: "Harbour loft", Status: "Active", City: "Lisbon", Price: 450000, BedroomCount: 2},
		{ID: "2", Entity: "RealEstateProperty", Name: "Hill villa", Status: "Active", City: "Porto", Price: 900000, BedroomCount: 5},
		{ID: "3", Entity: "RealEstateProperty", Name: "City studio", Status: "Sold", City: "Lisbon", Price: 180000, BedroomCount: 1},
		{ID: "4", Entity: "RealEstateProperty", Name: "Garden house", Status: "Draft", City: "", Price: 620000, BedroomCount: 3},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func ids(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var out []string
	if err := db.Model(&domain.Record{}).Order("id").Pluck("id", &out).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPaginateAndSort(t *testing.T) {
	db := seedScopeDB(t)

	var got []string
	err := db.Model(&domain.Record{}).
		Scopes(Sort(domain.ListParams{OrderBy: "price", Order: "desc"}, testColumns),
			Paginate(domain.ListParams{Offset: 1, MaxSize: 2})).
		Pluck("id", &got).Error
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if want := []string{"4", "1"}; !sameIDs(got, want) {
		t.Errorf("ids = %v; want %v", got, want)
	}
}

func TestSort_IgnoresUnknownAndUnsafe(t *testing.T) {
	tests := []struct {
		name    string
		orderBy string
		applied bool
	}{
		{"known", "bedroomCount", true},
		{"unknown", "password", false},
		{"empty", "", false},
		{"unsafe column", "evil", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTxTestDB(t)
			stmt := db.Session(&gorm.Session{DryRun: true}).Model(&domain.Record{}).
				Scopes(Sort(domain.ListParams{OrderBy: tt.orderBy}, testColumns)).
				Find(&[]domain.Record{}).Statement
			_, has := stmt.Clauses["ORDER BY"]
			if has != tt.applied {
				t.Errorf("ORDER BY applied = %v; want %v", has, tt.applied)
			}
		})
	}
}

func TestTextFilter(t *testing.T) {
	db := seedScopeDB(t)

	got := ids(t, db.Scopes(TextFilter("lisbon", "name", "city")))
	if want := []string{"1", "3"}; !sameIDs(got, want) {
		t.Errorf("ids = %v; want %v", got, want)
	}
	if got := ids(t, db.Scopes(TextFilter("   ", "name"))); len(got) != 4 {
		t.Errorf("blank text filter matched %d rows; want 4", len(got))
	}
}

func TestWhere(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.Where
		want  []string
	}{
		{"equals", []domain.Where{{Type: domain.WhereEquals, Attribute: "status", Value: "Active"}}, []string{"1", "2"}},
		{"not equals", []domain.Where{{Type: domain.WhereNotEquals, Attribute: "status", Value: "Active"}}, []string{"3", "4"}},
		{"greater than numeric string", []domain.Where{{Type: domain.WhereGreaterThan, Attribute: "price", Value: "500000"}}, []string{"2", "4"}},
		{"less than", []domain.Where{{Type: domain.WhereLessThan, Attribute: "bedroomCount", Value: 2}}, []string{"3"}},
		{"in", []domain.Where{{Type: domain.WhereIn, Attribute: "status", Value: []any{"Sold", "Draft"}}}, []string{"3", "4"}},
		{"not in", []domain.Where{{Type: domain.WhereNotIn, Attribute: "city", Value: []string{"Lisbon"}}}, []string{"2", "4"}},
		{"empty in", []domain.Where{{Type: domain.WhereIn, Attribute: "city", Value: []any{}}}, nil},
		{"contains", []domain.Where{{Type: domain.WhereContains, Attribute: "name", Value: "ill"}}, []string{"2"}},
		{"like", []domain.Where{{Type: domain.WhereLike, Attribute: "name", Value: "H%"}}, []string{"1", "2"}},
		{"and merged", []domain.Where{
			{Type: domain.WhereEquals, Attribute: "city", Value: "Lisbon"},
			{Type: domain.WhereEquals, Attribute: "status", Value: "Active"},
		}, []string{"1"}},
		{"or group", []domain.Where{{Type: domain.WhereOr, Items: []domain.Where{
			{Type: domain.WhereGreaterThan, Attribute: "price", Value: "800000"},
			{Type: domain.WhereEquals, Attribute: "status", Value: "Sold"},
		}}}, []string{"2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := seedScopeDB(t)
			got := ids(t, db.Scopes(Where(tt.items, testColumns)))
			if !sameIDs(got, tt.want) {
				t.Errorf("ids = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestWhere_Invalid(t *testing.T) {
	tests := []struct {
		name string
		item domain.Where
	}{
		{"unknown attribute", domain.Where{Type: domain.WhereEquals, Attribute: "password", Value: "x"}},
		{"unsafe column", domain.Where{Type: domain.WhereIsNull, Attribute: "evil"}},
		{"list for scalar", domain.Where{Type: domain.WhereEquals, Attribute: "status", Value: []any{"a"}}},
		{"missing value", domain.Where{Type: domain.WhereGreaterThan, Attribute: "price"}},
		{"non-numeric", domain.Where{Type: domain.WhereGreaterThan, Attribute: "price", Value: "cheap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTxTestDB(t)
			err := db.Model(&domain.Record{}).Scopes(Where([]domain.Where{tt.item}, testColumns)).
				Find(&[]domain.Record{}).Error
			if !domain.IsValidation(err) {
				t.Fatalf("error = %v; want validation error", err)
			}
		})
	}
}
