package stub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/simp-lee/crmdesk/internal/domain"
)

type demoProperty struct {
	name, status, kind, city string
	price                    float64
	bedrooms                 int
	lat, lng                 float64
}

var demoProperties = []demoProperty{
	{"Harbour view loft", "Active", "Apartment", "Lisbon", 450000, 2, 38.7077, -9.1366},
	{"Alfama townhouse", "Active", "House", "Lisbon", 690000, 4, 38.7110, -9.1300},
	{"Belém studio", "Sold", "Apartment", "Lisbon", 180000, 0, 38.6979, -9.2065},
	{"Ribeira duplex", "Active", "Apartment", "Porto", 520000, 3, 41.1408, -8.6132},
	{"Foz beach villa", "Draft", "Villa", "Porto", 1250000, 5, 41.1537, -8.6760},
	{"Boavista office", "Active", "Commercial", "Porto", 900000, 0, 41.1579, -8.6291},
	{"Old town flat", "Active", "Apartment", "Coimbra", 210000, 2, 40.2089, -8.4265},
	{"Marina penthouse", "Active", "Apartment", "Faro", 780000, 3, 37.0146, -7.9331},
	{"Cliffside cottage", "Sold", "House", "Lagos", 395000, 2, 37.1028, -8.6730},
	{"Vineyard estate", "Active", "Villa", "Braga", 1600000, 6, 41.5454, -8.4265},
	{"University room block", "Draft", "Commercial", "Coimbra", 640000, 12, 40.2079, -8.4216},
	{"Riverside plot", "Active", "Land", "Aveiro", 95000, 0, 40.6405, -8.6538},
}

type demoLead struct {
	name, status, city, description string
}

var demoLeads = []demoLead{
	{"Ana Ribeiro", "New", "Lisbon", "Looking for a two bedroom flat near the river."},
	{"Miguel Costa", "Assigned", "Porto", "Relocating for work in spring."},
	{"Sofia Almeida", "In Process", "Faro", "Wants a holiday home with a sea view."},
	{"Tiago Ferreira", "Converted", "Braga", ""},
	{"Inês Carvalho", "Recycled", "Coimbra", "Budget under 250k."},
	{"Rui Martins", "Dead", "Lisbon", "Stopped answering calls."},
}

// Seed inserts demo records into every listed entity that has none yet.
// Entities without demo data are skipped.
func Seed(ctx context.Context, svc domain.RecordService, entities []string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	for _, entity := range entities {
		inputs := demoInputs(entity)
		if len(inputs) == 0 {
			continue
		}
		existing, err := svc.ListRecords(ctx, entity, domain.ListParams{MaxSize: 1})
		if err != nil {
			return fmt.Errorf("seed %s: %w", entity, err)
		}
		if existing.Total > 0 {
			continue
		}
		for _, in := range inputs {
			if _, err := svc.CreateRecord(ctx, entity, in); err != nil {
				return fmt.Errorf("seed %s: %w", entity, err)
			}
		}
		log.InfoContext(ctx, "seeded demo records",
			slog.String("entity", entity),
			slog.Int("count", len(inputs)),
		)
	}
	return nil
}

func demoInputs(entity string) []domain.RecordInput {
	var out []domain.RecordInput
	switch entity {
	case "RealEstateProperty":
		for _, p := range demoProperties {
			out = append(out, domain.RecordInput{
				Name:         ptr(p.name),
				Status:       ptr(p.status),
				Type:         ptr(p.kind),
				City:         ptr(p.city),
				Price:        ptr(p.price),
				BedroomCount: ptr(p.bedrooms),
				Latitude:     ptr(p.lat),
				Longitude:    ptr(p.lng),
			})
		}
	case "Lead":
		for _, l := range demoLeads {
			out = append(out, domain.RecordInput{
				Name:        ptr(l.name),
				Status:      ptr(l.status),
				City:        ptr(l.city),
				Description: ptr(l.description),
			})
		}
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
