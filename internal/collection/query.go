// Package collection implements a paged view over a remote record
// collection. A Machine holds pagination, sort, search, filter and view-mode
// state and turns intents into fetch commands; a Controller runs the machine
// on a single event loop and executes those commands against a Fetcher.
package collection

import (
	"reflect"
	"slices"
	"strings"

	"github.com/simp-lee/crmdesk/internal/domain"
)

// Record is one opaque row of the remote collection.
type Record map[string]any

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection parses "asc" or "desc", case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Asc):
		return Asc, true
	case string(Desc):
		return Desc, true
	default:
		return "", false
	}
}

// Sort is the single active sort key.
type Sort struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

// IsZero reports whether no sort is set.
func (s Sort) IsZero() bool {
	return s.Key == ""
}

func normalizeSort(key string, dir Direction) Sort {
	key = strings.TrimSpace(key)
	if key == "" {
		return Sort{}
	}
	if dir != Desc {
		dir = Asc
	}
	return Sort{Key: key, Direction: dir}
}

// Query fully determines one fetch.
type Query struct {
	Entity     string
	Offset     int
	PageSize   int
	Sort       Sort
	SearchText string
	Select     []string
	Where      []domain.Where
}

// Equal reports whether q and o would request the same page.
func (q Query) Equal(o Query) bool {
	return q.Entity == o.Entity &&
		q.Offset == o.Offset &&
		q.PageSize == o.PageSize &&
		q.Sort == o.Sort &&
		q.SearchText == o.SearchText &&
		slices.Equal(q.Select, o.Select) &&
		whereEqual(q.Where, o.Where)
}

func whereEqual(a, b []domain.Where) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Page is one fetch result. Total counts every record matching the query,
// independent of paging.
type Page struct {
	Records []Record `json:"list"`
	Total   int      `json:"total"`
}
