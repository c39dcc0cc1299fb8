package collection

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config describes one hosted list view.
type Config struct {
	// Entity is the remote collection name, e.g. "RealEstateProperty".
	Entity string

	DefaultSort     Sort
	DefaultPageSize int
	MaxPageSize     int

	// SearchDebounce is the quiet period before typed search text is
	// committed. Zero commits on every keystroke.
	SearchDebounce time.Duration

	// ViewModes is the ordered allow-list of render modes, e.g. table, grid, map.
	ViewModes       []string
	DefaultViewMode string

	// Select is passed through as the attribute-selection hint.
	Select []string

	// ResetPageOnFilter is the page-reset policy for filter sources not
	// listed in FilterResetPage.
	ResetPageOnFilter bool
	FilterResetPage   map[string]bool
}

// Validate reports whether c can build a Machine.
func (c Config) Validate() error {
	_, err := c.normalize()
	return err
}

// normalize validates c and returns a copy with defaults applied.
func (c Config) normalize() (Config, error) {
	c.Entity = strings.TrimSpace(c.Entity)
	if c.Entity == "" {
		return c, errors.New("collection: entity is required")
	}

	sort := normalizeSort(c.DefaultSort.Key, c.DefaultSort.Direction)
	if sort.IsZero() {
		return c, errors.New("collection: default sort key is required")
	}
	c.DefaultSort = sort

	if c.MaxPageSize < 1 {
		return c, fmt.Errorf("collection: invalid max page size %d: must be at least 1", c.MaxPageSize)
	}
	if c.DefaultPageSize < 1 {
		return c, fmt.Errorf("collection: invalid default page size %d: must be at least 1", c.DefaultPageSize)
	}
	c.DefaultPageSize = min(c.DefaultPageSize, c.MaxPageSize)

	if c.SearchDebounce < 0 {
		return c, fmt.Errorf("collection: invalid search debounce %s: must not be negative", c.SearchDebounce)
	}

	modes, err := normalizeViewModes(c.ViewModes)
	if err != nil {
		return c, err
	}
	c.ViewModes = modes

	c.DefaultViewMode = strings.TrimSpace(c.DefaultViewMode)
	if c.DefaultViewMode == "" {
		c.DefaultViewMode = modes[0]
	}
	if !slices.Contains(modes, c.DefaultViewMode) {
		return c, fmt.Errorf("collection: default view mode %q is not in %v", c.DefaultViewMode, modes)
	}

	c.Select = slices.Clone(c.Select)
	return c, nil
}

func normalizeViewModes(modes []string) ([]string, error) {
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		m = strings.TrimSpace(m)
		if m == "" || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, errors.New("collection: at least one view mode is required")
	}
	return out, nil
}

func (c Config) resetsPage(source string) bool {
	if reset, ok := c.FilterResetPage[source]; ok {
		return reset
	}
	return c.ResetPageOnFilter
}
