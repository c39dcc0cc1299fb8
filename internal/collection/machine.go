package collection

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/simp-lee/crmdesk/internal/domain"
)

// State is a snapshot of a list view.
type State struct {
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
	// Sort is zero while the configured default sort applies.
	Sort            Sort                      `json:"sort"`
	RawSearch       string                    `json:"raw_search"`
	CommittedSearch string                    `json:"committed_search"`
	Filters         map[string][]domain.Where `json:"filters,omitempty"`
	Records         []Record                  `json:"records"`
	Total           int                       `json:"total"`
	Loading         bool                      `json:"loading"`
	LastError       string                    `json:"last_error,omitempty"`
	ViewMode        string                    `json:"view_mode"`
	ViewModes       []string                  `json:"view_modes"`
}

// HasRecords reports whether records from an earlier fetch are on screen.
// While Loading, callers draw an overlay over them instead of a placeholder.
func (s State) HasRecords() bool {
	return len(s.Records) > 0
}

func (s State) clone() State {
	s.Records = slices.Clone(s.Records)
	s.ViewModes = slices.Clone(s.ViewModes)
	s.Filters = maps.Clone(s.Filters)
	return s
}

// Command is a side effect requested by a Machine transition.
type Command interface {
	command()
}

// FetchCommand asks the host to fetch Query and report back with Seq.
type FetchCommand struct {
	Seq   uint64
	Query Query
}

// ScheduleDebounceCommand asks the host to replace any pending debounce
// timer with one that calls FireDebounce(Gen) after Delay.
type ScheduleDebounceCommand struct {
	Gen   uint64
	Delay time.Duration
}

// CancelDebounceCommand asks the host to stop the pending debounce timer.
type CancelDebounceCommand struct{}

func (FetchCommand) command()            {}
func (ScheduleDebounceCommand) command() {}
func (CancelDebounceCommand) command()   {}

// Machine is the list-view state machine. It is not safe for concurrent
// use; Controller confines it to one goroutine.
type Machine struct {
	cfg   Config
	state State

	seq        uint64
	lastIssued Query
	issued     bool
	loaded     bool

	debounceGen     uint64
	debouncePending bool

	closed bool
}

// NewMachine validates cfg and returns a machine in its initial state. No
// fetch is issued until Start.
func NewMachine(cfg Config) (*Machine, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Machine{
		cfg: cfg,
		state: State{
			PageSize:  cfg.DefaultPageSize,
			Records:   []Record{},
			ViewMode:  cfg.DefaultViewMode,
			ViewModes: slices.Clone(cfg.ViewModes),
		},
	}, nil
}

// Config returns the normalized configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state.clone()
}

// Seq returns the sequence number of the most recently issued fetch.
func (m *Machine) Seq() uint64 {
	return m.seq
}

// Closed reports whether Close has been called.
func (m *Machine) Closed() bool {
	return m.closed
}

// Query derives the fetch parameters from the current state.
func (m *Machine) Query() Query {
	sort := m.state.Sort
	if sort.IsZero() {
		sort = m.cfg.DefaultSort
	}
	return Query{
		Entity:     m.cfg.Entity,
		Offset:     m.state.PageIndex * m.state.PageSize,
		PageSize:   m.state.PageSize,
		Sort:       sort,
		SearchText: m.state.CommittedSearch,
		Select:     m.cfg.Select,
		Where:      m.mergedWhere(),
	}
}

// mergedWhere concatenates filter sources in name order.
func (m *Machine) mergedWhere() []domain.Where {
	if len(m.state.Filters) == 0 {
		return nil
	}
	var out []domain.Where
	for _, source := range slices.Sorted(maps.Keys(m.state.Filters)) {
		out = append(out, m.state.Filters[source]...)
	}
	return out
}

// Start issues the initial fetch.
func (m *Machine) Start() []Command {
	return m.issue(true)
}

// SetPageIndex moves to page n. Negative values clamp to 0.
func (m *Machine) SetPageIndex(n int) []Command {
	if m.closed {
		return nil
	}
	n = max(n, 0)
	if n == m.state.PageIndex {
		return nil
	}
	m.state.PageIndex = n
	return m.issue(false)
}

// SetPageSize clamps n to [1, MaxPageSize] and returns to the first page.
func (m *Machine) SetPageSize(n int) []Command {
	if m.closed {
		return nil
	}
	m.state.PageSize = min(max(n, 1), m.cfg.MaxPageSize)
	m.state.PageIndex = 0
	return m.issue(false)
}

// SetSort replaces the active sort and returns to the first page. An empty
// key restores the default sort.
func (m *Machine) SetSort(key string, dir Direction) []Command {
	if m.closed {
		return nil
	}
	m.state.Sort = normalizeSort(key, dir)
	m.state.PageIndex = 0
	return m.issue(false)
}

// SetSearchInput records what the user typed and restarts the debounce.
func (m *Machine) SetSearchInput(text string) []Command {
	if m.closed {
		return nil
	}
	m.state.RawSearch = text
	m.debounceGen++
	if m.cfg.SearchDebounce == 0 {
		m.debouncePending = false
		return m.commitSearch()
	}
	m.debouncePending = true
	return []Command{ScheduleDebounceCommand{Gen: m.debounceGen, Delay: m.cfg.SearchDebounce}}
}

// FireDebounce commits the typed search if gen is the latest scheduled
// debounce. Timers that were replaced or already fired are ignored.
func (m *Machine) FireDebounce(gen uint64) []Command {
	if m.closed || !m.debouncePending || gen != m.debounceGen {
		return nil
	}
	m.debouncePending = false
	return m.commitSearch()
}

func (m *Machine) commitSearch() []Command {
	m.state.CommittedSearch = strings.TrimSpace(m.state.RawSearch)
	m.state.PageIndex = 0
	return m.issue(false)
}

// SetFilter replaces the where items contributed by source. Empty items
// clear the source.
func (m *Machine) SetFilter(source string, items []domain.Where) []Command {
	if m.closed {
		return nil
	}
	current, ok := m.state.Filters[source]
	if len(items) == 0 {
		if !ok {
			return nil
		}
		delete(m.state.Filters, source)
	} else {
		if ok && reflect.DeepEqual(current, items) {
			return nil
		}
		if m.state.Filters == nil {
			m.state.Filters = make(map[string][]domain.Where)
		}
		m.state.Filters[source] = slices.Clone(items)
	}
	if m.cfg.resetsPage(source) {
		m.state.PageIndex = 0
	}
	return m.issue(false)
}

// ClearFilter removes the where items contributed by source.
func (m *Machine) ClearFilter(source string) []Command {
	return m.SetFilter(source, nil)
}

// SetViewMode switches the render mode. Unknown modes are ignored. It
// never fetches.
func (m *Machine) SetViewMode(mode string) bool {
	if m.closed || !slices.Contains(m.state.ViewModes, mode) {
		return false
	}
	m.state.ViewMode = mode
	return true
}

// SetViewModes replaces the allow-list. When the current mode is no longer
// allowed the view falls back to the first allowed mode. An empty list is
// ignored.
func (m *Machine) SetViewModes(modes []string) bool {
	if m.closed {
		return false
	}
	modes, err := normalizeViewModes(modes)
	if err != nil {
		return false
	}
	m.state.ViewModes = modes
	if !slices.Contains(modes, m.state.ViewMode) {
		m.state.ViewMode = modes[0]
	}
	return true
}

// Refresh re-issues the current query unconditionally.
func (m *Machine) Refresh() []Command {
	return m.issue(true)
}

func (m *Machine) issue(force bool) []Command {
	if m.closed {
		return nil
	}
	q := m.Query()
	if !force && m.issued && q.Equal(m.lastIssued) {
		return nil
	}
	m.seq++
	m.lastIssued = q
	m.issued = true
	m.state.Loading = true
	m.state.LastError = ""
	return []Command{FetchCommand{Seq: m.seq, Query: q}}
}

// Apply applies the result of fetch seq. It returns false, leaving state
// untouched, when seq is not the latest issued fetch or the machine is
// closed.
func (m *Machine) Apply(seq uint64, page Page, err error) bool {
	if m.closed || seq != m.seq {
		return false
	}
	m.state.Loading = false
	if err != nil {
		m.state.LastError = ErrorMessage(err)
		if !m.loaded {
			m.state.Records = []Record{}
			m.state.Total = 0
		}
		return true
	}
	records := page.Records
	if records == nil {
		records = []Record{}
	}
	m.state.Records = records
	m.state.Total = max(page.Total, 0)
	m.state.LastError = ""
	m.loaded = true
	return true
}

// Close stops the machine. Later transitions and results are ignored.
func (m *Machine) Close() []Command {
	if m.closed {
		return nil
	}
	m.closed = true
	m.debouncePending = false
	m.state.Loading = false
	return []Command{CancelDebounceCommand{}}
}
