package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/simp-lee/crmdesk/internal/collection"
	"github.com/simp-lee/crmdesk/internal/config"
	"github.com/simp-lee/crmdesk/internal/domain"
)

// Backend is the remote CRM behind every hosted view.
type Backend interface {
	collection.Fetcher
	collection.Mutator
}

// Options tunes a Registry. Zero values disable the idle sweeper and the
// session limit.
type Options struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxSessions   int
	Logger        *slog.Logger

	// Scheduler replaces the wall-clock debounce timer of every controller.
	Scheduler collection.Scheduler
}

// MountInput selects the entity of a new view and optional starting values.
type MountInput struct {
	Entity   string
	PageSize int
	ViewMode string
}

type entityView struct {
	cfg      collection.Config
	readOnly bool
}

// Registry hosts one collection controller per mounted list view.
type Registry struct {
	backend  Backend
	entities map[string]entityView
	opts     Options
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry builds a registry for the given entity views and starts the
// idle sweeper when opts enables it.
func NewRegistry(backend Backend, entities []config.ViewEntityConfig, opts Options) (*Registry, error) {
	if backend == nil {
		return nil, errors.New("view: backend is required")
	}
	if len(entities) == 0 {
		return nil, errors.New("view: at least one entity view is required")
	}

	r := &Registry{
		backend:  backend,
		entities: make(map[string]entityView, len(entities)),
		opts:     opts,
		log:      opts.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	for _, e := range entities {
		cfg := e.Collection()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("view %q: %w", e.Name, err)
		}
		r.entities[e.Name] = entityView{cfg: cfg, readOnly: e.ReadOnly}
	}

	if opts.IdleTimeout > 0 && opts.SweepInterval > 0 {
		go r.sweepLoop(opts.SweepInterval)
	} else {
		close(r.done)
	}
	return r, nil
}

// Entities returns the names of the mountable entities, sorted.
func (r *Registry) Entities() []string {
	return slices.Sorted(maps.Keys(r.entities))
}

// Mount starts a controller for in.Entity and returns its session.
func (r *Registry) Mount(ctx context.Context, in MountInput) (*Session, error) {
	ev, ok := r.entities[strings.TrimSpace(in.Entity)]
	if !ok {
		return nil, domain.NewAppError(domain.CodeNotFound, fmt.Sprintf("no view is configured for entity %q", in.Entity), nil)
	}

	cfg := ev.cfg
	if in.PageSize > 0 {
		cfg.DefaultPageSize = min(in.PageSize, cfg.MaxPageSize)
	}
	if in.ViewMode != "" {
		if !slices.Contains(cfg.ViewModes, in.ViewMode) {
			return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("view mode %q is not offered for %s", in.ViewMode, cfg.Entity), nil)
		}
		cfg.DefaultViewMode = in.ViewMode
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, domain.ErrClosed
	}
	if r.opts.MaxSessions > 0 && len(r.sessions) >= r.opts.MaxSessions {
		r.mu.Unlock()
		return nil, domain.NewAppError(domain.CodeLimitExceeded, "too many open views", nil)
	}
	s := newSession(uuid.NewString(), cfg.Entity, r.now())
	r.sessions[s.id] = s
	r.mu.Unlock()

	log := r.log.With(slog.String("view_id", s.id))
	opts := []collection.Option{
		collection.WithLogger(log),
		collection.WithObserver(s.notify),
	}
	if !ev.readOnly {
		opts = append(opts, collection.WithMutator(r.backend))
	}
	if r.opts.Scheduler != nil {
		opts = append(opts, collection.WithScheduler(r.opts.Scheduler))
	}

	ctrl, err := collection.New(cfg, r.backend, opts...)
	s.ctrl = ctrl
	close(s.ready)
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, s.id)
		r.mu.Unlock()
		return nil, domain.NewAppError(domain.CodeValidation, "invalid view settings", err)
	}

	log.InfoContext(ctx, "view mounted", slog.String("entity", cfg.Entity), slog.Bool("read_only", ev.readOnly))
	return s, nil
}

// Get returns a mounted session and marks it as recently used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, domain.NewAppError(domain.CodeNotFound, "view not found", nil)
	}
	<-s.ready
	if s.ctrl == nil {
		return nil, domain.NewAppError(domain.CodeNotFound, "view not found", nil)
	}
	s.touch(r.now())
	return s, nil
}

// Unmount closes the controller of session id.
func (r *Registry) Unmount(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return domain.NewAppError(domain.CodeNotFound, "view not found", nil)
	}
	s.close()
	r.log.InfoContext(ctx, "view unmounted", slog.String("view_id", id), slog.String("entity", s.entity))
	return nil
}

// List describes every mounted session, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of mounted sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep unmounts sessions idle since before now minus the idle timeout and
// returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	if r.opts.IdleTimeout <= 0 {
		return nil
	}
	cutoff := now.Add(-r.opts.IdleTimeout)

	var idle []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastSeenAt().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		s.close()
		ids = append(ids, s.id)
		r.log.Info("idle view unmounted", slog.String("view_id", s.id), slog.String("entity", s.entity))
	}
	return ids
}

func (r *Registry) sweepLoop(every time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Close stops the sweeper and unmounts every session. Later mounts fail
// with domain.ErrClosed.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		r.closed = true
		sessions := r.sessions
		r.sessions = make(map[string]*Session)
		r.mu.Unlock()

		for _, s := range sessions {
			s.close()
		}
		r.log.Info("view registry closed", slog.Int("sessions", len(sessions)))
	})
}

// Info describes a mounted session.
type Info struct {
	ID         string    `json:"id"`
	Entity     string    `json:"entity"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Session is one mounted list view.
type Session struct {
	id      string
	entity  string
	created time.Time
	seen    atomic.Int64
	ready   chan struct{}
	ctrl    *collection.Controller

	mu      sync.Mutex
	changed chan struct{}
}

func newSession(id, entity string, now time.Time) *Session {
	s := &Session{
		id:      id,
		entity:  entity,
		created: now,
		ready:   make(chan struct{}),
		changed: make(chan struct{}),
	}
	s.seen.Store(now.UnixNano())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Entity returns the CRM entity the view lists.
func (s *Session) Entity() string { return s.entity }

// Controller returns the view's controller.
func (s *Session) Controller() *collection.Controller { return s.ctrl }

// Info describes s.
func (s *Session) Info() Info {
	return Info{
		ID:         s.id,
		Entity:     s.entity,
		CreatedAt:  s.created,
		LastSeenAt: s.lastSeenAt(),
	}
}

// Wait returns the state once no fetch is loading, or the latest state
// when ctx ends first.
func (s *Session) Wait(ctx context.Context) collection.State {
	for {
		s.mu.Lock()
		ch := s.changed
		s.mu.Unlock()

		st := s.ctrl.State()
		if !st.Loading {
			return st
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s.ctrl.State()
		}
	}
}

// notify wakes every Wait caller. It runs on the controller's event loop.
func (s *Session) notify(collection.State) {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.seen.Store(now.UnixNano())
}

func (s *Session) lastSeenAt() time.Time {
	return time.Unix(0, s.seen.Load())
}

func (s *Session) close() {
	<-s.ready
	if s.ctrl != nil {
		s.ctrl.Close()
	}
}
