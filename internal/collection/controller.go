package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simp-lee/crmdesk/internal/domain"
)

// Fetcher loads one page of a remote collection.
type Fetcher interface {
	FetchPage(ctx context.Context, q Query) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q Query) (Page, error)

// FetchPage calls f(ctx, q).
func (f FetcherFunc) FetchPage(ctx context.Context, q Query) (Page, error) {
	return f(ctx, q)
}

// Mutator writes to the remote collection backing a view.
type Mutator interface {
	Create(ctx context.Context, entity string, payload Record) (Record, error)
	Update(ctx context.Context, entity, id string, payload Record) (Record, error)
	Delete(ctx context.Context, entity, id string) error
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ErrNoMutator is returned by mutations on a controller built without WithMutator.
var ErrNoMutator = domain.NewAppError(domain.CodeInternal, "this view is read-only", nil)

// Option configures a Controller.
type Option func(*Controller)

// WithMutator enables Create, Update and Delete.
func WithMutator(m Mutator) Option {
	return func(c *Controller) { c.mutator = m }
}

// WithScheduler replaces the wall-clock scheduler used for search debounce.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver registers fn to receive a snapshot after every transition.
// fn runs on the controller's event loop and must not call back into the
// controller's mutating methods.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observe = fn }
}

type event struct {
	fn  func(m *Machine) []Command
	ack chan struct{}
}

// Controller hosts a Machine on its own event loop goroutine. Every public
// method is safe for concurrent use; transitions are applied one at a time
// in arrival order and each method returns once its transition has run.
type Controller struct {
	machine *Machine
	fetcher Fetcher
	mutator Mutator
	sched   Scheduler
	log     *slog.Logger
	observe func(State)

	events    chan event
	stopped   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Owned by the event loop.
	ctx         context.Context
	cancel      context.CancelFunc
	timer       Timer
	cancelFetch context.CancelFunc

	mu       sync.RWMutex
	snapshot State
}

// New builds a controller for cfg, starts its event loop and issues the
// initial fetch. Callers must Close it when the hosting view goes away.
func New(cfg Config, fetcher Fetcher, opts ...Option) (*Controller, error) {
	if fetcher == nil {
		return nil, errors.New("collection: fetcher is required")
	}
	m, err := NewMachine(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		machine: m,
		fetcher: fetcher,
		events:  make(chan event),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sched == nil {
		c.sched = realScheduler{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With(slog.String("entity", m.Config().Entity))
	c.snapshot = m.State()

	go c.run()
	c.dispatch(func(m *Machine) []Command { return m.Start() })
	return c, nil
}

// Config returns the normalized view configuration.
func (c *Controller) Config() Config {
	return c.machine.Config()
}

// State returns the latest snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone()
}

// SetPageIndex moves to page n (zero-based).
func (c *Controller) SetPageIndex(n int) {
	c.dispatch(func(m *Machine) []Command { return m.SetPageIndex(n) })
}

// SetPageSize changes the page size and returns to the first page.
func (c *Controller) SetPageSize(n int) {
	c.dispatch(func(m *Machine) []Command { return m.SetPageSize(n) })
}

// SetSort replaces the active sort and returns to the first page.
func (c *Controller) SetSort(key string, dir Direction) {
	c.dispatch(func(m *Machine) []Command { return m.SetSort(key, dir) })
}

// SetSearchInput echoes text into RawSearch and restarts the debounce.
func (c *Controller) SetSearchInput(text string) {
	c.dispatch(func(m *Machine) []Command { return m.SetSearchInput(text) })
}

// SetFilter replaces the where items of one filter source.
func (c *Controller) SetFilter(source string, items []domain.Where) {
	c.dispatch(func(m *Machine) []Command { return m.SetFilter(source, items) })
}

// ClearFilter removes one filter source.
func (c *Controller) ClearFilter(source string) {
	c.dispatch(func(m *Machine) []Command { return m.ClearFilter(source) })
}

// SetViewMode switches the render mode and reports whether mode is allowed.
func (c *Controller) SetViewMode(mode string) bool {
	var ok bool
	c.dispatch(func(m *Machine) []Command {
		ok = m.SetViewMode(mode)
		return nil
	})
	return ok
}

// SetViewModes replaces the allowed render modes.
func (c *Controller) SetViewModes(modes []string) bool {
	var ok bool
	c.dispatch(func(m *Machine) []Command {
		ok = m.SetViewModes(modes)
		return nil
	})
	return ok
}

// Refresh re-fetches the current page.
func (c *Controller) Refresh() {
	c.dispatch(func(m *Machine) []Command { return m.Refresh() })
}

// Create creates a record and refreshes the view on success.
func (c *Controller) Create(ctx context.Context, payload Record) (Record, error) {
	if err := c.checkMutable(); err != nil {
		return nil, err
	}
	rec, err := c.mutator.Create(ctx, c.Config().Entity, payload)
	if err != nil {
		return nil, err
	}
	c.log.DebugContext(ctx, "record created", slog.Any("id", rec["id"]))
	c.Refresh()
	return rec, nil
}

// Update updates record id and refreshes the view on success.
func (c *Controller) Update(ctx context.Context, id string, payload Record) (Record, error) {
	if err := c.checkMutable(); err != nil {
		return nil, err
	}
	rec, err := c.mutator.Update(ctx, c.Config().Entity, id, payload)
	if err != nil {
		return nil, err
	}
	c.log.DebugContext(ctx, "record updated", slog.String("id", id))
	c.Refresh()
	return rec, nil
}

// Delete removes record id and refreshes the view on success.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if err := c.mutator.Delete(ctx, c.Config().Entity, id); err != nil {
		return err
	}
	c.log.DebugContext(ctx, "record deleted", slog.String("id", id))
	c.Refresh()
	return nil
}

func (c *Controller) checkMutable() error {
	if c.closed.Load() {
		return domain.ErrClosed
	}
	if c.mutator == nil {
		return ErrNoMutator
	}
	return nil
}

// Close cancels the pending debounce and in-flight fetches and stops the
// event loop. Results arriving afterwards are dropped. Close is idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.dispatch(func(m *Machine) []Command { return m.Close() })
		<-c.stopped
	})
}

// Done is closed once the event loop has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		ev := <-c.events
		c.exec(ev.fn(c.machine))
		c.publish()
		if ev.ack != nil {
			close(ev.ack)
		}
		if c.machine.Closed() {
			c.cancel()
			return
		}
	}
}

// dispatch runs fn on the event loop and waits for it.
func (c *Controller) dispatch(fn func(m *Machine) []Command) {
	ev := event{fn: fn, ack: make(chan struct{})}
	select {
	case c.events <- ev:
	case <-c.stopped:
		return
	}
	select {
	case <-ev.ack:
	case <-c.stopped:
	}
}

// post queues fn on the event loop without waiting.
func (c *Controller) post(fn func(m *Machine) []Command) {
	select {
	case c.events <- event{fn: fn}:
	case <-c.stopped:
	}
}

func (c *Controller) exec(cmds []Command) {
	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case FetchCommand:
			c.startFetch(cmd)
		case ScheduleDebounceCommand:
			c.stopTimer()
			gen := cmd.Gen
			c.timer = c.sched.AfterFunc(cmd.Delay, func() {
				c.post(func(m *Machine) []Command { return m.FireDebounce(gen) })
			})
		case CancelDebounceCommand:
			c.stopTimer()
		}
	}
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) startFetch(cmd FetchCommand) {
	// Apply drops the superseded result whether or not the fetcher honors ctx.
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel

	c.log.Debug("fetch issued",
		slog.Uint64("seq", cmd.Seq),
		slog.Int("offset", cmd.Query.Offset),
		slog.Int("page_size", cmd.Query.PageSize),
		slog.String("order_by", cmd.Query.Sort.Key),
		slog.String("search", cmd.Query.SearchText),
	)

	go func() {
		defer cancel()
		page, err := c.fetchPage(ctx, cmd.Query)
		c.post(func(m *Machine) []Command {
			if !m.Apply(cmd.Seq, page, err) {
				c.log.Debug("stale fetch result discarded",
					slog.Uint64("seq", cmd.Seq),
					slog.Uint64("latest_seq", m.Seq()),
				)
				return nil
			}
			if err != nil {
				c.log.Warn("fetch failed", slog.Uint64("seq", cmd.Seq), slog.Any("error", err))
			}
			return nil
		})
	}()
}

func (c *Controller) fetchPage(ctx context.Context, q Query) (page Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewAppError(domain.CodeInternal, msgFetchFailed, fmt.Errorf("fetcher panic: %v", r))
		}
	}()
	return c.fetcher.FetchPage(ctx, q)
}

func (c *Controller) publish() {
	snap := c.machine.State()
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	if c.observe != nil {
		c.observe(snap.clone())
	}
}
