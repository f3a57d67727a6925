package quotaclient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Ledger is the server side of the cache. *Client implements it.
type Ledger interface {
	Remaining(ctx context.Context) (Quota, error)
	Consume(ctx context.Context) (Quota, error)
}

// View is a snapshot of the cache. Remaining is nil until the first
// successful Load or Reconcile.
type View struct {
	Remaining *int
	Plan      string
	IsLoading bool
	Err       error
}

// Cache mirrors the server's remaining count for responsive UI gating.
// It is safe for concurrent use.
type Cache struct {
	ledger           Ledger
	logger           *slog.Logger
	reconcileTimeout time.Duration

	mu        sync.Mutex
	view      View
	listeners map[int]func(View)
	nextID    int

	inflight sync.WaitGroup
}

// NewCache creates a Cache in the loading state.
func NewCache(ledger Ledger, opts ...CacheOption) *Cache {
	c := &Cache{
		ledger:           ledger,
		logger:           slog.Default(),
		reconcileTimeout: 10 * time.Second,
		view:             View{IsLoading: true},
		listeners:        make(map[int]func(View)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// View returns a copy of the current state.
func (c *Cache) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Subscribe registers fn to be called with every new state.
// The returned func removes it.
func (c *Cache) Subscribe(fn func(View)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Load refreshes the cache from the server. On failure the previous
// remaining count is kept and Err is set.
func (c *Cache) Load(ctx context.Context) error {
	c.update(func(v *View) { v.IsLoading = true })

	q, err := c.ledger.Remaining(ctx)
	if err != nil {
		c.update(func(v *View) {
			v.IsLoading = false
			v.Err = err
		})
		return err
	}

	c.adopt(q)
	return nil
}

// Guard reports whether an AI action may start.
func (c *Cache) Guard() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Remaining != nil && *c.view.Remaining > 0
}

// OptimisticDecrement takes one prompt off a positive remaining count.
func (c *Cache) OptimisticDecrement() {
	c.update(func(v *View) {
		if v.Remaining != nil && *v.Remaining > 0 {
			n := *v.Remaining - 1
			v.Remaining = &n
		}
	})
}

// Reconcile charges the prompt on the server and adopts the returned
// count. If that fails it reloads instead; consume is never re-sent.
// The reload gets its own deadline, since a consume that timed out
// leaves ctx already expired.
func (c *Cache) Reconcile(ctx context.Context) error {
	q, err := c.ledger.Consume(ctx)
	if err != nil {
		c.logger.Warn("quotaclient: consume failed, reloading", "error", err)
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.reconcileTimeout)
		defer cancel()
		if loadErr := c.Load(lctx); loadErr != nil {
			c.logger.Warn("quotaclient: reload after failed consume", "error", loadErr)
		}
		return err
	}

	c.adopt(q)
	return nil
}

// Track runs action if the guard allows it. The prompt is taken off the
// local count before action starts, and the server is charged in the
// background once action returns, whether it failed or not.
// ErrLimitReached is returned without calling action when nothing is left.
func (c *Cache) Track(ctx context.Context, action func(context.Context) error) error {
	if !c.reserve() {
		return ErrLimitReached
	}

	actionErr := action(ctx)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.reconcileTimeout)
		defer cancel()
		_ = c.Reconcile(rctx)
	}()

	return actionErr
}

// Wait blocks until every background reconcile started by Track is done.
func (c *Cache) Wait() {
	c.inflight.Wait()
}

// reserve is Guard plus OptimisticDecrement under one lock, so two
// concurrent Tracks cannot both spend the last prompt.
func (c *Cache) reserve() bool {
	ok := false
	c.update(func(v *View) {
		if v.Remaining != nil && *v.Remaining > 0 {
			n := *v.Remaining - 1
			v.Remaining = &n
			ok = true
		}
	})
	return ok
}

func (c *Cache) adopt(q Quota) {
	c.update(func(v *View) {
		n := q.Remaining
		v.Remaining = &n
		if q.Plan != "" {
			v.Plan = q.Plan
		}
		v.IsLoading = false
		v.Err = nil
	})
}

func (c *Cache) update(mutate func(*View)) {
	c.mu.Lock()
	mutate(&c.view)
	snap := c.snapshot()
	fns := make([]func(View), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Cache) snapshot() View {
	v := c.view
	if v.Remaining != nil {
		n := *v.Remaining
		v.Remaining = &n
	}
	return v
}
