// Package coordinator polls the EZVIZ cloud for switchable devices on a
// fixed interval and keeps the last good inventory.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ezvizswitch/internal/clock"
	"ezvizswitch/internal/ezviz"

	"go.uber.org/zap"
)

const (
	// DefaultInterval is the fixed poll period
	DefaultInterval = 30 * time.Second
	// DefaultTimeout bounds a single refresh
	DefaultTimeout = 10 * time.Second
)

// Fetcher is the part of the EZVIZ client the coordinator needs
type Fetcher interface {
	PageList(ctx context.Context, filter string) (*ezviz.PageList, error)
}

// UpdateFailedError reports a failed refresh to the host
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("Invalid response from API: %v", e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// UpdateHandler is called with a copy of the inventory after every
// successful refresh
type UpdateHandler func(inv Inventory)

// Subscription represents an active update subscription
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id          int
	coordinator *Coordinator
}

func (s *subscription) Unsubscribe() {
	s.coordinator.unsubscribe(s.id)
}

// Options configures a Coordinator
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
}

// Coordinator owns the periodic inventory fetch
type Coordinator struct {
	fetcher  Fetcher
	logger   *zap.Logger
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration

	mu          sync.RWMutex
	data        Inventory
	lastSuccess bool
	lastUpdate  time.Time

	subsMu   sync.RWMutex
	handlers map[int]UpdateHandler
	nextID   int
}

// New creates a coordinator around the given fetcher
func New(fetcher Fetcher, opts Options, logger *zap.Logger) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}

	return &Coordinator{
		fetcher:  fetcher,
		logger:   logger.Named("coordinator"),
		clock:    opts.Clock,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		handlers: make(map[int]UpdateHandler),
	}
}

// Interval returns the poll period
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Refresh fetches the inventory once. Any failure is returned as an
// *UpdateFailedError and the previous inventory is kept.
func (c *Coordinator) Refresh(ctx context.Context) (Inventory, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.fetcher.PageList(ctx, ezviz.SwitchFilter)
	if err == nil && list == nil {
		err = fmt.Errorf("empty device list")
	}
	if err != nil {
		c.mu.Lock()
		c.lastSuccess = false
		c.mu.Unlock()
		return nil, &UpdateFailedError{Err: err}
	}

	c.logger.Debug("Found devices from API", zap.Int("count", len(list.DeviceInfos)))

	inv := BuildInventory(list)
	for _, serial := range inv.Serials() {
		d := inv[serial]
		types := make([]int, 0, len(d.Capabilities))
		for _, capability := range d.Capabilities {
			types = append(types, int(capability.SwitchType))
		}
		c.logger.Debug("Added device",
			zap.String("serial", serial),
			zap.Int("entities", len(d.Capabilities)),
			zap.Ints("types", types))
	}
	c.logger.Info("Discovered switchable devices", zap.Int("count", len(inv)))

	c.mu.Lock()
	c.data = inv
	c.lastSuccess = true
	c.lastUpdate = c.clock.Now()
	c.mu.Unlock()

	c.notify(inv)
	return inv.Clone(), nil
}

// Data returns a copy of the last good inventory, or nil before the first
// successful refresh
func (c *Coordinator) Data() Inventory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Clone()
}

// LastUpdateSuccess reports whether the most recent refresh succeeded
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastUpdate returns the time of the last successful refresh
func (c *Coordinator) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// Subscribe registers a handler for successful refreshes
func (c *Coordinator) Subscribe(handler UpdateHandler) Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextID++
	c.handlers[c.nextID] = handler
	return &subscription{id: c.nextID, coordinator: c}
}

func (c *Coordinator) unsubscribe(id int) {
	c.subsMu.Lock()
	delete(c.handlers, id)
	c.subsMu.Unlock()
}

func (c *Coordinator) notify(inv Inventory) {
	c.subsMu.RLock()
	handlers := make([]UpdateHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.subsMu.RUnlock()

	for _, h := range handlers {
		h(inv.Clone())
	}
}

// Run refreshes every interval until ctx is done. Failed refreshes are
// logged and wait for the next tick.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info("Starting poll loop", zap.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Poll loop stopped")
			return
		case <-c.clock.After(c.interval):
			if _, err := c.Refresh(ctx); err != nil {
				c.logger.Error("Error fetching data", zap.Error(err))
			}
		}
	}
}
