// Package host drives the switch entities: it logs in, performs the initial
// inventory fetch, creates and restores entities, and runs the periodic
// coordinator and entity update loops.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ezvizswitch/internal/clock"
	"ezvizswitch/internal/coordinator"
	"ezvizswitch/internal/ezviz"
	"ezvizswitch/internal/switches"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for unknown entity IDs
	ErrNotFound = errors.New("entity not found")
	// ErrToggleFailed is returned when the cloud rejected a toggle
	ErrToggleFailed = errors.New("toggle failed")
)

// StateListener is called with the new snapshot whenever an entity changes
// state or availability
type StateListener func(snap switches.Snapshot)

// Subscription represents an active listener registration
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id   int
	host *Host
}

func (s *subscription) Unsubscribe() {
	s.host.unsubscribe(s.id)
}

// Options configures a Host
type Options struct {
	Mode         switches.Mode
	ScanInterval time.Duration
	Clock        clock.Clock
	// Store is optional; without it states are not persisted
	Store *StateStore
}

// Host owns the entity lifecycle
type Host struct {
	client       ezviz.EzvizClient
	coordinator  *coordinator.Coordinator
	registry     *Registry
	store        *StateStore
	logger       *zap.Logger
	clock        clock.Clock
	mode         switches.Mode
	scanInterval time.Duration

	restored map[string]string
	setupMu  sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[int]StateListener
	nextID      int
	updateSub   coordinator.Subscription
}

// New creates a host around a client and its coordinator
func New(client ezviz.EzvizClient, coord *coordinator.Coordinator, opts Options, logger *zap.Logger) *Host {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = switches.ScanInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}

	return &Host{
		client:       client,
		coordinator:  coord,
		registry:     NewRegistry(),
		store:        opts.Store,
		logger:       logger.Named("host"),
		clock:        opts.Clock,
		mode:         opts.Mode,
		scanInterval: opts.ScanInterval,
		restored:     map[string]string{},
		listeners:    make(map[int]StateListener),
	}
}

// Registry exposes the live entities
func (h *Host) Registry() *Registry {
	return h.registry
}

// Coordinator returns the poll coordinator
func (h *Host) Coordinator() *coordinator.Coordinator {
	return h.coordinator
}

// Setup logs in, fetches the inventory and creates the entities. A failed
// login is logged and setup continues; a failed initial fetch aborts.
func (h *Host) Setup(ctx context.Context) error {
	if _, err := h.client.Login(ctx); err != nil {
		var authErr *ezviz.AuthError
		if errors.As(err, &authErr) {
			h.logger.Error("Invalid response from API", zap.Error(err))
		} else {
			h.logger.Error("Unexpected exception during login", zap.Error(err))
		}
	}

	if h.store != nil {
		states, err := h.store.Load()
		if err != nil {
			h.logger.Warn("Could not load stored states", zap.Error(err))
		} else {
			h.restored = states
		}
	}

	inv, err := h.coordinator.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("initial refresh failed: %w", err)
	}

	h.addEntities(inv)
	h.updateSub = h.coordinator.Subscribe(h.addEntities)

	h.logger.Info("Setup complete",
		zap.Int("devices", len(inv)),
		zap.Int("entities", h.registry.Len()))
	return nil
}

// addEntities registers entities for capabilities not seen before and
// restores their last stored state
func (h *Host) addEntities(inv coordinator.Inventory) {
	h.setupMu.Lock()
	defer h.setupMu.Unlock()

	for _, e := range switches.BuildEntities(inv, h.client, h.mode, h.clock, h.logger) {
		if h.registry.Has(e.UniqueID()) {
			continue
		}
		e.RestoreState(h.restored[e.UniqueID()])
		if err := h.registry.Add(e); err != nil {
			h.logger.Warn("Could not add entity", zap.Error(err))
			continue
		}
		h.logger.Debug("Entity added",
			zap.String("unique_id", e.UniqueID()),
			zap.String("name", e.Name()))
	}
}

// Run drives the coordinator loop and the entity update tick until ctx is
// done
func (h *Host) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.coordinator.Run(ctx)
	}()

	h.logger.Info("Starting entity update loop", zap.Duration("interval", h.scanInterval))
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			if h.updateSub != nil {
				h.updateSub.Unsubscribe()
			}
			h.persist()
			h.logger.Info("Entity update loop stopped")
			return
		case <-h.clock.After(h.scanInterval):
			h.Tick(ctx)
		}
	}
}

// Tick updates every entity once, notifies listeners of changes and
// persists the resulting states
func (h *Host) Tick(ctx context.Context) {
	for _, e := range h.registry.List() {
		if ctx.Err() != nil {
			return
		}
		before := e.Snapshot()
		e.Update(ctx)
		after := e.Snapshot()
		if before.State != after.State || before.Available != after.Available {
			h.notify(after)
		}
	}
	h.persist()
}

// Toggle switches an entity on or off
func (h *Host) Toggle(ctx context.Context, id string, on bool) (switches.Snapshot, error) {
	e := h.registry.Get(id)
	if e == nil {
		return switches.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var ok bool
	if on {
		ok = e.TurnOn(ctx)
	} else {
		ok = e.TurnOff(ctx)
	}

	snap := e.Snapshot()
	if !ok {
		return snap, fmt.Errorf("%w: %s", ErrToggleFailed, id)
	}

	h.notify(snap)
	h.persist()
	return snap, nil
}

// Snapshot returns the view of one entity
func (h *Host) Snapshot(id string) (switches.Snapshot, error) {
	e := h.registry.Get(id)
	if e == nil {
		return switches.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Snapshot(), nil
}

// Snapshots returns the view of every entity sorted by unique ID
func (h *Host) Snapshots() []switches.Snapshot {
	entities := h.registry.List()
	result := make([]switches.Snapshot, len(entities))
	for i, e := range entities {
		result[i] = e.Snapshot()
	}
	return result
}

// Subscribe registers a listener for entity state changes
func (h *Host) Subscribe(listener StateListener) Subscription {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()

	h.nextID++
	h.listeners[h.nextID] = listener
	return &subscription{id: h.nextID, host: h}
}

func (h *Host) unsubscribe(id int) {
	h.listenersMu.Lock()
	delete(h.listeners, id)
	h.listenersMu.Unlock()
}

func (h *Host) notify(snap switches.Snapshot) {
	h.listenersMu.RLock()
	listeners := make([]StateListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.listenersMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (h *Host) persist() {
	if h.store == nil {
		return
	}
	// Entities that follow the cloud are not stored, so a restart does not
	// pin them to a stale value
	states := make(map[string]string)
	for _, e := range h.registry.List() {
		if state, ok := e.OptimisticState(); ok {
			states[e.UniqueID()] = state
		}
	}
	if err := h.store.Save(states); err != nil {
		h.logger.Error("Failed to persist states", zap.Error(err))
	}
}
