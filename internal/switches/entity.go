// Package switches turns coordinator devices into toggle entities.
//
// An entity tracks exactly one capability of one device. In legacy mode a
// device yields a single entity keyed by its serial that tracks the first
// capability; otherwise every capability becomes its own entity keyed by
// "{serial}_{switchType}".
package switches

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ezvizswitch/internal/clock"
	"ezvizswitch/internal/coordinator"
	"ezvizswitch/internal/ezviz"

	"go.uber.org/zap"
)

// Domain is the identifier namespace used in device registry entries
const Domain = "ezviz_plug"

// ScanInterval is how often the host should call Update on each entity
const ScanInterval = 5 * time.Second

// Mode selects how devices fan out into entities
type Mode int

const (
	// PerCapability creates one entity per switchable capability
	PerCapability Mode = iota
	// Legacy creates one entity per device for the first capability
	Legacy
)

// String returns the config spelling of the mode
func (m Mode) String() string {
	if m == Legacy {
		return "legacy"
	}
	return "per_capability"
}

// Client is the part of the EZVIZ client an entity talks to
type Client interface {
	PageList(ctx context.Context, filter string) (*ezviz.PageList, error)
	SwitchStatus(ctx context.Context, serial string, switchType ezviz.SwitchType, enable int) bool
}

// DeviceInfo links an entity to its physical device
type DeviceInfo struct {
	Identifiers  [][2]string `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
	SWVersion    string      `json:"sw_version,omitempty"`
}

// Snapshot is a point in time view of an entity
type Snapshot struct {
	UniqueID   string         `json:"unique_id"`
	Name       string         `json:"name"`
	Serial     string         `json:"device_serial"`
	SwitchType int            `json:"switch_type"`
	State      string         `json:"state"`
	Available  bool           `json:"available"`
	Icon       string         `json:"icon"`
	Attributes map[string]any `json:"attributes"`
	Device     DeviceInfo     `json:"device_info"`
}

// Entity is a toggleable view of one device capability
type Entity struct {
	client     Client
	logger     *zap.Logger
	clock      clock.Clock
	mode       Mode
	switchType ezviz.SwitchType

	mu             sync.RWMutex
	device         *coordinator.Device
	state          *bool
	lastRunSuccess *bool
	lastPressed    time.Time
}

// NewEntity creates an entity for one capability of device. The device is
// copied.
func NewEntity(device *coordinator.Device, switchType ezviz.SwitchType, mode Mode, client Client, clk clock.Clock, logger *zap.Logger) *Entity {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Entity{
		client:     client,
		logger:     logger.With(zap.String("serial", device.Serial), zap.Stringer("switch_type", switchType)),
		clock:      clk,
		mode:       mode,
		switchType: switchType,
		device:     device.Clone(),
	}
}

// UniqueID is the serial in legacy mode and "{serial}_{type}" otherwise
func (e *Entity) UniqueID() string {
	if e.mode == Legacy {
		return e.Serial()
	}
	return fmt.Sprintf("%s_%d", e.Serial(), int(e.switchType))
}

// Serial returns the device serial
func (e *Entity) Serial() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.device.Serial
}

// SwitchType returns the tracked capability
func (e *Entity) SwitchType() ezviz.SwitchType {
	return e.switchType
}

// Name is the device name, suffixed with the capability label when each
// capability is its own entity
func (e *Entity) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.mode == Legacy {
		return e.device.Name
	}
	return fmt.Sprintf("%s %s", e.device.Name, e.switchType.Label())
}

// IsOn returns the optimistic state when one is set, otherwise the cloud
// reported enable flag of the tracked capability
func (e *Entity) IsOn() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isOn()
}

func (e *Entity) isOn() bool {
	if e.state != nil {
		return *e.state
	}
	c, ok := e.device.Capability(e.switchType)
	return ok && c.On()
}

// State returns "on" or "off"
func (e *Entity) State() string {
	if e.IsOn() {
		return "on"
	}
	return "off"
}

// Available is false only when the cloud reports the device offline
func (e *Entity) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.device.Offline()
}

// TurnOn switches the capability on and reports whether the cloud accepted it
func (e *Entity) TurnOn(ctx context.Context) bool {
	return e.set(ctx, true)
}

// TurnOff switches the capability off and reports whether the cloud accepted it
func (e *Entity) TurnOff(ctx context.Context) bool {
	return e.set(ctx, false)
}

func (e *Entity) set(ctx context.Context, on bool) bool {
	enable := 0
	if on {
		enable = 1
	}

	e.mu.RLock()
	serial := e.device.Serial
	current := e.isOn()
	e.mu.RUnlock()

	e.logger.Debug("Setting switch",
		zap.Bool("on", on),
		zap.Bool("current", current))

	ok := e.client.SwitchStatus(ctx, serial, e.switchType, enable)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastRunSuccess = &ok
	if !ok {
		return false
	}

	e.state = &on
	e.device.SetEnable(e.switchType, enable)
	e.lastPressed = e.clock.Now().UTC()
	return true
}

// Update re-fetches the inventory and replaces the tracked device snapshot.
// Errors are logged and the previous snapshot is kept.
func (e *Entity) Update(ctx context.Context) {
	list, err := e.client.PageList(ctx, ezviz.SwitchFilter)
	if err != nil {
		e.logger.Error("Error updating entity", zap.Error(err))
		return
	}

	serial := e.Serial()
	device := coordinator.FindDevice(list, serial)
	if device == nil {
		e.logger.Debug("Device missing from inventory")
		return
	}
	if _, ok := device.Capability(e.switchType); !ok {
		e.logger.Warn("Capability missing from device")
		return
	}

	e.mu.Lock()
	e.device = device
	e.mu.Unlock()
}

// RestoreState applies the last state persisted by the host ("on"/"off").
// An empty value means nothing was stored.
func (e *Entity) RestoreState(last string) {
	if last == "" {
		return
	}
	on := last == "on"

	e.mu.Lock()
	e.state = &on
	e.mu.Unlock()
}

// OptimisticState returns the state set by a toggle or a restore. ok is
// false while the entity follows the cloud.
func (e *Entity) OptimisticState() (state string, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state == nil {
		return "", false
	}
	if *e.state {
		return "on", true
	}
	return "off", true
}

// LastPressed returns the time of the last successful toggle in RFC3339, or
// "" if the entity was never toggled
func (e *Entity) LastPressed() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.lastPressed.IsZero() {
		return ""
	}
	return e.lastPressed.Format(time.RFC3339Nano)
}

// Attributes returns the extra state attributes
func (e *Entity) Attributes() map[string]any {
	pressed := e.LastPressed()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var lastRun any
	if e.lastRunSuccess != nil {
		lastRun = *e.lastRunSuccess
	}

	return map[string]any{
		"last_run_success": lastRun,
		"last_pressed":     pressed,
		"switch_type":      int(e.switchType),
		"entities_count":   len(e.device.Capabilities),
		"all_entities":     append([]coordinator.Capability(nil), e.device.Capabilities...),
	}
}

// DeviceInfo returns the device registry entry shared by all entities of
// the same serial
func (e *Entity) DeviceInfo() DeviceInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	model := e.device.DeviceType
	if model == "" {
		model = "Unknown"
	}
	return DeviceInfo{
		Identifiers:  [][2]string{{Domain, e.device.Serial}},
		Name:         e.device.Name,
		Manufacturer: "EZVIZ",
		Model:        model,
		SWVersion:    e.device.Version,
	}
}

// Icon returns the mdi icon of the tracked capability
func (e *Entity) Icon() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.switchType.Icon(e.device.DeviceType, e.device.Serial)
}

// Snapshot collects everything a caller needs to render the entity
func (e *Entity) Snapshot() Snapshot {
	return Snapshot{
		UniqueID:   e.UniqueID(),
		Name:       e.Name(),
		Serial:     e.Serial(),
		SwitchType: int(e.switchType),
		State:      e.State(),
		Available:  e.Available(),
		Icon:       e.Icon(),
		Attributes: e.Attributes(),
		Device:     e.DeviceInfo(),
	}
}
