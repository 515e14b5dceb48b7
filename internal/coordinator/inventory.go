package coordinator

import (
	"sort"

	"ezvizswitch/internal/ezviz"
)

// Capability is one switchable feature of a device
type Capability struct {
	SwitchType ezviz.SwitchType `json:"switch_type"`
	Enable     int              `json:"enable"`
}

// On reports whether the capability is enabled
func (c Capability) On() bool {
	return c.Enable == 1
}

// Device is a switchable device as seen by the coordinator. Enable and
// SwitchType mirror the first capability for single entity consumers.
type Device struct {
	Serial       string           `json:"device_serial"`
	Name         string           `json:"name"`
	DeviceType   string           `json:"device_type"`
	Version      string           `json:"version,omitempty"`
	Status       int              `json:"status"`
	Enable       int              `json:"enable"`
	SwitchType   ezviz.SwitchType `json:"switch_type"`
	Capabilities []Capability     `json:"entities"`
}

// Clone returns a deep copy so entities never share capability slices with
// the coordinator snapshot
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	c.Capabilities = append([]Capability(nil), d.Capabilities...)
	return &c
}

// Capability returns the capability of the given type
func (d *Device) Capability(switchType ezviz.SwitchType) (Capability, bool) {
	for _, c := range d.Capabilities {
		if c.SwitchType == switchType {
			return c, true
		}
	}
	return Capability{}, false
}

// SetEnable updates the capability of the given type and keeps the first
// capability mirror in sync
func (d *Device) SetEnable(switchType ezviz.SwitchType, enable int) {
	for i := range d.Capabilities {
		if d.Capabilities[i].SwitchType == switchType {
			d.Capabilities[i].Enable = enable
		}
	}
	if len(d.Capabilities) > 0 {
		d.Enable = d.Capabilities[0].Enable
	}
}

// Offline reports the vendor status code for an unreachable device
func (d *Device) Offline() bool {
	return d.Status == 2
}

// Inventory maps device serials to their switchable devices
type Inventory map[string]*Device

// Serials returns the serials in sorted order
func (inv Inventory) Serials() []string {
	serials := make([]string, 0, len(inv))
	for serial := range inv {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	return serials
}

// Clone deep copies the inventory
func (inv Inventory) Clone() Inventory {
	if inv == nil {
		return nil
	}
	c := make(Inventory, len(inv))
	for serial, d := range inv {
		c[serial] = d.Clone()
	}
	return c
}

// BuildInventory reshapes a SWITCH page list into the inventory. Devices
// without any switch entry are left out and capabilities keep server order.
func BuildInventory(list *ezviz.PageList) Inventory {
	inv := make(Inventory)
	if list == nil {
		return inv
	}

	for _, info := range list.DeviceInfos {
		entries, ok := list.Switch[info.DeviceSerial]
		if !ok || len(entries) == 0 {
			continue
		}

		caps := make([]Capability, 0, len(entries))
		for _, e := range entries {
			caps = append(caps, Capability{
				SwitchType: ezviz.SwitchType(e.Type),
				Enable:     int(e.Enable),
			})
		}

		inv[info.DeviceSerial] = &Device{
			Serial:       info.DeviceSerial,
			Name:         info.Name,
			DeviceType:   info.DeviceType,
			Version:      info.Version,
			Status:       info.Status,
			Enable:       caps[0].Enable,
			SwitchType:   caps[0].SwitchType,
			Capabilities: caps,
		}
	}
	return inv
}

// FindDevice scans a SWITCH page list for one serial. It returns nil when
// the device is gone or has no switch entries.
func FindDevice(list *ezviz.PageList, serial string) *Device {
	if list == nil {
		return nil
	}
	for _, info := range list.DeviceInfos {
		if info.DeviceSerial != serial {
			continue
		}
		single := &ezviz.PageList{
			DeviceInfos: []ezviz.Device{info},
			Switch:      map[string][]ezviz.SwitchStatus{serial: list.Switch[serial]},
		}
		return BuildInventory(single)[serial]
	}
	return nil
}
