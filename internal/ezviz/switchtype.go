package ezviz

import (
	"fmt"
	"strconv"
	"strings"
)

// SwitchType is the vendor code identifying a switchable capability
type SwitchType int

// Switch types known to the EZVIZ cloud
const (
	AlarmTone           SwitchType = 1
	Light               SwitchType = 3
	InfraredLight       SwitchType = 10
	Plug                SwitchType = 14
	OutdoorRingingSound SwitchType = 39
	DoorbellTalk        SwitchType = 101
	AlarmLight          SwitchType = 303
)

var switchTypeNames = map[SwitchType]string{
	AlarmTone:           "ALARM_TONE",
	Light:               "LIGHT",
	InfraredLight:       "INFRARED_LIGHT",
	Plug:                "PLUG",
	OutdoorRingingSound: "OUTDOOR_RINGING_SOUND",
	DoorbellTalk:        "DOORBELL_TALK",
	AlarmLight:          "ALARM_LIGHT",
}

// String returns the vendor name, or SWITCH_<n> for codes we do not know
func (t SwitchType) String() string {
	if name, ok := switchTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SWITCH_%d", int(t))
}

// Label is the human readable form used in entity names ("Alarm light")
func (t SwitchType) Label() string {
	name := strings.ToLower(strings.ReplaceAll(t.String(), "_", " "))
	return strings.ToUpper(name[:1]) + name[1:]
}

// Known reports whether the code is one of the documented switch types
func (t SwitchType) Known() bool {
	_, ok := switchTypeNames[t]
	return ok
}

// Icon returns the mdi icon for the switch type. Plugs get a region specific
// socket icon derived from the device type and serial.
func (t SwitchType) Icon(deviceType, serial string) string {
	switch t {
	case DoorbellTalk:
		return "mdi:doorbell"
	case AlarmTone:
		return "mdi:bell-ring"
	case Light:
		return "mdi:lightbulb"
	case OutdoorRingingSound:
		return "mdi:volume-high"
	case AlarmLight:
		return "mdi:alarm-light"
	case InfraredLight:
		return "mdi:flashlight"
	case Plug:
		if strings.HasSuffix(deviceType, "EU") {
			return "mdi:power-socket-de"
		}
		if strings.HasSuffix(serial, "US") {
			return "mdi:power-socket-us"
		}
		return "mdi:power-socket"
	default:
		return "mdi:toggle-switch"
	}
}

// ParseSwitchType accepts a numeric code or a vendor name such as PLUG or
// alarm_light
func ParseSwitchType(v string) (SwitchType, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return SwitchType(n), nil
	}
	want := strings.ToUpper(strings.ReplaceAll(v, "-", "_"))
	for t, name := range switchTypeNames {
		if name == want {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown switch type %q", v)
}
