package ezviz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchType_Icon(t *testing.T) {
	tests := []struct {
		name       string
		switchType SwitchType
		deviceType string
		serial     string
		want       string
	}{
		{"doorbell talk", DoorbellTalk, "CS-DB2", "BD1", "mdi:doorbell"},
		{"alarm tone", AlarmTone, "CS-C6", "C1", "mdi:bell-ring"},
		{"light", Light, "CS-C8", "C2", "mdi:lightbulb"},
		{"outdoor ringing", OutdoorRingingSound, "CS-DB1", "D1", "mdi:volume-high"},
		{"alarm light", AlarmLight, "CS-C3X", "C3", "mdi:alarm-light"},
		{"infrared light", InfraredLight, "CS-C6N", "C4", "mdi:flashlight"},
		{"eu plug", Plug, "CS-T30-10A-EU", "Q1US", "mdi:power-socket-de"},
		{"us plug", Plug, "CS-T30-10B", "Q2US", "mdi:power-socket-us"},
		{"generic plug", Plug, "CS-T30", "Q3", "mdi:power-socket"},
		{"unknown type", SwitchType(7), "X", "X1", "mdi:toggle-switch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.switchType.Icon(tt.deviceType, tt.serial))
		})
	}
}

func TestSwitchType_Names(t *testing.T) {
	assert.Equal(t, "PLUG", Plug.String())
	assert.Equal(t, "ALARM_LIGHT", AlarmLight.String())
	assert.Equal(t, "SWITCH_21", SwitchType(21).String())

	assert.Equal(t, "Plug", Plug.Label())
	assert.Equal(t, "Outdoor ringing sound", OutdoorRingingSound.Label())
	assert.Equal(t, "Switch 21", SwitchType(21).Label())

	assert.True(t, InfraredLight.Known())
	assert.False(t, SwitchType(21).Known())
}

func TestParseSwitchType(t *testing.T) {
	tests := []struct {
		in      string
		want    SwitchType
		wantErr bool
	}{
		{"14", Plug, false},
		{"PLUG", Plug, false},
		{"alarm_light", AlarmLight, false},
		{"doorbell-talk", DoorbellTalk, false},
		{"21", SwitchType(21), false},
		{"toaster", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSwitchType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
