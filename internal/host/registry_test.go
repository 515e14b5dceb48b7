package host

import (
	"path/filepath"
	"testing"

	"ezvizswitch/internal/coordinator"
	"ezvizswitch/internal/ezviz"
	"ezvizswitch/internal/switches"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEntity(serial string, switchType ezviz.SwitchType, mode switches.Mode) *switches.Entity {
	device := &coordinator.Device{
		Serial:       serial,
		Name:         serial,
		Capabilities: []coordinator.Capability{{SwitchType: switchType, Enable: 1}},
	}
	return switches.NewEntity(device, switchType, mode, ezviz.NewMockClient(), nil, zap.NewNop())
}

func TestRegistry_Add(t *testing.T) {
	tests := []struct {
		name        string
		entity      *switches.Entity
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid entity",
			entity: newEntity("A1", ezviz.Plug, switches.PerCapability),
		},
		{
			name:        "nil entity",
			entity:      nil,
			wantErr:     true,
			errContains: "cannot be nil",
		},
		{
			name:        "empty unique id",
			entity:      newEntity("", ezviz.Plug, switches.Legacy),
			wantErr:     true,
			errContains: "cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.Add(tt.entity)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Add(newEntity("A1", ezviz.Plug, switches.PerCapability)))

	err := registry.Add(newEntity("A1", ezviz.Plug, switches.PerCapability))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// Same serial, different capability
	require.NoError(t, registry.Add(newEntity("A1", ezviz.Light, switches.PerCapability)))
	assert.Equal(t, 2, registry.Len())
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry()
	for _, serial := range []string{"C3", "A1", "B2"} {
		require.NoError(t, registry.Add(newEntity(serial, ezviz.Plug, switches.Legacy)))
	}

	assert.Equal(t, []string{"A1", "B2", "C3"}, registry.IDs())
	assert.NotNil(t, registry.Get("B2"))
	assert.Nil(t, registry.Get("Z9"))
	assert.True(t, registry.Has("C3"))
}

func TestStateStore(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(filepath.Join(dir, "nested", "states.json"), zap.NewNop())

	states, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, states)

	require.NoError(t, store.Save(map[string]string{"A1_14": "on", "B2": "off"}))

	states, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A1_14": "on", "B2": "off"}, states)

	require.NoError(t, store.Save(map[string]string{}))
	states, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, states)
}
