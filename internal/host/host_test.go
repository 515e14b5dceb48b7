package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ezvizswitch/internal/clock"
	"ezvizswitch/internal/coordinator"
	"ezvizswitch/internal/ezviz"
	"ezvizswitch/internal/switches"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	client *ezviz.MockClient
	clock  *clock.MockClock
	store  *StateStore
	host   *Host
}

func newHarness(t *testing.T, mode switches.Mode) *harness {
	logger, _ := zap.NewDevelopment()

	client := ezviz.NewMockClient()
	client.AddDevice(ezviz.Device{DeviceSerial: "BD1", Name: "Front door", DeviceType: "CS-DB2", Status: 1},
		ezviz.SwitchStatus{Type: ezviz.Code(ezviz.DoorbellTalk), Enable: 0},
		ezviz.SwitchStatus{Type: ezviz.Code(ezviz.AlarmLight), Enable: 1})
	client.AddDevice(ezviz.Device{DeviceSerial: "Q1", Name: "Kitchen plug", DeviceType: "CS-T30", Status: 1},
		ezviz.SwitchStatus{Type: ezviz.Code(ezviz.Plug), Enable: 0})

	clk := clock.NewMockClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	store := NewStateStore(filepath.Join(t.TempDir(), "states.json"), logger)
	coord := coordinator.New(client, coordinator.Options{Clock: clk}, logger)

	h := New(client, coord, Options{
		Mode:  mode,
		Clock: clk,
		Store: store,
	}, logger)

	return &harness{client: client, clock: clk, store: store, host: h}
}

func TestHost_Setup(t *testing.T) {
	t.Run("per capability entities", func(t *testing.T) {
		h := newHarness(t, switches.PerCapability)
		require.NoError(t, h.host.Setup(context.Background()))

		assert.Equal(t, []string{"BD1_101", "BD1_303", "Q1_14"}, h.host.Registry().IDs())
		assert.True(t, h.client.Session().Valid())
		assert.True(t, h.host.Coordinator().LastUpdateSuccess())
	})

	t.Run("legacy entities", func(t *testing.T) {
		h := newHarness(t, switches.Legacy)
		require.NoError(t, h.host.Setup(context.Background()))

		assert.Equal(t, []string{"BD1", "Q1"}, h.host.Registry().IDs())
	})

	t.Run("failed login is logged and the fetch fails", func(t *testing.T) {
		h := newHarness(t, switches.PerCapability)
		h.client.SetLoginError(&ezviz.AuthError{Code: 1013, Message: "Incorrect username or password"})

		err := h.host.Setup(context.Background())
		require.Error(t, err)

		var updateErr *coordinator.UpdateFailedError
		assert.True(t, errors.As(err, &updateErr))
		assert.ErrorIs(t, err, ezviz.ErrAuthRequired)
		assert.Equal(t, 0, h.host.Registry().Len())
	})

	t.Run("stored states are restored", func(t *testing.T) {
		h := newHarness(t, switches.PerCapability)
		require.NoError(t, h.store.Save(map[string]string{
			"Q1_14":   "on",
			"BD1_303": "off",
		}))

		require.NoError(t, h.host.Setup(context.Background()))

		snap, err := h.host.Snapshot("Q1_14")
		require.NoError(t, err)
		assert.Equal(t, "on", snap.State)

		snap, err = h.host.Snapshot("BD1_303")
		require.NoError(t, err)
		assert.Equal(t, "off", snap.State)

		// Nothing stored, so the cloud value is used
		snap, err = h.host.Snapshot("BD1_101")
		require.NoError(t, err)
		assert.Equal(t, "off", snap.State)
	})

	t.Run("corrupt state file is ignored", func(t *testing.T) {
		h := newHarness(t, switches.PerCapability)
		require.NoError(t, os.WriteFile(h.store.Path(), []byte("{not json"), 0o644))

		require.NoError(t, h.host.Setup(context.Background()))
		assert.Equal(t, 3, h.host.Registry().Len())
	})
}

func TestHost_Toggle(t *testing.T) {
	h := newHarness(t, switches.PerCapability)
	require.NoError(t, h.host.Setup(context.Background()))

	var mu sync.Mutex
	var events []switches.Snapshot
	sub := h.host.Subscribe(func(snap switches.Snapshot) {
		mu.Lock()
		events = append(events, snap)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	t.Run("success notifies and persists", func(t *testing.T) {
		snap, err := h.host.Toggle(context.Background(), "Q1_14", true)
		require.NoError(t, err)
		assert.Equal(t, "on", snap.State)

		mu.Lock()
		require.Len(t, events, 1)
		assert.Equal(t, "Q1_14", events[0].UniqueID)
		mu.Unlock()

		states, err := h.store.Load()
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Q1_14": "on"}, states)
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := h.host.Toggle(context.Background(), "nope", true)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cloud rejection", func(t *testing.T) {
		h.client.SetSwitchFailure(true)
		defer h.client.SetSwitchFailure(false)

		snap, err := h.host.Toggle(context.Background(), "Q1_14", false)
		assert.ErrorIs(t, err, ErrToggleFailed)
		assert.Equal(t, "on", snap.State)
		assert.Equal(t, false, snap.Attributes["last_run_success"])

		mu.Lock()
		assert.Len(t, events, 1)
		mu.Unlock()
	})
}

func TestHost_Tick(t *testing.T) {
	h := newHarness(t, switches.PerCapability)
	require.NoError(t, h.host.Setup(context.Background()))

	var mu sync.Mutex
	var changed []string
	h.host.Subscribe(func(snap switches.Snapshot) {
		mu.Lock()
		changed = append(changed, snap.UniqueID)
		mu.Unlock()
	})

	h.client.SetEnable("BD1", ezviz.DoorbellTalk, 1)
	h.host.Tick(context.Background())

	mu.Lock()
	assert.Equal(t, []string{"BD1_101"}, changed)
	mu.Unlock()

	snap, err := h.host.Snapshot("BD1_101")
	require.NoError(t, err)
	assert.Equal(t, "on", snap.State)

	states, err := h.store.Load()
	require.NoError(t, err)
	assert.NotContains(t, states, "BD1_101")

	t.Run("availability changes are reported", func(t *testing.T) {
		mu.Lock()
		changed = nil
		mu.Unlock()

		h.client.SetDeviceStatus("Q1", 2)
		h.host.Tick(context.Background())

		mu.Lock()
		assert.Equal(t, []string{"Q1_14"}, changed)
		mu.Unlock()
	})
}

func TestHost_Discovery(t *testing.T) {
	h := newHarness(t, switches.PerCapability)
	require.NoError(t, h.host.Setup(context.Background()))
	require.Equal(t, 3, h.host.Registry().Len())

	h.client.AddDevice(ezviz.Device{DeviceSerial: "L1", Name: "Porch", DeviceType: "CS-C8", Status: 1},
		ezviz.SwitchStatus{Type: ezviz.Code(ezviz.Light), Enable: 1})

	_, err := h.host.Coordinator().Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"BD1_101", "BD1_303", "L1_3", "Q1_14"}, h.host.Registry().IDs())
}

func TestHost_Run(t *testing.T) {
	h := newHarness(t, switches.PerCapability)
	require.NoError(t, h.host.Setup(context.Background()))
	calls := h.client.PageListCalls()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.host.Run(ctx)
		close(done)
	}()

	// Entity loop and coordinator loop are both parked
	require.Eventually(t, func() bool { return h.clock.Waiters() == 2 }, time.Second, time.Millisecond)

	h.clock.Advance(switches.ScanInterval)
	require.Eventually(t, func() bool { return h.client.PageListCalls() == calls+3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := os.Stat(h.store.Path())
	assert.NoError(t, err)
}

func TestHost_RestartFollowsCloud(t *testing.T) {
	h := newHarness(t, switches.PerCapability)
	require.NoError(t, h.host.Setup(context.Background()))

	_, err := h.host.Toggle(context.Background(), "Q1_14", true)
	require.NoError(t, err)
	h.host.Tick(context.Background())

	logger, _ := zap.NewDevelopment()
	coord := coordinator.New(h.client, coordinator.Options{Clock: h.clock}, logger)
	restarted := New(h.client, coord, Options{Clock: h.clock, Store: h.store}, logger)
	require.NoError(t, restarted.Setup(context.Background()))

	// Changes from the vendor app still reach entities that were never toggled
	h.client.SetEnable("BD1", ezviz.DoorbellTalk, 1)
	restarted.Tick(context.Background())

	snap, err := restarted.Snapshot("BD1_101")
	require.NoError(t, err)
	assert.Equal(t, "on", snap.State)

	// The toggled plug keeps its restored state
	h.client.SetEnable("Q1", ezviz.Plug, 0)
	restarted.Tick(context.Background())

	snap, err = restarted.Snapshot("Q1_14")
	require.NoError(t, err)
	assert.Equal(t, "on", snap.State)
}
