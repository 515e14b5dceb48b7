package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ezvizswitch/internal/config"
	"ezvizswitch/internal/coordinator"
	"ezvizswitch/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccount  = "user@example.com"
	testPassword = "hunter2"
)

func newCloud(t *testing.T) *testutil.MockEzvizServer {
	cloud := testutil.NewMockEzvizServer(testAccount, testPassword)
	t.Cleanup(cloud.Close)

	cloud.AddDevice(testutil.DeviceInfo{DeviceSerial: "Q1", Name: "Kitchen plug", DeviceType: "CS-T30", Status: 1},
		testutil.SwitchEntry{Type: 14, Enable: true})
	cloud.AddDevice(testutil.DeviceInfo{DeviceSerial: "BD1", Name: "Front door", DeviceType: "CS-DB2", Status: 2},
		testutil.SwitchEntry{Type: 101, Enable: false})
	cloud.SetDoorbellConfig("BD1", map[string]any{"gate": true})
	return cloud
}

func writeConfig(t *testing.T, cloud *testutil.MockEzvizServer) string {
	path := filepath.Join(t.TempDir(), "ezviz.yaml")
	content := fmt.Sprintf("email: %s\npassword: %s\nurl: %s\n", testAccount, testPassword, cloud.URL())
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestDevicesCommand(t *testing.T) {
	cloud := newCloud(t)
	path := writeConfig(t, cloud)

	out, err := runCLI(t, "devices", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "SERIAL")
	assert.Contains(t, out, "Kitchen plug")
	assert.Contains(t, out, "PLUG=on")
	assert.Contains(t, out, "DOORBELL_TALK=off")
	assert.Contains(t, out, "offline")
	assert.Equal(t, 1, cloud.CountAPICalls("/v3/users/login/v5"))
}

func TestSwitchCommand(t *testing.T) {
	cloud := newCloud(t)
	path := writeConfig(t, cloud)

	t.Run("off by name", func(t *testing.T) {
		out, err := runCLI(t, "switch", "off", "Q1", "PLUG", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Q1 PLUG: off")
		assert.False(t, cloud.Enable("Q1", 14))
	})

	t.Run("on by code", func(t *testing.T) {
		_, err := runCLI(t, "switch", "on", "Q1", "14", "--config", path)
		require.NoError(t, err)
		assert.True(t, cloud.Enable("Q1", 14))
	})

	t.Run("rejected by cloud", func(t *testing.T) {
		_, err := runCLI(t, "switch", "on", "Q1", "LIGHT", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := runCLI(t, "switch", "on", "Q1", "toaster", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown switch type")
	})
}

func TestLoginCommand(t *testing.T) {
	cloud := newCloud(t)
	path := writeConfig(t, cloud)

	_, err := runCLI(t, "login", "--config", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), testutil.DefaultSessionID)
	assert.Contains(t, string(data), testutil.DefaultRfSessionID)

	// Stored tokens are reused without another login
	_, err = runCLI(t, "devices", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 1, cloud.CountAPICalls("/v3/users/login/v5"))
}

func TestDoorbellOpenCommand(t *testing.T) {
	cloud := newCloud(t)
	path := writeConfig(t, cloud)

	out, err := runCLI(t, "doorbell", "open", "BD1", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Gate of BD1 opened")

	_, err = runCLI(t, "doorbell", "open", "NOPE", "--config", path)
	assert.Error(t, err)
}

func TestBadCredentials(t *testing.T) {
	cloud := newCloud(t)
	path := filepath.Join(t.TempDir(), "ezviz.yaml")
	content := fmt.Sprintf("email: %s\npassword: wrong\nurl: %s\n", testAccount, cloud.URL())
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := runCLI(t, "devices", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
}

func TestCoordinatorOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Timeout = 30 * time.Second
	cfg.PollInterval = time.Minute

	opts := coordinatorOptions(cfg)
	assert.Equal(t, time.Minute, opts.Interval)
	assert.Equal(t, coordinator.DefaultTimeout, opts.Timeout)
	assert.Equal(t, 10*time.Second, opts.Timeout)
}

func TestDoorbellEventCommands(t *testing.T) {
	cloud := newCloud(t)
	path := writeConfig(t, cloud)
	cloud.AddAlarm("BD1", testutil.Alarm{AlarmID: "A1", AlarmName: "Front door", AlarmType: "10000", AlarmStartTime: time.Now().UnixMilli()})
	cloud.SetImage("A1", []byte("\xff\xd8\xff\xe0visitor"))

	t.Run("config", func(t *testing.T) {
		out, err := runCLI(t, "doorbell", "config", "BD1", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, `"gate": true`)
	})

	t.Run("read", func(t *testing.T) {
		out, err := runCLI(t, "doorbell", "read", "BD1", "A1", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Event A1 marked as viewed")
		assert.True(t, cloud.AlarmChecked("BD1", "A1"))

		_, err = runCLI(t, "doorbell", "read", "BD1", "MISSING", "--config", path)
		assert.Error(t, err)
	})

	t.Run("image", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "visitor.jpg")
		out, err := runCLI(t, "doorbell", "image", "BD1", "A1", "--output", output, "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, output)

		data, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Equal(t, []byte("\xff\xd8\xff\xe0visitor"), data)

		_, err = runCLI(t, "doorbell", "image", "BD1", "MISSING", "--output", output, "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no image")
	})
}
