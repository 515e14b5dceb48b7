package ezviz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ezvizswitch/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAccount  = "user@example.com"
	testPassword = "secret"
)

func newTestClient(t *testing.T, server *testutil.MockEzvizServer) *Client {
	logger, _ := zap.NewDevelopment()
	client := NewClient(Options{
		Email:    testAccount,
		Password: testPassword,
		APIURL:   server.URL(),
		Timeout:  2 * time.Second,
	}, logger)
	t.Cleanup(client.Close)
	return client
}

func TestClient_Login(t *testing.T) {
	t.Run("valid credentials populate both tokens", func(t *testing.T) {
		server := testutil.NewMockEzvizServer(testAccount, testPassword)
		defer server.Close()

		client := newTestClient(t, server)
		auth, err := client.Login(context.Background())
		require.NoError(t, err)

		assert.Equal(t, testutil.DefaultSessionID, auth.SessionID)
		assert.Equal(t, testutil.DefaultRfSessionID, auth.RfSessionID)
		assert.Equal(t, server.URL(), auth.APIURL)
		assert.True(t, client.Session().Valid())

		call := server.LastAPICall("/v3/users/login/v5")
		require.NotNil(t, call)
		assert.Equal(t, testAccount, call.Body["account"])
		assert.Equal(t, testPassword, call.Body["password"])
		assert.Equal(t, featureCode, call.Body["featureCode"])
	})

	t.Run("wrong password is an auth error", func(t *testing.T) {
		server := testutil.NewMockEzvizServer(testAccount, "other")
		defer server.Close()

		client := newTestClient(t, server)
		_, err := client.Login(context.Background())
		require.Error(t, err)

		var authErr *AuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, 1013, authErr.Code)
		assert.Contains(t, err.Error(), "Incorrect username or password")
		assert.False(t, client.Session().Valid())
	})

	t.Run("http failure is returned", func(t *testing.T) {
		server := testutil.NewMockEzvizServer(testAccount, testPassword)
		defer server.Close()
		server.FailWithHTTPStatus("/v3/users/login/v5", http.StatusBadGateway)

		client := newTestClient(t, server)
		_, err := client.Login(context.Background())
		require.Error(t, err)

		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	})

	t.Run("missing meta block is an auth error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {}}`))
		}))
		defer server.Close()

		logger, _ := zap.NewDevelopment()
		client := NewClient(Options{APIURL: server.URL}, logger)
		_, err := client.Login(context.Background())

		var authErr *AuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, "Unknown error", authErr.Message)
	})
}

func TestClient_RequiresSession(t *testing.T) {
	server := testutil.NewMockEzvizServer(testAccount, testPassword)
	defer server.Close()

	client := newTestClient(t, server)

	_, err := client.PageList(context.Background(), SwitchFilter)
	assert.ErrorIs(t, err, ErrAuthRequired)

	assert.False(t, client.SwitchStatus(context.Background(), "ABC123", Plug, 1))

	// Nothing reached the server
	assert.Empty(t, server.GetAPICalls())
}

func TestClient_SeededSession(t *testing.T) {
	server := testutil.NewMockEzvizServer(testAccount, testPassword)
	defer server.Close()
	server.AddDevice(testutil.DeviceInfo{DeviceSerial: "P1", Name: "Plug"}, testutil.SwitchEntry{Type: 14, Enable: true})

	logger, _ := zap.NewDevelopment()
	client := NewClient(Options{
		APIURL: server.URL(),
		Session: Session{
			SessionID:   testutil.DefaultSessionID,
			RfSessionID: testutil.DefaultRfSessionID,
		},
	}, logger)

	list, err := client.PageList(context.Background(), SwitchFilter)
	require.NoError(t, err)
	assert.Len(t, list.DeviceInfos, 1)
}

func TestClient_PageList(t *testing.T) {
	server := testutil.NewMockEzvizServer(testAccount, testPassword)
	defer server.Close()

	server.AddDevice(testutil.DeviceInfo{
		DeviceSerial: "BC1234567",
		Name:         "Front door",
		DeviceType:   "CS-DB2",
		Version:      "V5.3.0",
		Status:       1,
	}, testutil.SwitchEntry{Type: 101, Enable: false}, testutil.SwitchEntry{Type: 303, Enable: true})
	server.AddDevice(testutil.DeviceInfo{
		DeviceSerial: "Q98765432",
		Name:         "Kitchen plug",
		DeviceType:   "CS-T30-10A-EU",
		Status:       1,
	}, testutil.SwitchEntry{Type: 14, Enable: true})
	server.AddDevice(testutil.DeviceInfo{
		DeviceSerial: "C6N000001",
		Name:         "Garden camera",
		DeviceType:   "CS-C6N",
		Status:       2,
	})

	client := newTestClient(t, server)
	_, err := client.Login(context.Background())
	require.NoError(t, err)

	t.Run("switch filter groups entries by serial", func(t *testing.T) {
		list, err := client.PageList(context.Background(), SwitchFilter)
		require.NoError(t, err)

		assert.Len(t, list.DeviceInfos, 3)
		assert.Equal(t, "Front door", list.DeviceInfos[0].Name)
		assert.Equal(t, "V5.3.0", list.DeviceInfos[0].Version)

		require.Len(t, list.Switch, 2)
		doorbell := list.Switch["BC1234567"]
		require.Len(t, doorbell, 2)
		assert.Equal(t, Code(DoorbellTalk), doorbell[0].Type)
		assert.False(t, doorbell[0].Enable.On())
		assert.Equal(t, Code(AlarmLight), doorbell[1].Type)
		assert.True(t, doorbell[1].Enable.On())

		_, ok := list.Switch["C6N000001"]
		assert.False(t, ok)

		call := server.LastAPICall("/v3/userdevices/v1/devices/pagelist")
		require.NotNil(t, call)
		assert.Equal(t, "SWITCH", call.Body["filter"])
		assert.Equal(t, float64(50), call.Body["pageSize"])
		assert.Equal(t, float64(0), call.Body["pageStart"])
		assert.Equal(t, testutil.DefaultSessionID, call.SessionID)
		assert.Equal(t, testutil.DefaultRfSessionID, call.RfSessionID)
	})

	t.Run("other filters leave Switch nil", func(t *testing.T) {
		list, err := client.PageList(context.Background(), "")
		require.NoError(t, err)
		assert.Len(t, list.DeviceInfos, 3)
		assert.Nil(t, list.Switch)
	})

	t.Run("application error", func(t *testing.T) {
		server.FailWithCode("/v3/userdevices/v1/devices/pagelist", 10002, "Session expired")
		defer server.ClearFailures()

		_, err := client.PageList(context.Background(), SwitchFilter)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 10002, apiErr.Code)
		assert.Equal(t, "API error: Session expired", err.Error())
	})
}

func TestClient_PageListRepeatedSerial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"meta": {"code": 200},
			"data": {
				"deviceInfos": [{"deviceSerial": "A1", "name": "A", "deviceType": "T", "status": 1}],
				"switchStatusInfos": [
					{"deviceSerial": "A1", "switchs": [{"type": 14, "enable": 1}]},
					{"deviceSerial": "", "switchs": [{"type": 3, "enable": 1}]},
					{"deviceSerial": "A1", "switchs": [{"type": "3", "enable": false}]},
					{"deviceSerial": "B2", "switchs": []}
				]
			}
		}`))
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(Options{
		APIURL:  server.URL,
		Session: Session{SessionID: "s", RfSessionID: "r"},
	}, logger)

	list, err := client.PageList(context.Background(), SwitchFilter)
	require.NoError(t, err)

	require.Len(t, list.Switch["A1"], 2)
	assert.Equal(t, Code(14), list.Switch["A1"][0].Type)
	assert.True(t, list.Switch["A1"][0].Enable.On())
	assert.Equal(t, Code(3), list.Switch["A1"][1].Type)
	assert.False(t, list.Switch["A1"][1].Enable.On())

	entries, ok := list.Switch["B2"]
	assert.True(t, ok)
	assert.Empty(t, entries)
	assert.Len(t, list.Switch, 2)
}

func TestClient_SwitchStatus(t *testing.T) {
	server := testutil.NewMockEzvizServer(testAccount, testPassword)
	defer server.Close()
	server.AddDevice(testutil.DeviceInfo{DeviceSerial: "Q1", Name: "Plug"}, testutil.SwitchEntry{Type: 14, Enable: false})

	client := newTestClient(t, server)
	_, err := client.Login(context.Background())
	require.NoError(t, err)

	t.Run("turn on", func(t *testing.T) {
		ok := client.SwitchStatus(context.Background(), "Q1", Plug, 1)
		assert.True(t, ok)
		assert.True(t, server.Enable("Q1", 14))

		call := server.LastAPICall("/v3/userdevices/v1/devices/switchStatus")
		require.NotNil(t, call)
		assert.Equal(t, "Q1", call.Body["deviceSerial"])
		assert.Equal(t, float64(1), call.Body["enable"])
		assert.Equal(t, float64(14), call.Body["type"])
	})

	t.Run("application error yields false", func(t *testing.T) {
		ok := client.SwitchStatus(context.Background(), "Q1", Light, 0)
		assert.False(t, ok)
	})

	t.Run("http error yields false", func(t *testing.T) {
		server.FailWithHTTPStatus("/v3/userdevices/v1/devices/switchStatus", http.StatusInternalServerError)
		defer server.ClearFailures()

		assert.False(t, client.SwitchStatus(context.Background(), "Q1", Plug, 0))
		assert.True(t, server.Enable("Q1", 14))
	})

	t.Run("timeout yields false", func(t *testing.T) {
		server.SetDelay(500 * time.Millisecond)
		defer server.SetDelay(0)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.False(t, client.SwitchStatus(ctx, "Q1", Plug, 0))
	})
}

func TestClient_BaseURL(t *testing.T) {
	assert.Equal(t, "https://apiieu.ezvizlife.com", baseURL(EUURL))
	assert.Equal(t, "https://apirus.ezvizru.com", baseURL(RussiaURL+"/"))
	assert.Equal(t, "http://127.0.0.1:8080", baseURL("http://127.0.0.1:8080/"))

	logger := zap.NewNop()
	client := NewClient(Options{}, logger)
	assert.Equal(t, EUURL, client.APIURL())
	assert.Equal(t, DefaultTimeout, client.Timeout())
}

func TestFlag_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  Flag
	}{
		{`true`, 1},
		{`false`, 0},
		{`1`, 1},
		{`0`, 0},
		{`"1"`, 1},
		{`null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f Flag
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.want, f)
		})
	}

	var f Flag
	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &f))
}
