// Package testutil provides testing utilities for the EZVIZ switch bridge.
// This package contains a mock EZVIZ cloud HTTP server and helpers for
// writing integration tests against the real client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

const (
	// DefaultSessionID is the session token handed out by the mock on login
	DefaultSessionID = "mock-session-id"
	// DefaultRfSessionID is the refresh session token handed out on login
	DefaultRfSessionID = "mock-rf-session-id"
)

// Meta mirrors the status block of every EZVIZ response
type Meta struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the meta/data envelope the mock answers with
type Response struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data,omitempty"`
}

// DeviceInfo is a deviceInfos entry served by the mock
type DeviceInfo struct {
	DeviceSerial string `json:"deviceSerial"`
	Name         string `json:"name"`
	DeviceType   string `json:"deviceType"`
	Version      string `json:"version,omitempty"`
	Status       int    `json:"status"`
}

// SwitchEntry is one switch of a switchStatusInfos entry. Enable is sent as
// a JSON boolean like the real cloud does.
type SwitchEntry struct {
	Type   int  `json:"type"`
	Enable bool `json:"enable"`
}

// Alarm is a doorbell event served by the history endpoint
type Alarm struct {
	AlarmID        string `json:"alarmId"`
	AlarmName      string `json:"alarmName"`
	AlarmType      string `json:"alarmType"`
	AlarmStartTime int64  `json:"alarmStartTime"`
	IsCheck        int    `json:"isCheck"`
}

type injectedFailure struct {
	httpStatus int
	code       int
	message    string
}

// MockEzvizServer simulates the EZVIZ cloud API over HTTP
type MockEzvizServer struct {
	server      *httptest.Server
	account     string
	password    string
	sessionID   string
	rfSessionID string

	mu       sync.RWMutex
	devices  []DeviceInfo
	switches map[string][]SwitchEntry
	order    []string
	alarms   map[string][]Alarm
	images   map[string][]byte
	configs  map[string]map[string]any
	failures map[string]injectedFailure
	delay    time.Duration

	callsMu sync.Mutex
	calls   []APICall
}

// NewMockEzvizServer creates and starts a mock cloud accepting the given
// credentials. Call Close when done.
func NewMockEzvizServer(account, password string) *MockEzvizServer {
	s := &MockEzvizServer{
		account:     account,
		password:    password,
		sessionID:   DefaultSessionID,
		rfSessionID: DefaultRfSessionID,
		switches:    make(map[string][]SwitchEntry),
		alarms:      make(map[string][]Alarm),
		images:      make(map[string][]byte),
		configs:     make(map[string]map[string]any),
		failures:    make(map[string]injectedFailure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v3/users/login/v5", s.handleLogin)
	mux.HandleFunc("POST /v3/userdevices/v1/devices/pagelist", s.authenticated(s.handlePageList))
	mux.HandleFunc("POST /v3/userdevices/v1/devices/switchStatus", s.authenticated(s.handleSwitchStatus))
	mux.HandleFunc("POST /v3/alarm/device/history", s.authenticated(s.handleAlarmHistory))
	mux.HandleFunc("POST /v3/alarm/device/pic", s.authenticated(s.handleAlarmPic))
	mux.HandleFunc("POST /v3/alarm/device/read", s.authenticated(s.handleAlarmRead))
	mux.HandleFunc("GET /v3/devices/{serial}/doorbell/config", s.authenticated(s.handleDoorbellConfig))
	mux.HandleFunc("POST /v3/devices/{serial}/doorbell/openDoor", s.authenticated(s.handleOpenDoor))

	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the base URL of the mock, usable as the client's API URL
func (s *MockEzvizServer) URL() string {
	return s.server.URL
}

// Close shuts the mock down
func (s *MockEzvizServer) Close() {
	s.server.Close()
}

// SetDelay makes every response wait for d, simulating a slow cloud
func (s *MockEzvizServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// AddDevice registers a device and its switches in server order
func (s *MockEzvizServer) AddDevice(device DeviceInfo, switches ...SwitchEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices = append(s.devices, device)
	if len(switches) > 0 {
		if _, ok := s.switches[device.DeviceSerial]; !ok {
			s.order = append(s.order, device.DeviceSerial)
		}
		s.switches[device.DeviceSerial] = append(s.switches[device.DeviceSerial], switches...)
	}
}

// SetEnable changes a switch as if it were toggled from the vendor app
func (s *MockEzvizServer) SetEnable(serial string, switchType int, enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sw := range s.switches[serial] {
		if sw.Type == switchType {
			s.switches[serial][i].Enable = enable
		}
	}
}

// Enable reports the current state of a switch
func (s *MockEzvizServer) Enable(serial string, switchType int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sw := range s.switches[serial] {
		if sw.Type == switchType {
			return sw.Enable
		}
	}
	return false
}

// AddAlarm registers a doorbell event for a device
func (s *MockEzvizServer) AddAlarm(serial string, alarm Alarm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[serial] = append(s.alarms[serial], alarm)
}

// AlarmChecked reports whether an alarm was marked as viewed
func (s *MockEzvizServer) AlarmChecked(serial, alarmID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alarms[serial] {
		if a.AlarmID == alarmID {
			return a.IsCheck == 1
		}
	}
	return false
}

// SetImage registers the snapshot served for an alarm
func (s *MockEzvizServer) SetImage(alarmID string, image []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[alarmID] = image
}

// SetDoorbellConfig registers the configuration served for a doorbell
func (s *MockEzvizServer) SetDoorbellConfig(serial string, config map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[serial] = config
}

// FailWithCode makes every request to path answer with the given
// application status code until cleared.
func (s *MockEzvizServer) FailWithCode(path string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = injectedFailure{code: code, message: message}
}

// FailWithHTTPStatus makes every request to path answer with an HTTP error
func (s *MockEzvizServer) FailWithHTTPStatus(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = injectedFailure{httpStatus: status}
}

// ClearFailures removes all injected failures
func (s *MockEzvizServer) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]injectedFailure)
}

// respond writes a meta/data envelope
func respond(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{
		Meta: Meta{Code: code, Message: message},
		Data: data,
	})
}

// intercept records the call and applies delay and injected failures.
// It returns false when the request was already answered.
func (s *MockEzvizServer) intercept(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body := map[string]any{}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	s.record(r, body)

	s.mu.RLock()
	delay := s.delay
	failure, failing := s.failures[r.URL.Path]
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return nil, false
		}
	}

	if failing {
		if failure.httpStatus != 0 {
			http.Error(w, http.StatusText(failure.httpStatus), failure.httpStatus)
			return nil, false
		}
		respond(w, failure.code, failure.message, nil)
		return nil, false
	}
	return body, true
}

// authenticated rejects requests that do not carry the session headers
func (s *MockEzvizServer) authenticated(next func(http.ResponseWriter, *http.Request, map[string]any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := s.intercept(w, r)
		if !ok {
			return
		}
		if r.Header.Get("sessionId") != s.sessionID || r.Header.Get("rfSessionId") != s.rfSessionID {
			respond(w, 401, "Session invalid", nil)
			return
		}
		next(w, r, body)
	}
}

func (s *MockEzvizServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := s.intercept(w, r)
	if !ok {
		return
	}

	if body["account"] != s.account || body["password"] != s.password {
		respond(w, 1013, "Incorrect username or password", nil)
		return
	}

	respond(w, 200, "Operation succeeded", map[string]any{
		"sessionId":   s.sessionID,
		"rfSessionId": s.rfSessionID,
	})
}

func (s *MockEzvizServer) handlePageList(w http.ResponseWriter, r *http.Request, body map[string]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := map[string]any{
		"deviceInfos": append([]DeviceInfo{}, s.devices...),
	}

	if body["filter"] == "SWITCH" {
		infos := make([]map[string]any, 0, len(s.order))
		for _, serial := range s.order {
			infos = append(infos, map[string]any{
				"deviceSerial": serial,
				"switchs":      append([]SwitchEntry{}, s.switches[serial]...),
			})
		}
		data["switchStatusInfos"] = infos
	}

	respond(w, 200, "Operation succeeded", data)
}

func (s *MockEzvizServer) handleSwitchStatus(w http.ResponseWriter, r *http.Request, body map[string]any) {
	serial, _ := body["deviceSerial"].(string)
	switchType, _ := body["type"].(float64)
	enable, _ := body["enable"].(float64)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sw := range s.switches[serial] {
		if sw.Type == int(switchType) {
			s.switches[serial][i].Enable = enable == 1
			respond(w, 200, "Operation succeeded", nil)
			return
		}
	}
	respond(w, 2000, fmt.Sprintf("Device %s has no switch %d", serial, int(switchType)), nil)
}

func (s *MockEzvizServer) handleAlarmHistory(w http.ResponseWriter, r *http.Request, body map[string]any) {
	serial, _ := body["deviceSerial"].(string)
	start, _ := body["startTime"].(float64)
	end, _ := body["endTime"].(float64)
	pageSize, _ := body["pageSize"].(float64)
	pageStart, _ := body["pageStart"].(float64)

	s.mu.RLock()
	var matched []Alarm
	for _, a := range s.alarms[serial] {
		if float64(a.AlarmStartTime) >= start && float64(a.AlarmStartTime) <= end {
			matched = append(matched, a)
		}
	}
	s.mu.RUnlock()

	from := int(pageStart) * int(pageSize)
	if from > len(matched) {
		from = len(matched)
	}
	to := from + int(pageSize)
	if to > len(matched) || pageSize == 0 {
		to = len(matched)
	}

	respond(w, 200, "Operation succeeded", map[string]any{
		"alarms": append([]Alarm{}, matched[from:to]...),
		"page": map[string]any{
			"totalResults": len(matched),
			"pageSize":     int(pageSize),
			"page":         int(pageStart),
		},
	})
}

func (s *MockEzvizServer) handleAlarmPic(w http.ResponseWriter, r *http.Request, body map[string]any) {
	alarmID, _ := body["alarmId"].(string)

	s.mu.RLock()
	image, ok := s.images[alarmID]
	s.mu.RUnlock()

	if !ok {
		respond(w, 404, "Picture not found", nil)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(image)
}

func (s *MockEzvizServer) handleAlarmRead(w http.ResponseWriter, r *http.Request, body map[string]any) {
	serial, _ := body["deviceSerial"].(string)
	alarmID, _ := body["alarmId"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.alarms[serial] {
		if a.AlarmID == alarmID {
			s.alarms[serial][i].IsCheck = 1
			respond(w, 200, "Operation succeeded", nil)
			return
		}
	}
	respond(w, 2001, "Alarm not found", nil)
}

func (s *MockEzvizServer) handleDoorbellConfig(w http.ResponseWriter, r *http.Request, body map[string]any) {
	serial := r.PathValue("serial")

	s.mu.RLock()
	config, ok := s.configs[serial]
	s.mu.RUnlock()

	if !ok {
		respond(w, 2000, "Device not found", nil)
		return
	}
	respond(w, 200, "Operation succeeded", config)
}

func (s *MockEzvizServer) handleOpenDoor(w http.ResponseWriter, r *http.Request, body map[string]any) {
	serial := r.PathValue("serial")

	s.mu.RLock()
	_, ok := s.configs[serial]
	s.mu.RUnlock()

	if !ok {
		respond(w, 2000, "Device not found", nil)
		return
	}
	respond(w, 200, "Operation succeeded", nil)
}
