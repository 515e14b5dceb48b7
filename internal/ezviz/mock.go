package ezviz

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SwitchCall records a SwitchStatus call for testing
type SwitchCall struct {
	Serial     string
	SwitchType SwitchType
	Enable     int
	Time       time.Time
}

// MockClient implements EzvizClient for testing. Devices and switch entries
// are held in memory and SwitchStatus updates them in place.
type MockClient struct {
	mu           sync.RWMutex
	devices      []Device
	switches     map[string][]SwitchStatus
	session      Session
	loginErr     error
	pageListErr  error
	failSwitch   bool
	switchCalls  []SwitchCall
	pageListHits int
	closed       bool
}

// NewMockClient creates a new mock EZVIZ client with no devices
func NewMockClient() *MockClient {
	return &MockClient{
		switches: make(map[string][]SwitchStatus),
	}
}

// AddDevice registers a device and its switch entries
func (m *MockClient) AddDevice(device Device, switches ...SwitchStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices = append(m.devices, device)
	if len(switches) > 0 {
		m.switches[device.DeviceSerial] = append(m.switches[device.DeviceSerial], switches...)
	}
}

// SetEnable changes a switch entry as if it were toggled from the vendor app
func (m *MockClient) SetEnable(serial string, switchType SwitchType, enable int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sw := range m.switches[serial] {
		if SwitchType(sw.Type) == switchType {
			m.switches[serial][i].Enable = Flag(enable)
		}
	}
}

// SetDeviceStatus changes the availability status code of a device
func (m *MockClient) SetDeviceStatus(serial string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.devices {
		if m.devices[i].DeviceSerial == serial {
			m.devices[i].Status = status
		}
	}
}

// SetLoginError makes Login fail with err
func (m *MockClient) SetLoginError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginErr = err
}

// SetPageListError makes PageList fail with err
func (m *MockClient) SetPageListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageListErr = err
}

// SetSwitchFailure makes SwitchStatus report failure
func (m *MockClient) SetSwitchFailure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSwitch = fail
}

// Login simulates a successful login unless an error was configured
func (m *MockClient) Login(ctx context.Context) (AuthData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loginErr != nil {
		return AuthData{}, m.loginErr
	}
	m.session = Session{SessionID: "mock-session", RfSessionID: "mock-rf-session"}
	return AuthData{
		SessionID:   m.session.SessionID,
		RfSessionID: m.session.RfSessionID,
		APIURL:      EUURL,
	}, nil
}

// PageList returns copies of the registered devices and switch entries
func (m *MockClient) PageList(ctx context.Context, filter string) (*PageList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pageListHits++
	if !m.session.Valid() {
		return nil, ErrAuthRequired
	}
	if m.pageListErr != nil {
		return nil, m.pageListErr
	}

	result := &PageList{DeviceInfos: append([]Device{}, m.devices...)}
	if filter == SwitchFilter {
		result.Switch = make(map[string][]SwitchStatus, len(m.switches))
		for serial, switches := range m.switches {
			result.Switch[serial] = append([]SwitchStatus{}, switches...)
		}
	}
	return result, nil
}

// SwitchStatus records the call and updates the matching switch entry
func (m *MockClient) SwitchStatus(ctx context.Context, serial string, switchType SwitchType, enable int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.switchCalls = append(m.switchCalls, SwitchCall{
		Serial:     serial,
		SwitchType: switchType,
		Enable:     enable,
		Time:       time.Now(),
	})

	if !m.session.Valid() || m.failSwitch {
		return false
	}

	for i, sw := range m.switches[serial] {
		if SwitchType(sw.Type) == switchType {
			m.switches[serial][i].Enable = Flag(enable)
			return true
		}
	}
	return false
}

// Session returns the mock session
func (m *MockClient) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Close marks the mock as closed
func (m *MockClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Closed reports whether Close was called
func (m *MockClient) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// SwitchCalls returns all recorded SwitchStatus calls
func (m *MockClient) SwitchCalls() []SwitchCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]SwitchCall, len(m.switchCalls))
	copy(calls, m.switchCalls)
	return calls
}

// PageListCalls returns how many times PageList was called
func (m *MockClient) PageListCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageListHits
}

// Enable returns the stored enable flag of a switch entry
func (m *MockClient) Enable(serial string, switchType SwitchType) (Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sw := range m.switches[serial] {
		if SwitchType(sw.Type) == switchType {
			return sw.Enable, nil
		}
	}
	return 0, fmt.Errorf("switch %d not found on device %s", switchType, serial)
}
