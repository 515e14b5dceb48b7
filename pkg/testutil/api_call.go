package testutil

import (
	"net/http"
	"time"
)

// APICall records a request received by the mock cloud for verification
type APICall struct {
	Timestamp   time.Time
	Method      string
	Path        string
	Body        map[string]any
	SessionID   string
	RfSessionID string
}

func (s *MockEzvizServer) record(r *http.Request, body map[string]any) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	s.calls = append(s.calls, APICall{
		Timestamp:   time.Now(),
		Method:      r.Method,
		Path:        r.URL.Path,
		Body:        body,
		SessionID:   r.Header.Get("sessionId"),
		RfSessionID: r.Header.Get("rfSessionId"),
	})
}

// GetAPICalls returns all calls received since the last clear
func (s *MockEzvizServer) GetAPICalls() []APICall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	calls := make([]APICall, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// ClearAPICalls resets the call log
func (s *MockEzvizServer) ClearAPICalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.calls = nil
}

// CountAPICalls counts calls made to path
func (s *MockEzvizServer) CountAPICalls(path string) int {
	return len(FilterAPICalls(s.GetAPICalls(), path))
}

// LastAPICall returns the most recent call to path, or nil
func (s *MockEzvizServer) LastAPICall(path string) *APICall {
	calls := FilterAPICalls(s.GetAPICalls(), path)
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// FilterAPICalls filters calls by path
func FilterAPICalls(calls []APICall, path string) []APICall {
	var filtered []APICall
	for _, call := range calls {
		if call.Path == path {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// FindAPICallWithBody finds the most recent call to path whose body has
// key set to value
func FindAPICallWithBody(calls []APICall, path, key string, value any) *APICall {
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		if call.Path != path {
			continue
		}
		if v, ok := call.Body[key]; ok && v == value {
			return &call
		}
	}
	return nil
}
