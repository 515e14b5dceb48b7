package ezviz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Meta is the status block the EZVIZ API wraps around every JSON response
type Meta struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the generic response shape: {"meta": {...}, "data": {...}}
type envelope struct {
	Meta *Meta           `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// ok reports whether the application status code is 200
func (e *envelope) ok() bool {
	return e.Meta != nil && e.Meta.Code == 200
}

// message returns the server supplied error message or "Unknown error"
func (e *envelope) message() string {
	if e.Meta == nil || e.Meta.Message == "" {
		return "Unknown error"
	}
	return e.Meta.Message
}

// Session holds the two opaque tokens granted at login
type Session struct {
	SessionID   string `json:"session_id"`
	RfSessionID string `json:"rf_session_id"`
}

// Valid is true only when both tokens are present
func (s Session) Valid() bool {
	return s.SessionID != "" && s.RfSessionID != ""
}

// AuthData is returned by a successful login
type AuthData struct {
	SessionID   string `json:"session_id"`
	RfSessionID string `json:"rf_session_id"`
	APIURL      string `json:"api_url"`
}

// LoginRequest is the body posted to the login endpoint
type LoginRequest struct {
	Account     string `json:"account"`
	Password    string `json:"password"`
	FeatureCode string `json:"featureCode"`
}

// loginData is the data block of a login response
type loginData struct {
	SessionID   string `json:"sessionId"`
	RfSessionID string `json:"rfSessionId"`
}

// PageListRequest is the body posted to the device pagelist endpoint
type PageListRequest struct {
	Filter    string `json:"filter"`
	PageSize  int    `json:"pageSize"`
	PageStart int    `json:"pageStart"`
}

// SwitchStatusRequest is the body posted to toggle a switchable capability
type SwitchStatusRequest struct {
	DeviceSerial string     `json:"deviceSerial"`
	Enable       int        `json:"enable"`
	Type         SwitchType `json:"type"`
}

// Device is a single entry of the pagelist deviceInfos array
type Device struct {
	DeviceSerial string `json:"deviceSerial"`
	Name         string `json:"name"`
	DeviceType   string `json:"deviceType"`
	Version      string `json:"version,omitempty"`
	Status       int    `json:"status"`
}

// SwitchStatus is one switchable capability reported for a device
type SwitchStatus struct {
	Type   Code `json:"type"`
	Enable Flag `json:"enable"`
}

// switchStatusInfo groups the switch entries of one device
type switchStatusInfo struct {
	DeviceSerial string         `json:"deviceSerial"`
	Switchs      []SwitchStatus `json:"switchs"`
}

// pageListData is the data block of a pagelist response
type pageListData struct {
	DeviceInfos       []Device           `json:"deviceInfos"`
	SwitchStatusInfos []switchStatusInfo `json:"switchStatusInfos"`
}

// PageList is the reshaped pagelist response. Switch is only populated when
// the request was made with the SWITCH filter.
type PageList struct {
	DeviceInfos []Device
	Switch      map[string][]SwitchStatus
}

// Flag is an enabled flag the API sends either as a boolean or as 0/1
type Flag int

// UnmarshalJSON accepts true/false, numbers and numeric strings
func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*f = 1
		return nil
	case "false", "null":
		*f = 0
		return nil
	}

	var c Code
	if err := c.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("invalid enable flag %s: %w", b, err)
	}
	*f = Flag(c)
	return nil
}

// On reports whether the flag equals 1
func (f Flag) On() bool {
	return f == 1
}

// Code is an integer the API sometimes sends as a quoted string
type Code int

// UnmarshalJSON accepts both 14 and "14"
func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*c = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*c = Code(n)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return err
		}
		i = int64(f)
	}
	*c = Code(i)
	return nil
}
