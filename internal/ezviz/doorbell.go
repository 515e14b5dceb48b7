package ezviz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DoorbellAlarmType is the alarm type code of doorbell presses
	DoorbellAlarmType = "3"
	// DoorbellDefaultPageSize is used when an EventQuery leaves PageSize unset
	DoorbellDefaultPageSize = 20
	// DoorbellMaxHistoryDays bounds how far back an event query may reach
	DoorbellMaxHistoryDays = 30

	summaryPageSize = 100

	alarmHistoryPath = "/v3/alarm/device/history"
	alarmPicPath     = "/v3/alarm/device/pic"
	alarmReadPath    = "/v3/alarm/device/read"
)

// EventQuery selects a window of doorbell events. Zero times default to the
// last 24 hours.
type EventQuery struct {
	Start     time.Time
	End       time.Time
	PageSize  int
	PageStart int
}

type eventHistoryRequest struct {
	DeviceSerial string `json:"deviceSerial"`
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
	PageSize     int    `json:"pageSize"`
	PageStart    int    `json:"pageStart"`
	AlarmType    string `json:"alarmType"`
}

type alarmRequest struct {
	DeviceSerial string `json:"deviceSerial"`
	AlarmID      string `json:"alarmId"`
}

// Alarm is a single doorbell event. Fields not modelled here stay in Raw.
type Alarm struct {
	AlarmID   string          `json:"alarmId"`
	AlarmName string          `json:"alarmName,omitempty"`
	AlarmType Code            `json:"alarmType,omitempty"`
	AlarmTime int64           `json:"alarmStartTime,omitempty"`
	PicURL    string          `json:"picUrl,omitempty"`
	IsChecked Flag            `json:"isCheck,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the original payload next to the decoded fields
func (a *Alarm) UnmarshalJSON(b []byte) error {
	type alarm Alarm
	var decoded alarm
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	*a = Alarm(decoded)
	a.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON re-emits the original payload when one was decoded
func (a Alarm) MarshalJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}
	type alarm Alarm
	return json.Marshal(alarm(a))
}

// EventPage is the data block of the alarm history endpoint
type EventPage struct {
	Alarms []Alarm          `json:"alarms"`
	Page   *json.RawMessage `json:"page,omitempty"`
}

// DaySummary aggregates the doorbell events of one calendar day
type DaySummary struct {
	Date         string  `json:"date"`
	TotalEvents  int     `json:"total_events"`
	DeviceSerial string  `json:"device_serial"`
	Events       []Alarm `json:"events"`
}

// DoorbellClient adds doorbell endpoints on top of an authenticated Client
type DoorbellClient struct {
	client *Client
	logger *zap.Logger
	now    func() time.Time
}

// NewDoorbellClient wraps an authenticated client
func NewDoorbellClient(client *Client) *DoorbellClient {
	return &DoorbellClient{
		client: client,
		logger: client.logger.Named("doorbell"),
		now:    time.Now,
	}
}

// Events returns doorbell events for a device within the query window
func (d *DoorbellClient) Events(ctx context.Context, serial string, q EventQuery) (*EventPage, error) {
	if !d.client.Session().Valid() {
		d.logger.Error("Authentication required. Call Login() first.")
		return nil, ErrAuthRequired
	}

	q = d.normalize(q)
	req := eventHistoryRequest{
		DeviceSerial: serial,
		StartTime:    q.Start.UnixMilli(),
		EndTime:      q.End.UnixMilli(),
		PageSize:     q.PageSize,
		PageStart:    q.PageStart,
		AlarmType:    DoorbellAlarmType,
	}

	env, err := d.client.call(ctx, http.MethodPost, alarmHistoryPath, req)
	if err != nil {
		d.logger.Error("Error getting doorbell events", zap.String("serial", serial), zap.Error(err))
		return nil, err
	}
	if !env.ok() {
		apiErr := d.client.apiError(alarmHistoryPath, env)
		d.logger.Error("Error getting doorbell events", zap.String("message", apiErr.Message))
		return nil, apiErr
	}

	page := &EventPage{Alarms: []Alarm{}}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, page); err != nil {
			return nil, fmt.Errorf("failed to decode doorbell events: %w", err)
		}
	}
	if page.Alarms == nil {
		page.Alarms = []Alarm{}
	}
	return page, nil
}

// normalize fills defaults and clamps the window to DoorbellMaxHistoryDays
func (d *DoorbellClient) normalize(q EventQuery) EventQuery {
	if q.End.IsZero() {
		q.End = d.now()
	}
	if q.Start.IsZero() {
		q.Start = q.End.Add(-24 * time.Hour)
	}
	if oldest := q.End.AddDate(0, 0, -DoorbellMaxHistoryDays); q.Start.Before(oldest) {
		q.Start = oldest
	}
	if q.PageSize <= 0 {
		q.PageSize = DoorbellDefaultPageSize
	}
	if q.PageStart < 0 {
		q.PageStart = 0
	}
	return q
}

// VisitorImage downloads the snapshot of a doorbell event. A JSON answer
// means there is no image and yields nil without an error.
func (d *DoorbellClient) VisitorImage(ctx context.Context, serial, alarmID string) ([]byte, error) {
	if !d.client.Session().Valid() {
		d.logger.Error("Authentication required. Call Login() first.")
		return nil, ErrAuthRequired
	}

	header, body, err := d.client.send(ctx, http.MethodPost, alarmPicPath, alarmRequest{
		DeviceSerial: serial,
		AlarmID:      alarmID,
	})
	if err != nil {
		d.logger.Error("Error getting visitor image", zap.String("serial", serial), zap.Error(err))
		return nil, err
	}

	if !strings.Contains(header.Get("Content-Type"), "application/json") {
		return body, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode visitor image response: %w", err)
	}
	if !env.ok() {
		d.logger.Error("Error getting visitor image", zap.String("message", env.message()))
	}
	return nil, nil
}

// Summary collects all doorbell events of the given day. A zero day means
// today.
func (d *DoorbellClient) Summary(ctx context.Context, serial string, day time.Time) (*DaySummary, error) {
	if !d.client.Session().Valid() {
		d.logger.Error("Authentication required. Call Login() first.")
		return nil, ErrAuthRequired
	}

	if day.IsZero() {
		day = d.now()
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999999000, day.Location())

	page, err := d.Events(ctx, serial, EventQuery{
		Start:    start,
		End:      end,
		PageSize: summaryPageSize,
	})
	if err != nil {
		d.logger.Error("Error getting doorbell summary", zap.String("serial", serial), zap.Error(err))
		return nil, err
	}

	return &DaySummary{
		Date:         day.Format("2006-01-02"),
		TotalEvents:  len(page.Alarms),
		DeviceSerial: serial,
		Events:       page.Alarms,
	}, nil
}

// MarkViewed flags a doorbell event as read
func (d *DoorbellClient) MarkViewed(ctx context.Context, serial, alarmID string) bool {
	if !d.client.Session().Valid() {
		d.logger.Error("Authentication required. Call Login() first.")
		return false
	}

	env, err := d.client.call(ctx, http.MethodPost, alarmReadPath, alarmRequest{
		DeviceSerial: serial,
		AlarmID:      alarmID,
	})
	if err != nil {
		d.logger.Error("Error marking event as viewed", zap.String("serial", serial), zap.Error(err))
		return false
	}
	if !env.ok() {
		d.logger.Error("Error marking event as viewed", zap.String("message", env.message()))
		return false
	}
	return true
}

// Config returns the doorbell configuration block as sent by the cloud
func (d *DoorbellClient) Config(ctx context.Context, serial string) (map[string]any, error) {
	if !d.client.Session().Valid() {
		d.logger.Error("Authentication required. Call Login() first.")
		return nil, ErrAuthRequired
	}

	path := fmt.Sprintf("/v3/devices/%s/doorbell/config", serial)
	env, err := d.client.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		d.logger.Error("Error getting doorbell config", zap.String("serial", serial), zap.Error(err))
		return nil, err
	}
	if !env.ok() {
		apiErr := d.client.apiError(path, env)
		d.logger.Error("Error getting doorbell config", zap.String("message", apiErr.Message))
		return nil, apiErr
	}

	config := map[string]any{}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &config); err != nil {
			return nil, fmt.Errorf("failed to decode doorbell config: %w", err)
		}
	}
	return config, nil
}

// OpenGate triggers the gate relay wired to a doorbell
func (d *DoorbellClient) OpenGate(ctx context.Context, serial string) bool {
	if !d.client.Session().Valid() {
		d.logger.Error("Authentication required. Call Login() first.")
		return false
	}

	path := fmt.Sprintf("/v3/devices/%s/doorbell/openDoor", serial)
	env, err := d.client.call(ctx, http.MethodPost, path, nil)
	if err != nil {
		d.logger.Error("Error opening gate", zap.String("serial", serial), zap.Error(err))
		return false
	}
	if !env.ok() {
		d.logger.Error("Error opening gate", zap.String("message", env.message()))
		return false
	}

	d.logger.Info("Gate opened successfully", zap.String("serial", serial))
	return true
}
