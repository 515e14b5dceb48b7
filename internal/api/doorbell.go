package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ezvizswitch/internal/ezviz"

	"go.uber.org/zap"
)

var errNoDoorbell = errors.New("doorbell support not configured")

// parseTime accepts RFC3339 or epoch milliseconds
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func eventQuery(start, end time.Time, pageSize, page int) ezviz.EventQuery {
	return ezviz.EventQuery{
		Start:     start,
		End:       end,
		PageSize:  pageSize,
		PageStart: page,
	}
}

// handleDoorbellEvents returns the alarm history of a doorbell
func (s *Server) handleDoorbellEvents(w http.ResponseWriter, r *http.Request) {
	if s.doorbell == nil {
		s.writeError(w, http.StatusNotImplemented, errNoDoorbell)
		return
	}

	query := r.URL.Query()
	start, err := parseTime(query.Get("start"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid start: %w", err))
		return
	}
	end, err := parseTime(query.Get("end"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid end: %w", err))
		return
	}
	pageSize, err := parseInt(query.Get("page_size"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page_size: %w", err))
		return
	}
	page, err := parseInt(query.Get("page"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page: %w", err))
		return
	}

	ctx, cancel := s.cloudContext(r)
	defer cancel()

	events, err := s.doorbell.Events(ctx, r.PathValue("serial"), eventQuery(start, end, pageSize, page))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleDoorbellSummary returns the events of one day, today by default
func (s *Server) handleDoorbellSummary(w http.ResponseWriter, r *http.Request) {
	if s.doorbell == nil {
		s.writeError(w, http.StatusNotImplemented, errNoDoorbell)
		return
	}

	var day time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid date: %w", err))
			return
		}
		day = parsed
	}

	ctx, cancel := s.cloudContext(r)
	defer cancel()

	summary, err := s.doorbell.Summary(ctx, r.PathValue("serial"), day)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// ActionResponse is the body of the doorbell write endpoints
type ActionResponse struct {
	Success bool   `json:"success"`
	Serial  string `json:"device_serial"`
	AlarmID string `json:"alarm_id,omitempty"`
}

// handleOpenGate triggers the gate relay of a doorbell
func (s *Server) handleOpenGate(w http.ResponseWriter, r *http.Request) {
	if s.doorbell == nil {
		s.writeError(w, http.StatusNotImplemented, errNoDoorbell)
		return
	}

	ctx, cancel := s.cloudContext(r)
	defer cancel()

	serial := r.PathValue("serial")
	ok := s.doorbell.OpenGate(ctx, serial)
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
		s.logger.Warn("Gate open failed", zap.String("serial", serial))
	}
	s.writeJSON(w, status, ActionResponse{Success: ok, Serial: serial})
}

// handleDoorbellConfig returns the configuration block of a doorbell
func (s *Server) handleDoorbellConfig(w http.ResponseWriter, r *http.Request) {
	if s.doorbell == nil {
		s.writeError(w, http.StatusNotImplemented, errNoDoorbell)
		return
	}

	ctx, cancel := s.cloudContext(r)
	defer cancel()

	config, err := s.doorbell.Config(ctx, r.PathValue("serial"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, config)
}

// handleVisitorImage streams the snapshot taken for an event
func (s *Server) handleVisitorImage(w http.ResponseWriter, r *http.Request) {
	if s.doorbell == nil {
		s.writeError(w, http.StatusNotImplemented, errNoDoorbell)
		return
	}

	ctx, cancel := s.cloudContext(r)
	defer cancel()

	alarmID := r.PathValue("alarm")
	image, err := s.doorbell.VisitorImage(ctx, r.PathValue("serial"), alarmID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if len(image) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no image for event %s", alarmID))
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(image))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(image); err != nil {
		s.logger.Debug("Failed to write image", zap.Error(err))
	}
}

// handleMarkViewed flags an event as read
func (s *Server) handleMarkViewed(w http.ResponseWriter, r *http.Request) {
	if s.doorbell == nil {
		s.writeError(w, http.StatusNotImplemented, errNoDoorbell)
		return
	}

	ctx, cancel := s.cloudContext(r)
	defer cancel()

	serial, alarmID := r.PathValue("serial"), r.PathValue("alarm")
	ok := s.doorbell.MarkViewed(ctx, serial, alarmID)
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
		s.logger.Warn("Mark viewed failed", zap.String("serial", serial), zap.String("alarm_id", alarmID))
	}
	s.writeJSON(w, status, ActionResponse{Success: ok, Serial: serial, AlarmID: alarmID})
}
