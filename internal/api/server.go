package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"ezvizswitch/internal/ezviz"
	"ezvizswitch/internal/host"
	"ezvizswitch/internal/switches"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SwitchService is the entity side of the host the API serves
type SwitchService interface {
	Snapshots() []switches.Snapshot
	Snapshot(id string) (switches.Snapshot, error)
	Toggle(ctx context.Context, id string, on bool) (switches.Snapshot, error)
	Subscribe(listener host.StateListener) host.Subscription
}

// DoorbellService is the doorbell side of the EZVIZ client
type DoorbellService interface {
	Events(ctx context.Context, serial string, q ezviz.EventQuery) (*ezviz.EventPage, error)
	Summary(ctx context.Context, serial string, day time.Time) (*ezviz.DaySummary, error)
	OpenGate(ctx context.Context, serial string) bool
	VisitorImage(ctx context.Context, serial, alarmID string) ([]byte, error)
	MarkViewed(ctx context.Context, serial, alarmID string) bool
	Config(ctx context.Context, serial string) (map[string]any, error)
}

// HealthSource reports the coordinator status
type HealthSource interface {
	LastUpdateSuccess() bool
	LastUpdate() time.Time
}

// writeMargin is added to the cloud call timeout to get the HTTP write
// timeout, leaving room to encode the answer after a call expired
const writeMargin = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server provides the HTTP API for the switch bridge
type Server struct {
	switches SwitchService
	doorbell DoorbellService
	health   HealthSource
	logger   *zap.Logger
	server   *http.Server
	mux      *http.ServeMux

	callTimeout time.Duration

	streamsMu sync.Mutex
	streams   map[*websocket.Conn]struct{}
}

// NewServer creates a new API server. doorbell and health may be nil.
// callTimeout bounds every cloud call made for a request; zero means
// ezviz.DefaultTimeout.
func NewServer(sw SwitchService, doorbell DoorbellService, health HealthSource, logger *zap.Logger, port int, callTimeout time.Duration) *Server {
	if callTimeout <= 0 {
		callTimeout = ezviz.DefaultTimeout
	}
	s := &Server{
		switches:    sw,
		doorbell:    doorbell,
		health:      health,
		logger:      logger,
		streams:     make(map[*websocket.Conn]struct{}),
		callTimeout: callTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/switches", s.handleListSwitches)
	mux.HandleFunc("GET /api/switches/{id}", s.handleGetSwitch)
	mux.HandleFunc("POST /api/switches/{id}/on", s.handleToggle(true))
	mux.HandleFunc("POST /api/switches/{id}/off", s.handleToggle(false))
	mux.HandleFunc("GET /api/doorbells/{serial}/events", s.handleDoorbellEvents)
	mux.HandleFunc("GET /api/doorbells/{serial}/summary", s.handleDoorbellSummary)
	mux.HandleFunc("POST /api/doorbells/{serial}/open", s.handleOpenGate)
	mux.HandleFunc("GET /api/doorbells/{serial}/config", s.handleDoorbellConfig)
	mux.HandleFunc("GET /api/doorbells/{serial}/events/{alarm}/image", s.handleVisitorImage)
	mux.HandleFunc("POST /api/doorbells/{serial}/events/{alarm}/read", s.handleMarkViewed)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	s.mux = mux

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: callTimeout + writeMargin,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.mux
}

// cloudContext bounds the cloud calls of one request so the answer is written
// before the server's write deadline
func (s *Server) cloudContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.callTimeout)
}

// ErrorResponse is the body of every non-2xx JSON answer
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// handleListSwitches returns every entity
func (s *Server) handleListSwitches(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.switches.Snapshots())

	s.logger.Debug("Switch list served",
		zap.String("remote_addr", r.RemoteAddr))
}

// handleGetSwitch returns one entity
func (s *Server) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	snap, err := s.switches.Snapshot(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleToggle switches an entity on or off. A rejected toggle answers 502
// with the unchanged snapshot.
func (s *Server) handleToggle(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.cloudContext(r)
		defer cancel()

		id := r.PathValue("id")
		snap, err := s.switches.Toggle(ctx, id, on)
		switch {
		case errors.Is(err, host.ErrNotFound):
			s.writeError(w, http.StatusNotFound, err)
		case err != nil:
			s.logger.Warn("Toggle failed", zap.String("unique_id", id), zap.Bool("on", on))
			s.writeJSON(w, http.StatusBadGateway, snap)
		default:
			s.writeJSON(w, http.StatusOK, snap)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, host.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ezviz.ErrAuthRequired):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status            string `json:"status"`
	LastUpdateSuccess bool   `json:"last_update_success"`
	LastUpdate        string `json:"last_update,omitempty"`
	Entities          int    `json:"entities"`
}

// handleHealth reports liveness and the last poll result
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Entities: len(s.switches.Snapshots()),
	}
	if s.health != nil {
		resp.LastUpdateSuccess = s.health.LastUpdateSuccess()
		if last := s.health.LastUpdate(); !last.IsZero() {
			resp.LastUpdate = last.UTC().Format(time.RFC3339)
		}
		if !resp.LastUpdateSuccess {
			resp.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check with the last poll result"},
	{Path: "/api/switches", Method: "GET", Description: "List all switch entities"},
	{Path: "/api/switches/{id}", Method: "GET", Description: "Get one switch entity by unique id"},
	{Path: "/api/switches/{id}/on", Method: "POST", Description: "Turn a switch on"},
	{Path: "/api/switches/{id}/off", Method: "POST", Description: "Turn a switch off"},
	{Path: "/api/doorbells/{serial}/events", Method: "GET", Description: "Doorbell events (?start=&end= RFC3339, ?page_size=&page=)"},
	{Path: "/api/doorbells/{serial}/summary", Method: "GET", Description: "Doorbell events of one day (?date=YYYY-MM-DD)"},
	{Path: "/api/doorbells/{serial}/open", Method: "POST", Description: "Open the gate wired to a doorbell"},
	{Path: "/api/doorbells/{serial}/config", Method: "GET", Description: "Doorbell configuration as sent by the cloud"},
	{Path: "/api/doorbells/{serial}/events/{alarm}/image", Method: "GET", Description: "Visitor snapshot of one event"},
	{Path: "/api/doorbells/{serial}/events/{alarm}/read", Method: "POST", Description: "Mark one event as viewed"},
	{Path: "/api/stream", Method: "GET", Description: "WebSocket stream of switch state changes"},
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accept := r.Header.Get("Accept")
	preferHTML := strings.HasPrefix(accept, "text/html") || strings.HasPrefix(accept, "*/*")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	// 404 for automation compatibility, with a helpful body
	w.WriteHeader(http.StatusNotFound)

	if preferHTML {
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>EZVIZ Switch API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>EZVIZ Switch API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		fmt.Fprintf(w, "EZVIZ Switch API\n")
		fmt.Fprintf(w, "================\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-44s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  curl http://localhost:8081/api/switches | jq\n")
		fmt.Fprintf(w, "  curl -X POST http://localhost:8081/api/switches/SERIAL_14/on\n\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes open streams
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	s.closeStreams()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
