package ezviz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// EUURL is the default regional API host
	EUURL = "apiieu.ezvizlife.com"
	// RussiaURL is the API host for accounts registered in Russia
	RussiaURL = "apirus.ezvizru.com"

	// DefaultTimeout bounds every HTTP call
	DefaultTimeout = 30 * time.Second

	// SwitchFilter selects devices exposing switchable capabilities
	SwitchFilter = "SWITCH"

	featureCode  = "92c579faa0902cbfcfcc4fc004ef67e7"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36"
	pageListSize = 50

	loginPath        = "/v3/users/login/v5"
	pageListPath     = "/v3/userdevices/v1/devices/pagelist"
	switchStatusPath = "/v3/userdevices/v1/devices/switchStatus"
)

// EzvizClient defines the interface for the EZVIZ cloud client
type EzvizClient interface {
	Login(ctx context.Context) (AuthData, error)
	PageList(ctx context.Context, filter string) (*PageList, error)
	SwitchStatus(ctx context.Context, serial string, switchType SwitchType, enable int) bool
	Session() Session
	Close()
}

// Options configures a Client
type Options struct {
	Email    string
	Password string
	// APIURL is a bare host (reached over https) or a full base URL
	APIURL  string
	Timeout time.Duration
	// Session seeds the client with tokens from an earlier login
	Session    Session
	HTTPClient *http.Client
}

// Client implements EzvizClient over HTTPS/JSON
type Client struct {
	email      string
	password   string
	apiURL     string
	baseURL    string
	timeout    time.Duration
	logger     *zap.Logger
	httpClient *http.Client
	session    Session
	sessionMu  sync.RWMutex
}

// NewClient creates a new EZVIZ cloud client
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.APIURL == "" {
		opts.APIURL = EUURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		email:      opts.Email,
		password:   opts.Password,
		apiURL:     opts.APIURL,
		baseURL:    baseURL(opts.APIURL),
		timeout:    opts.Timeout,
		logger:     logger,
		httpClient: httpClient,
		session:    opts.Session,
	}
}

// baseURL turns a bare host into an https URL and leaves full URLs untouched
func baseURL(apiURL string) string {
	if strings.Contains(apiURL, "://") {
		return strings.TrimSuffix(apiURL, "/")
	}
	return "https://" + strings.TrimSuffix(apiURL, "/")
}

// APIURL returns the configured regional endpoint
func (c *Client) APIURL() string {
	return c.apiURL
}

// Timeout returns the per-call timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Session returns a copy of the current session tokens
func (c *Client) Session() Session {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session
}

// Login authenticates with email and password and stores the session tokens
func (c *Client) Login(ctx context.Context) (AuthData, error) {
	req := LoginRequest{
		Account:     c.email,
		Password:    c.password,
		FeatureCode: featureCode,
	}

	env, err := c.call(ctx, http.MethodPost, loginPath, req)
	if err != nil {
		c.logger.Error("Error during login", zap.Error(err))
		return AuthData{}, err
	}

	if !env.ok() {
		authErr := &AuthError{Message: env.message()}
		if env.Meta != nil {
			authErr.Code = env.Meta.Code
		}
		c.logger.Error("Login failed", zap.String("message", authErr.Message))
		return AuthData{}, authErr
	}

	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return AuthData{}, fmt.Errorf("failed to decode login response: %w", err)
	}
	if data.SessionID == "" || data.RfSessionID == "" {
		return AuthData{}, &AuthError{Code: env.Meta.Code, Message: "missing session tokens"}
	}

	c.sessionMu.Lock()
	c.session = Session{SessionID: data.SessionID, RfSessionID: data.RfSessionID}
	c.sessionMu.Unlock()

	c.logger.Info("Logged in to EZVIZ cloud", zap.String("api_url", c.apiURL))

	return AuthData{
		SessionID:   data.SessionID,
		RfSessionID: data.RfSessionID,
		APIURL:      c.apiURL,
	}, nil
}

// PageList fetches the device list. With the SWITCH filter the switch status
// array is regrouped by device serial.
func (c *Client) PageList(ctx context.Context, filter string) (*PageList, error) {
	if !c.Session().Valid() {
		c.logger.Error("Authentication required. Call Login() first.")
		return nil, ErrAuthRequired
	}

	req := PageListRequest{
		Filter:    filter,
		PageSize:  pageListSize,
		PageStart: 0,
	}

	env, err := c.call(ctx, http.MethodPost, pageListPath, req)
	if err != nil {
		c.logger.Error("Error getting pagelist", zap.Error(err))
		return nil, err
	}
	if !env.ok() {
		apiErr := c.apiError(pageListPath, env)
		c.logger.Error("Error getting pagelist", zap.String("message", apiErr.Message))
		return nil, apiErr
	}

	var data pageListData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode pagelist: %w", err)
		}
	}

	result := &PageList{DeviceInfos: data.DeviceInfos}
	if result.DeviceInfos == nil {
		result.DeviceInfos = []Device{}
	}

	if filter == SwitchFilter {
		result.Switch = make(map[string][]SwitchStatus)
		for _, info := range data.SwitchStatusInfos {
			if info.DeviceSerial == "" {
				continue
			}
			if _, ok := result.Switch[info.DeviceSerial]; !ok {
				result.Switch[info.DeviceSerial] = []SwitchStatus{}
			}
			result.Switch[info.DeviceSerial] = append(result.Switch[info.DeviceSerial], info.Switchs...)
		}
	}

	return result, nil
}

// SwitchStatus sets one capability of a device on (1) or off (0). Failures
// are logged and reported as false.
func (c *Client) SwitchStatus(ctx context.Context, serial string, switchType SwitchType, enable int) bool {
	if !c.Session().Valid() {
		c.logger.Error("Authentication required. Call Login() first.")
		return false
	}

	req := SwitchStatusRequest{
		DeviceSerial: serial,
		Enable:       enable,
		Type:         switchType,
	}

	env, err := c.call(ctx, http.MethodPost, switchStatusPath, req)
	if err != nil {
		c.logger.Error("Error setting switch status",
			zap.String("serial", serial),
			zap.Error(err))
		return false
	}
	if !env.ok() {
		c.logger.Error("Error setting switch status",
			zap.String("serial", serial),
			zap.String("message", env.message()))
		return false
	}

	return true
}

// Close releases idle connections held by the underlying HTTP client
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) apiError(endpoint string, env *envelope) *APIError {
	apiErr := &APIError{Endpoint: endpoint, Message: env.message()}
	if env.Meta != nil {
		apiErr.Code = env.Meta.Code
	}
	return apiErr
}

// call sends a JSON request and decodes the meta/data envelope
func (c *Client) call(ctx context.Context, method, path string, payload any) (*envelope, error) {
	_, body, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return &env, nil
}

// send performs the HTTP round trip and returns the raw body. Non-2xx
// responses become an *HTTPError.
func (c *Client) send(ctx context.Context, method, path string, payload any) (http.Header, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	session := c.Session()
	if session.SessionID != "" {
		req.Header.Set("sessionId", session.SessionID)
	}
	if session.RfSessionID != "" {
		req.Header.Set("rfSessionId", session.RfSessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	return resp.Header, body, nil
}
