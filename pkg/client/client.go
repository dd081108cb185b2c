// Package client talks to a running extbox daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "http://127.0.0.1:8484/api"

// Client provides HTTP client functionality to communicate with the extbox daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// New creates a new API client with TLS support
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Modules(ctx context.Context) ([]ModuleStatus, error) {
	var ms []ModuleStatus
	err := c.do(ctx, http.MethodGet, "/modules", nil, &ms)
	return ms, err
}

func (c *Client) Snapshot(ctx context.Context, key string) (SnapshotEntry, error) {
	var e SnapshotEntry
	err := c.do(ctx, http.MethodGet, "/snapshot/"+url.PathEscape(key), nil, &e)
	return e, err
}

func (c *Client) Snapshots(ctx context.Context) (map[string]SnapshotEntry, error) {
	var m map[string]SnapshotEntry
	err := c.do(ctx, http.MethodGet, "/snapshot", nil, &m)
	return m, err
}

func (c *Client) Presentation(ctx context.Context) (Presentation, error) {
	var p Presentation
	err := c.do(ctx, http.MethodGet, "/presentation", nil, &p)
	return p, err
}

// SetEnabled flips a module's enable flag; the daemon starts or stops it
// on its next sweep.
func (c *Client) SetEnabled(ctx context.Context, key string, on bool) error {
	action := "disable"
	if on {
		action = "enable"
	}
	return c.do(ctx, http.MethodPost, "/modules/"+url.PathEscape(key)+"/"+action, nil, nil)
}

func (c *Client) SetOrder(ctx context.Context, keys []string) error {
	return c.do(ctx, http.MethodPut, "/order", OrderRequest{Order: keys}, nil)
}

func (c *Client) Prefs(ctx context.Context) (map[string]string, error) {
	var m map[string]string
	err := c.do(ctx, http.MethodGet, "/prefs", nil, &m)
	return m, err
}

func (c *Client) Pref(ctx context.Context, key string) (string, error) {
	var v PrefValue
	err := c.do(ctx, http.MethodGet, "/prefs/"+url.PathEscape(key), nil, &v)
	return v.Value, err
}

func (c *Client) SetPref(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, "/prefs/"+url.PathEscape(key), PrefValue{Key: key, Value: value}, nil)
}

// ImportPrefs sends a flat JSON object of preference values.
func (c *Client) ImportPrefs(ctx context.Context, raw []byte) error {
	return c.do(ctx, http.MethodPost, "/prefs/import", json.RawMessage(raw), nil)
}

func (c *Client) ResetDaily(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/prefs/reset-daily", nil, nil)
}

func (c *Client) Screen(ctx context.Context, on bool) error {
	return c.do(ctx, http.MethodPost, "/events/screen", ScreenEvent{On: on}, nil)
}

func (c *Client) Unlock(ctx context.Context) (bool, error) {
	var r UnlockResult
	err := c.do(ctx, http.MethodPost, "/events/unlock", nil, &r)
	return r.Counted, err
}

func (c *Client) Steps(ctx context.Context, raw float64) (int64, error) {
	var r StepsResult
	err := c.do(ctx, http.MethodPost, "/events/steps", StepsEvent{Raw: raw}, &r)
	return r.Added, err
}

func (c *Client) Fap(ctx context.Context) (int, error) {
	var r FapResult
	err := c.do(ctx, http.MethodPost, "/fap/increment", nil, &r)
	return r.Today, err
}

func (c *Client) RunSpeedTest(ctx context.Context) (SpeedTestResult, error) {
	var r SpeedTestResult
	err := c.do(ctx, http.MethodPost, "/speedtest/run", nil, &r)
	return r, err
}

// History lists recorded events for key, newest first. An empty key
// matches every module; since is a duration ("24h") or RFC 3339 time.
func (c *Client) History(ctx context.Context, key, since string, limit int) ([]Event, error) {
	path := "/history"
	if key != "" {
		path += "/" + url.PathEscape(key)
	}
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var evs []Event
	err := c.do(ctx, http.MethodGet, path, nil, &evs)
	return evs, err
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// do sends body as JSON when non-nil and decodes a 200 response into out
// when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-200 response from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return &APIError{Status: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: errorResp.Error}
}
