package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	probeReadLimit = 15 * time.Second
	uploadSize     = 1 << 20
	userAgent      = "extbox/1.0"
)

var errNoEndpoint = errors.New("no speed test endpoint configured")

// Prober measures link quality. Rates are in Mbps.
type Prober interface {
	Ping(ctx context.Context, addr string) (time.Duration, error)
	Download(ctx context.Context, urls []string) (float64, error)
	Upload(ctx context.Context, url string) (float64, error)
}

// HTTPProber measures TCP connect latency and HTTP transfer rates.
type HTTPProber struct {
	client *http.Client
	dialer net.Dialer
}

func NewHTTPProber(c *http.Client) *HTTPProber {
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPProber{client: c, dialer: net.Dialer{Timeout: 5 * time.Second}}
}

func (p *HTTPProber) Ping(ctx context.Context, addr string) (time.Duration, error) {
	if addr == "" {
		return 0, errNoEndpoint
	}
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	d := time.Since(start)
	_ = conn.Close()
	return d, nil
}

// Download tries each URL in turn and returns the first usable rate.
func (p *HTTPProber) Download(ctx context.Context, urls []string) (float64, error) {
	if len(urls) == 0 {
		return 0, errNoEndpoint
	}
	var last error
	for _, u := range urls {
		v, err := p.download(ctx, u)
		if err == nil {
			return v, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
	}
	return 0, last
}

func (p *HTTPProber) download(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	buf := make([]byte, 32*1024)
	var total int64
	for time.Since(start) < probeReadLimit {
		n, err := resp.Body.Read(buf)
		total += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return mbps(total, time.Since(start))
}

func (p *HTTPProber) Upload(ctx context.Context, url string) (float64, error) {
	if url == "" {
		return 0, errNoEndpoint
	}
	payload := make([]byte, uploadSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("upload %s: status %d", url, resp.StatusCode)
	}
	return mbps(uploadSize, time.Since(start))
}

func mbps(n int64, d time.Duration) (float64, error) {
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("no data transferred")
	}
	return float64(n) * 8 / d.Seconds() / 1e6, nil
}
