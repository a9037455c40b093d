// Package httpx provides the shared HTTP plumbing for the REST adapters:
// a connection-pooled client tuned for exchange APIs and a small JSON
// request helper.
package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	connectTimeout      = 5 * time.Second
	tlsHandshakeTimeout = 5 * time.Second
	responseTimeout     = 10 * time.Second
	idleConnTimeout     = 90 * time.Second
	keepAliveInterval   = 30 * time.Second

	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	maxConnsPerHost     = 20

	// responses bigger than this are a protocol error, not data
	maxBodySize = 4 << 20
)

// NewClient returns an HTTP client with connection pooling and timeouts
// suited to polling exchange REST APIs every few hundred milliseconds.
// Compression is disabled to keep latency down.
func NewClient(totalTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: keepAliveInterval,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: responseTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   totalTimeout,
	}
}

// DoJSON sends a request with an optional JSON body and decodes the JSON
// response into out (when out is non-nil). It returns the HTTP status code
// alongside any transport or decoding error; non-2xx statuses are returned
// to the caller for adapter-specific mapping, with the raw body decoded into
// out when possible.
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("httpx.DoJSON: encoding request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("httpx.DoJSON: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("httpx.DoJSON: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("httpx.DoJSON: reading response: %w", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("httpx.DoJSON: decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
