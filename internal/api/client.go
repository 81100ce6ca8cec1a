// Package api is the HTTP client for the remote code-intelligence
// service: blob upload, token refresh, and session validation.
//
// The client classifies failures but performs no retries itself; the
// upload coordinator owns the retry policy. Upload payloads are
// zstd-compressed on the wire. The remote service acknowledges
// duplicate uploads of a known identity as a cheap no-op; crash
// recovery relies on that contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"codesync/internal/identity"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "CODESYNC_HTTP_TIMEOUT"

	userAgent = "codesync/"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Client is an HTTP client for the codesync API.
type Client struct {
	baseURL string
	http    *http.Client
	encoder *zstd.Encoder
}

// NewClient creates a new API client for the given base URL. The
// per-request timeout comes from CODESYNC_HTTP_TIMEOUT (duration or
// seconds), defaulting to 30s; exceeding it is a transient failure.
func NewClient(baseURL string) *Client {
	// EncodeAll on a writer-less encoder is safe for concurrent use.
	encoder, _ := zstd.NewWriter(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
		encoder: encoder,
	}
}

// UploadBlob uploads one content blob keyed by its identity. A 409
// response means the remote side already holds this identity and
// counts as acknowledgment.
func (c *Client) UploadBlob(ctx context.Context, token string, id identity.Identity, payload []byte) error {
	compressed := c.encoder.EncodeAll(payload, nil)

	endpoint := c.baseURL + "/v1/blobs/" + url.PathEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(compressed))
	if err != nil {
		return &TransportError{Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "zstd")
	req.Header.Set("X-Content-Length", strconv.Itoa(len(payload)))
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifySendError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 || resp.StatusCode == http.StatusConflict {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return classifyStatus(resp)
}

// TokenResponse is the result of a refresh exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Refresh exchanges a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	var out TokenResponse
	body := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/token", "", body, &out); err != nil {
		return out, err
	}
	if out.AccessToken == "" {
		return out, &AuthError{Message: "token response contains no access token"}
	}
	return out, nil
}

// Validate checks that a credential is accepted by the remote service.
func (c *Client) Validate(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodGet, "/v1/auth/session", token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Message: "encoding request body", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Message: "building request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifySendError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Message: "decoding response", Transient: true, Err: err}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", userAgent+Version)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// errorBody is the JSON error shape returned by the API.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func classifyStatus(resp *http.Response) error {
	var parsed errorBody
	message := ""
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
		if parsed.Code != "" {
			message = fmt.Sprintf("%s: %s", parsed.Code, parsed.Message)
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode, Message: message}
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return &TransportError{Status: resp.StatusCode, Message: message, Transient: true}
	}
	if resp.StatusCode >= 500 {
		return &TransportError{Status: resp.StatusCode, Message: message, Transient: true}
	}
	return &TransportError{Status: resp.StatusCode, Message: message}
}

func classifySendError(err error) error {
	transient := errors.Is(err, context.DeadlineExceeded)
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Timeouts and connection-level failures are retryable;
		// a cancelled request is not.
		transient = urlErr.Timeout() || urlErr.Temporary() ||
			!errors.Is(urlErr.Err, context.Canceled)
	}
	if errors.Is(err, context.Canceled) {
		transient = false
	}
	return &TransportError{Message: "request failed", Transient: transient, Err: err}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}
	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultHTTPTimeout
}
