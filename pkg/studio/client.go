// Package studio is a client for the destination session's three-phase
// upload handshake: register a file, PUT its bytes to the returned storage
// URL, then confirm the upload so the file appears in the session.
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// Defaults for Config.
const (
	DefaultBaseURL        = "https://studioapi.bluebeam.com/publicapi/v1"
	DefaultRequestTimeout = 30 * time.Second
	DefaultSSE            = "AES256"

	// SSEHeader is the server-side-encryption directive required on uploads.
	SSEHeader = "x-amz-server-side-encryption"
)

// maxBodyText bounds the response text kept for diagnostics.
const maxBodyText = 2048

// maxResponse bounds how much of a response body is read.
const maxResponse = 1 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, without trailing slash.
	BaseURL string

	// RequestTimeout bounds each individual call.
	RequestTimeout time.Duration

	// SSE is the server-side-encryption value sent on uploads.
	SSE string

	// RateLimit caps calls per second across the client. Zero is unlimited.
	RateLimit float64

	// UserAgent is sent on every request when set.
	UserAgent string

	// HTTPClient overrides the transport. Nil uses a new http.Client.
	HTTPClient *http.Client
}

// Ticket is the result of a successful registration. The upload URL is
// single use and must not be cached beyond the handshake that obtained it.
type Ticket struct {
	RemoteFileID string
	UploadURL    string
}

// Client drives the handshake against one API root. It is safe for
// concurrent use.
type Client struct {
	http      *http.Client
	base      string
	timeout   time.Duration
	sse       string
	userAgent string
	limiter   *rate.Limiter
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("studio: invalid base url %q", cfg.BaseURL)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("studio: rate limit must be >= 0")
	}

	c := &Client{
		http:      cfg.HTTPClient,
		base:      base,
		timeout:   cfg.RequestTimeout,
		sse:       cfg.SSE,
		userAgent: cfg.UserAgent,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultRequestTimeout
	}
	if c.sse == "" {
		c.sse = DefaultSSE
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// BaseURL returns the API root in use.
func (c *Client) BaseURL() string {
	return c.base
}

// FilesURL returns the registration endpoint for a session.
func (c *Client) FilesURL(session string) string {
	return c.base + "/sessions/" + url.PathEscape(session) + "/files"
}

// ConfirmURL returns the confirm endpoint for a registered file.
func (c *Client) ConfirmURL(session, remoteFileID string) string {
	return c.FilesURL(session) + "/" + url.PathEscape(remoteFileID) + "/confirm-upload"
}

type registerRequest struct {
	Name   string `json:"Name"`
	Source string `json:"Source,omitempty"`
}

type registerResponse struct {
	ID        flexibleID `json:"Id"`
	UploadURL string     `json:"UploadUrl"`
}

// flexibleID accepts the file id as either a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// Register creates a file entry in the session and returns its upload ticket.
// sourceURL is optional and omitted from the request when empty.
func (c *Client) Register(ctx context.Context, session, token, name, sourceURL string) (*Ticket, error) {
	body, err := json.Marshal(registerRequest{Name: name, Source: sourceURL})
	if err != nil {
		return nil, &PhaseError{Phase: PhaseRegister, Err: err}
	}

	status, text, err := c.do(ctx, http.MethodPost, c.FilesURL(session), token, "application/json", body)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseRegister, StatusCode: status, Body: snippet(text), Err: err}
	}
	if !success(status) {
		return nil, &PhaseError{Phase: PhaseRegister, StatusCode: status, Body: snippet(text)}
	}

	var resp registerResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, &PhaseError{Phase: PhaseRegister, StatusCode: status, Body: snippet(text), Err: fmt.Errorf("malformed response: %w", err)}
	}
	if resp.ID == "" || resp.UploadURL == "" {
		return nil, &PhaseError{Phase: PhaseRegister, StatusCode: status, Body: snippet(text), Err: errors.New("response missing Id or UploadUrl")}
	}
	return &Ticket{RemoteFileID: string(resp.ID), UploadURL: resp.UploadURL}, nil
}

// Upload PUTs data to the ticket's storage URL. No bearer token is sent;
// the URL carries its own authorization.
func (c *Client) Upload(ctx context.Context, ticket *Ticket, data []byte, contentType string) error {
	if ticket == nil || ticket.UploadURL == "" {
		return &PhaseError{Phase: PhaseUpload, Err: errors.New("no upload ticket")}
	}
	status, text, err := c.do(ctx, http.MethodPut, ticket.UploadURL, "", contentType, data)
	if err != nil {
		return &PhaseError{Phase: PhaseUpload, StatusCode: status, Body: snippet(text), Err: err}
	}
	if !success(status) {
		return &PhaseError{Phase: PhaseUpload, StatusCode: status, Body: snippet(text)}
	}
	return nil
}

// Confirm tells the session the upload for remoteFileID is complete.
func (c *Client) Confirm(ctx context.Context, session, token, remoteFileID string) error {
	status, text, err := c.do(ctx, http.MethodPost, c.ConfirmURL(session, remoteFileID), token, "", nil)
	if err != nil {
		return &PhaseError{Phase: PhaseConfirm, StatusCode: status, Body: snippet(text), Err: err}
	}
	if !success(status) {
		return &PhaseError{Phase: PhaseConfirm, StatusCode: status, Body: snippet(text)}
	}
	return nil
}

// do performs one bounded call and returns the status and body text.
func (c *Client) do(ctx context.Context, method, target, token, contentType string, body []byte) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, "", err
		}
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return 0, "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPut {
		req.Header.Set(SSEHeader, c.sse)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	text, err := readText(resp.Body)
	if err != nil {
		return resp.StatusCode, text, err
	}
	return resp.StatusCode, text, nil
}

// readText reads up to maxResponse bytes of the body and drains the rest so
// the connection can be reused.
func readText(r io.Reader) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxResponse))
	if err != nil {
		return string(buf), err
	}
	_, _ = io.Copy(io.Discard, r)
	return strings.TrimSpace(string(buf)), nil
}

// snippet truncates text to maxBodyText bytes on a rune boundary.
func snippet(text string) string {
	if len(text) <= maxBodyText {
		return text
	}
	cut := maxBodyText
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "...(truncated)"
}

func success(status int) bool {
	return status >= 200 && status < 300
}
