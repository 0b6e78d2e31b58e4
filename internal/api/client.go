// Package api is the HTTP client for the fridge backend.
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
	"strings"
	"time"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/retry"
	"github.com/sweeney/fridge-daemon/internal/telemetry"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// ErrUnauthorized is returned when the backend rejects the device token.
// It is wrapped with retry.Permanent so retries stop at once.
var ErrUnauthorized = errors.New("device token rejected")

// StatusError describes a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

// Error describes the failed request.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client talks to the fridge backend. It is safe for concurrent use.
type Client struct {
	base string
	h    *http.Client
}

// New creates a client for the backend at base. A zero timeout selects
// DefaultTimeout.
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		h:    &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

type sample struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

type readingsRequest struct {
	Token       string   `json:"token"`
	Temperature []sample `json:"temperature"`
	Power       []sample `json:"power"`
}

type product struct {
	Name     string `json:"nomeProdotto"`
	Brand    string `json:"marchio"`
	Size     string `json:"taglia"`
	Quantity int    `json:"quantita"`
}

type productsRequest struct {
	Token    string    `json:"token"`
	Products []product `json:"prodotti"`
}

type errorPayload struct {
	ID        string  `json:"id,omitempty"`
	Timestamp string  `json:"timestamp"`
	Module    string  `json:"module"`
	Type      string  `json:"error_type"`
	Message   string  `json:"message"`
	Traceback *string `json:"traceback"`
}

type errorRequest struct {
	Token string       `json:"token"`
	Error errorPayload `json:"error"`
}

// ValidateToken checks token with GET /isAuthorized. It returns the token
// the device should use from now on: the server's replacement when one is
// issued, otherwise token itself.
func (c *Client) ValidateToken(ctx context.Context, token string) (string, error) {
	u, err := url.Parse(c.base + "/isAuthorized")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("tokenFrigo", token)
	u.RawQuery = q.Encode()

	var resp tokenResponse
	if err := c.do(ctx, http.MethodGet, u.String(), nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return token, nil
	}
	return resp.Token, nil
}

// Setup registers a new device with POST /setupFrigo.php and returns the
// issued token.
func (c *Client) Setup(ctx context.Context) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, c.base+"/setupFrigo.php", nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("setup response did not include a token")
	}
	return resp.Token, nil
}

// UploadReadings sends buffered telemetry with PUT /sensorData.php.
func (c *Client) UploadReadings(ctx context.Context, token string, temperature, power []telemetry.Reading) error {
	body := readingsRequest{
		Token:       token,
		Temperature: samples(temperature),
		Power:       samples(power),
	}
	return c.do(ctx, http.MethodPut, c.base+"/sensorData.php", body, nil)
}

// UploadProducts replaces the remote inventory with POST /setProdotti.php.
func (c *Client) UploadProducts(ctx context.Context, token string, products []capture.Product) error {
	body := productsRequest{Token: token, Products: make([]product, 0, len(products))}
	for _, p := range products {
		body.Products = append(body.Products, product{Name: p.Name, Brand: p.Brand, Size: p.Size, Quantity: p.Quantity})
	}
	return c.do(ctx, http.MethodPost, c.base+"/setProdotti.php", body, nil)
}

// ReportError sends a failure report with POST /reportError.php.
func (c *Client) ReportError(ctx context.Context, token string, r capture.ErrorReport) error {
	p := errorPayload{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
		Module:    r.Module,
		Type:      string(r.Type),
		Message:   r.Message,
	}
	if r.Traceback != "" {
		p.Traceback = &r.Traceback
	}
	return c.do(ctx, http.MethodPost, c.base+"/reportError.php", errorRequest{Token: token, Error: p}, nil)
}

func samples(rs []telemetry.Reading) []sample {
	out := make([]sample, 0, len(rs))
	for _, r := range rs {
		out = append(out, sample{Timestamp: r.Timestamp.UTC().Format(time.RFC3339), Value: r.Value})
	}
	return out
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.h.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redact(uerr.URL)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &StatusError{Method: method, URL: redact(u), Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return retry.Permanent(fmt.Errorf("%w: %w", ErrUnauthorized, serr))
		}
		return serr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// redact strips the token query parameter so URLs can be logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("tokenFrigo") {
		q.Set("tokenFrigo", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
