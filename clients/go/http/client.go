// Package http provides an HTTP client for the promoz promo code service.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	promoz "github.com/matt-riley/promoz/clients/go"
)

// Config holds configuration for the HTTP client.
type Config struct {
	// BaseURL is the base URL of the promoz server, e.g. "http://localhost:8080".
	BaseURL string
	// HTTPClient is optional; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements promoz.PromoCodeManager and promoz.Checker over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var (
	_ promoz.PromoCodeManager = (*Client)(nil)
	_ promoz.Checker          = (*Client)(nil)
)

// NewHTTPClient returns a new HTTP client for the promoz service.
func NewHTTPClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: hc}
}

// -- wire types --------------------------------------------------------------

type wireCreateReq struct {
	Name      string           `json:"name"`
	Advantage promoz.Advantage `json:"advantage"`
	promoz.Restriction
}

type wireError struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

// -- helpers -----------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("promoz: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("promoz: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("promoz: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("promoz: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var we wireError
	if json.Unmarshal(raw, &we) == nil && we.Error != "" {
		apiErr.Message = we.Error
		apiErr.Field = we.Field
	}
	if retry, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfterSeconds = retry
	}
	return apiErr
}

// APIError is returned when the server responds with an HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
	// Field names the offending request field on validation errors.
	Field string
	// RetryAfterSeconds is set on rate-limited responses.
	RetryAfterSeconds int
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("promoz: HTTP %d: %s: %s", e.StatusCode, e.Field, e.Message)
	}
	return fmt.Sprintf("promoz: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether err is an APIError with status 409.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// -- PromoCodeManager --------------------------------------------------------

// CreatePromoCode creates promo. Multiple top-level restrictions are sent as a
// single and group, which is how the server stores them.
func (c *Client) CreatePromoCode(ctx context.Context, promo promoz.PromoCode) (promoz.PromoCode, error) {
	body := wireCreateReq{Name: promo.Name, Advantage: promo.Advantage}
	switch len(promo.Restrictions) {
	case 0:
	case 1:
		body.Restriction = promo.Restrictions[0]
	default:
		body.And = promo.Restrictions
	}

	var out promoz.PromoCode
	if err := c.do(ctx, http.MethodPost, "/v1/promo-codes", body, &out); err != nil {
		return promoz.PromoCode{}, err
	}
	return out, nil
}

func (c *Client) GetPromoCode(ctx context.Context, name string) (promoz.PromoCode, error) {
	var out promoz.PromoCode
	if err := c.do(ctx, http.MethodGet, "/v1/promo-codes/"+url.PathEscape(name), nil, &out); err != nil {
		return promoz.PromoCode{}, err
	}
	return out, nil
}

func (c *Client) ListPromoCodes(ctx context.Context) ([]promoz.PromoCode, error) {
	var out []promoz.PromoCode
	if err := c.do(ctx, http.MethodGet, "/v1/promo-codes", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []promoz.PromoCode{}
	}
	return out, nil
}

// -- Checker -----------------------------------------------------------------

func (c *Client) CheckPromoCode(ctx context.Context, req promoz.CheckRequest) (promoz.CheckResult, error) {
	q := url.Values{}
	q.Set("name", req.Name)
	if req.Age != nil {
		q.Set("age", strconv.FormatFloat(*req.Age, 'f', -1, 64))
	}
	if req.Town != "" {
		q.Set("town", req.Town)
	}

	var out promoz.CheckResult
	if err := c.do(ctx, http.MethodGet, "/v1/promo-codes/check?"+q.Encode(), nil, &out); err != nil {
		return promoz.CheckResult{}, err
	}
	return out, nil
}
