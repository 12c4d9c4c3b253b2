// Package openexchangerates fetches the latest USD-based rate table from
// openexchangerates.org.
package openexchangerates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/amirasaad/unitconv/pkg/exchange"
)

const (
	// Name identifies this provider in logs and events.
	Name = "openexchangerates"
	// DefaultURL is the "latest rates" endpoint.
	DefaultURL = "https://openexchangerates.org/api/latest.json"
	// DefaultCredentialEnv is the environment variable holding the app id.
	DefaultCredentialEnv = "OPENEXCHANGERATES_APP_ID"

	baseCode     = "USD"
	maxErrorBody = 512
)

// Config configures a Client.
type Config struct {
	URL           string
	CredentialEnv string
	// HTTPTimeout of zero leaves the transport default in place.
	HTTPTimeout time.Duration
}

// Client implements exchange.Fetcher.
type Client struct {
	url           string
	credentialEnv string
	httpClient    *http.Client
	logger        *slog.Logger
	lookupEnv     func(string) (string, bool)
}

// latestResponse mirrors the /latest.json body. Rates are kept raw so a
// non-numeric entry can be reported instead of silently zeroed.
type latestResponse struct {
	Timestamp   json.RawMessage            `json:"timestamp"`
	Base        string                     `json:"base"`
	Rates       map[string]json.RawMessage `json:"rates"`
	Error       bool                       `json:"error"`
	Message     string                     `json:"message"`
	Description string                     `json:"description"`
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.CredentialEnv == "" {
		cfg.CredentialEnv = DefaultCredentialEnv
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:           cfg.URL,
		credentialEnv: cfg.CredentialEnv,
		httpClient:    &http.Client{Timeout: cfg.HTTPTimeout},
		logger:        logger.With(slog.String("provider", Name)),
		lookupEnv:     os.LookupEnv,
	}
}

// Name returns the provider's name.
func (c *Client) Name() string {
	return Name
}

// FetchLatest issues one request for the full rate table. The credential is
// read from the environment on every call.
func (c *Client) FetchLatest(ctx context.Context) (*exchange.Quote, error) {
	appID, ok := c.lookupEnv(c.credentialEnv)
	if !ok || appID == "" {
		return nil, exchange.NewAPIError(
			exchange.ErrMissingCredential,
			"No API key found. Please set the %s environment variable.", c.credentialEnv,
		)
	}

	endpoint, err := url.Parse(c.url)
	if err != nil {
		return nil, exchange.NewAPIError(exchange.ErrTransport, "Invalid pricing source URL: %v", err)
	}
	q := endpoint.Query()
	q.Set("app_id", appID)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, exchange.NewAPIError(exchange.ErrTransport, "Failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching latest exchange rates", "url", c.url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, exchange.NewAPIError(exchange.ErrTransport, "Failed to fetch exchange rates: %v", redact(err, appID))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, exchange.NewAPIError(
			exchange.ErrTransport,
			"Pricing source returned status %d: %s", resp.StatusCode, describe(body),
		)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, exchange.NewAPIError(exchange.ErrInvalidResponse, "Failed to decode exchange rates: %v", err)
	}
	return c.toQuote(&body)
}

func (c *Client) toQuote(body *latestResponse) (*exchange.Quote, error) {
	if body.Error {
		return nil, exchange.NewAPIError(exchange.ErrTransport, "Pricing source error: %s", body.Description)
	}
	if body.Rates == nil {
		return nil, exchange.NewAPIError(exchange.ErrInvalidResponse, "Pricing source response has no rates")
	}
	if body.Base != "" && body.Base != baseCode {
		return nil, exchange.NewAPIError(
			exchange.ErrInvalidResponse,
			"Pricing source priced rates against %s, expected %s", body.Base, baseCode,
		)
	}

	rates := make(map[string]float64, len(body.Rates))
	for code, raw := range body.Rates {
		// null decodes into a *float64 as nil rather than failing.
		var rate *float64
		if err := json.Unmarshal(raw, &rate); err != nil || rate == nil {
			return nil, exchange.NewAPIError(exchange.ErrInvalidRateFormat, "Invalid rate format for %s", code)
		}
		rates[code] = *rate
	}

	return &exchange.Quote{
		Timestamp: c.parseTimestamp(body.Timestamp),
		Rates:     rates,
		Source:    Name,
	}, nil
}

// parseTimestamp returns the zero time when the field is missing, not an
// integer, or not positive.
func (c *Client) parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		c.logger.Warn("Response has no timestamp")
		return time.Time{}
	}
	var secs int64
	if err := json.Unmarshal(raw, &secs); err != nil || secs <= 0 {
		c.logger.Warn("Response timestamp is unusable", "timestamp", string(raw))
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func describe(body []byte) string {
	var payload latestResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Description != "" {
		return payload.Description
	}
	if len(body) == 0 {
		return "empty body"
	}
	return string(body)
}

// redact keeps the credential out of transport errors, which embed the URL.
func redact(err error, secret string) string {
	msg := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		msg = fmt.Sprintf("%s: %v", urlErr.Op, urlErr.Err)
	}
	return strings.ReplaceAll(msg, secret, "****")
}
