package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	defaultAPIVersion        = "2024-01"
	defaultMinInterval       = 500 * time.Millisecond
	defaultMaxAttempts       = 5
	defaultBaseBackoff       = time.Second
	defaultRetryAfter        = 2 * time.Second
	defaultTimeout           = 30 * time.Second
	accessTokenHeader        = "X-Shopify-Access-Token"
	errorBodyReadLimit int64 = 1024
)

var (
	errStoreURLRequired    = errors.New("shopify store url is required")
	errCredentialsRequired = errors.New("shopify access token or client credentials are required")
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RequestObserver receives one callback per HTTP attempt.
type RequestObserver interface {
	ObserveSourceRequest(kind string, status int, duration time.Duration)
}

// Client talks to the Shopify Admin REST API.
type Client struct {
	httpClient *http.Client
	storeURL   string
	apiVersion string

	clientID     string
	clientSecret string

	tokenMu sync.Mutex
	token   string

	limiter           *rate.Limiter
	maxAttempts       int
	baseBackoff       time.Duration
	defaultRetryAfter time.Duration
	sleep             Sleeper

	logg     *logger.Logger
	observer RequestObserver
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIVersion overrides the Admin API version segment.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(version); v != "" {
			c.apiVersion = v
		}
	}
}

// WithClientCredentials enables the client-credentials token grant when no static token is set.
func WithClientCredentials(clientID, clientSecret string) Option {
	return func(c *Client) {
		c.clientID = strings.TrimSpace(clientID)
		c.clientSecret = strings.TrimSpace(clientSecret)
	}
}

// WithMinInterval enforces a minimum gap between requests. Zero disables throttling.
func WithMinInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.limiter = newLimiter(interval)
	}
}

// WithRetry configures the attempt cap and the base of the 5xx exponential backoff.
func WithRetry(maxAttempts int, baseBackoff time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseBackoff > 0 {
			c.baseBackoff = baseBackoff
		}
	}
}

// WithDefaultRetryAfter sets the wait used when a 429 carries no Retry-After header.
func WithDefaultRetryAfter(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultRetryAfter = d
		}
	}
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// WithObserver attaches a per-request observer.
func WithObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient builds a client for the given store. accessToken may be empty when
// client credentials are supplied.
func NewClient(storeURL, accessToken string, opts ...Option) (*Client, error) {
	store := normalizeStoreURL(storeURL)
	if store == "" {
		return nil, errStoreURLRequired
	}

	client := &Client{
		httpClient:        &http.Client{Timeout: defaultTimeout},
		storeURL:          store,
		apiVersion:        defaultAPIVersion,
		token:             strings.TrimSpace(accessToken),
		limiter:           newLimiter(defaultMinInterval),
		maxAttempts:       defaultMaxAttempts,
		baseBackoff:       defaultBaseBackoff,
		defaultRetryAfter: defaultRetryAfter,
		sleep:             sleepContext,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.token == "" && (client.clientID == "" || client.clientSecret == "") {
		return nil, errCredentialsRequired
	}

	return client, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func normalizeStoreURL(raw string) string {
	store := strings.TrimRight(strings.TrimSpace(raw), "/")
	if store == "" {
		return ""
	}
	if !strings.HasPrefix(store, "http://") && !strings.HasPrefix(store, "https://") {
		store = "https://" + store
	}
	return store
}

func (c *Client) apiBase() string {
	return fmt.Sprintf("%s/admin/api/%s", c.storeURL, c.apiVersion)
}

// page is one decoded response plus the cursor to the next page.
type page struct {
	body []byte
	next string
}

// getPage performs a throttled GET with retry. Exhausted retries surface as
// CodeSourceUnavailable.
func (c *Client) getPage(ctx context.Context, kind Kind, url string) (page, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return page{}, pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "waiting for source rate limiter")
		}

		start := time.Now()
		resp, err := c.send(ctx, url)
		if err != nil {
			c.observe(kind, 0, time.Since(start))
			if ctx.Err() != nil {
				return page{}, pkgerrors.Wrap(pkgerrors.CodeCanceled, ctx.Err(), "source request canceled")
			}
			lastErr = err
			if waitErr := c.backoff(ctx, kind, attempt, c.expBackoff(attempt), err); waitErr != nil {
				return page{}, waitErr
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		c.observe(kind, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				lastErr = readErr
				if waitErr := c.backoff(ctx, kind, attempt, c.expBackoff(attempt), readErr); waitErr != nil {
					return page{}, waitErr
				}
				continue
			}
			return page{body: body, next: nextLink(resp.Header.Get("Link"))}, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = pkgerrors.New(pkgerrors.CodeRateLimited, "source rate limit exceeded")
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), c.defaultRetryAfter)
			if waitErr := c.backoff(ctx, kind, attempt, wait, lastErr); waitErr != nil {
				return page{}, waitErr
			}

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body))
			if waitErr := c.backoff(ctx, kind, attempt, c.expBackoff(attempt), lastErr); waitErr != nil {
				return page{}, waitErr
			}

		default:
			return page{}, mapStatusError(resp.StatusCode, body)
		}
	}

	return page{}, pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, lastErr, "source retries exhausted").
		WithDetails(map[string]any{"kind": string(kind), "attempts": c.maxAttempts})
}

func (c *Client) send(ctx context.Context, url string) (*http.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(accessTokenHeader, token)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

// backoff sleeps before the next attempt unless this was the last one.
func (c *Client) backoff(ctx context.Context, kind Kind, attempt int, wait time.Duration, cause error) error {
	if attempt+1 >= c.maxAttempts {
		return nil
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"kind":    string(kind),
			"attempt": attempt + 1,
			"wait_ms": wait.Milliseconds(),
			"cause":   cause.Error(),
		})
		c.logg.Warn(logCtx, "retrying source request")
	}
	if err := c.sleep(ctx, wait); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "source backoff interrupted")
	}
	return nil
}

func (c *Client) expBackoff(attempt int) time.Duration {
	return c.baseBackoff * time.Duration(1<<attempt)
}

func (c *Client) observe(kind Kind, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveSourceRequest(string(kind), status, d)
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := c.exchangeClientCredentials(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) exchangeClientCredentials(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.storeURL+"/admin/oauth/access_token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), "shopify token exchange failed")
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shopify token response")
	}
	if decoded.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shopify token response missing access_token")
	}
	return decoded.AccessToken, nil
}

func mapStatusError(status int, body []byte) error {
	cause := fmt.Errorf("status %d: %s", status, truncate(body))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, cause, "shopify rejected credentials")
	case http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "shopify resource not found")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, cause, "shopify request failed")
	}
}

// parseRetryAfter accepts delta-seconds (including Shopify's "2.0") or an HTTP date.
func parseRetryAfter(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

// nextLink extracts the rel="next" URL from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` || param == "rel=next" {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}

func truncate(body []byte) string {
	if int64(len(body)) > errorBodyReadLimit {
		body = body[:errorBodyReadLimit]
	}
	return strings.TrimSpace(string(body))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
