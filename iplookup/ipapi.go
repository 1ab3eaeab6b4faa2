package iplookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"photoTracker/utils"
)

const (
	DefaultBaseURL = "http://ip-api.com"
	DefaultTimeout = 10 * time.Second

	sourceIPAPI = "ip-api"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

type ipapiResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Query    string   `json:"query"`
	City     string   `json:"city"`
	Country  string   `json:"country"`
	ISP      string   `json:"isp"`
	Timezone string   `json:"timezone"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

// Client queries the ip-api.com JSON endpoint. It honours the X-Rl/X-Ttl
// rate-limit headers by refusing calls until the window resets.
type Client struct {
	baseURL string
	session *http.Client
	timeout time.Duration
	now     func() time.Time

	mu           sync.Mutex
	blockedUntil time.Time
}

// NewClient returns a Client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: &http.Client{Timeout: timeout},
		timeout: timeout,
		now:     time.Now,
	}
}

func (c *Client) Lookup(ctx context.Context, ip string) (_ *Result, err error) {
	defer utils.TimeOp(ctx, "ipapi.lookup")(&err)

	norm, err := NormalizeIP(ip)
	if err != nil {
		return nil, err
	}
	if until := c.blocked(); !until.IsZero() {
		return nil, fmt.Errorf("%w until %s", ErrRateLimited, until.Format(time.RFC3339))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/json/" + url.PathEscape(norm)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	c.observeRateLimit(resp)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: http 429", ErrRateLimited)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		he := &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, he)
	}

	var decoded ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}

	if decoded.Status != "success" {
		return nil, &StatusError{Status: decoded.Status, Message: decoded.Message}
	}
	if decoded.Lat == nil || decoded.Lon == nil {
		return nil, fmt.Errorf("%w: response missing coordinates", ErrLookupFailed)
	}

	query := decoded.Query
	if query == "" {
		query = norm
	}
	return &Result{
		Query:    query,
		Status:   decoded.Status,
		City:     decoded.City,
		Country:  decoded.Country,
		ISP:      decoded.ISP,
		Timezone: decoded.Timezone,
		Lat:      *decoded.Lat,
		Lon:      *decoded.Lon,
		Source:   sourceIPAPI,
	}, nil
}

// blocked returns the end of the current rate-limit window, or zero.
func (c *Client) blocked() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.blockedUntil) {
		return c.blockedUntil
	}
	return time.Time{}
}

func (c *Client) observeRateLimit(resp *http.Response) {
	remaining, rlErr := strconv.Atoi(resp.Header.Get("X-Rl"))
	exhausted := resp.StatusCode == http.StatusTooManyRequests || (rlErr == nil && remaining <= 0)
	if !exhausted {
		return
	}

	ttl, err := strconv.Atoi(resp.Header.Get("X-Ttl"))
	if err != nil || ttl <= 0 {
		ttl = 60
	}

	c.mu.Lock()
	c.blockedUntil = c.now().Add(time.Duration(ttl) * time.Second)
	c.mu.Unlock()
}
