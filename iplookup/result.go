// Package iplookup resolves the approximate location of an IP address
// through an external lookup service or a local GeoIP database.
package iplookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var (
	// ErrInvalidIP is returned before any network call for input that is not an IP address.
	ErrInvalidIP = errors.New("iplookup: invalid ip address")
	// ErrLookupFailed wraps every transport, timeout or decoding failure.
	ErrLookupFailed = errors.New("iplookup: lookup failed")
	// ErrRateLimited is returned while the provider's request window is exhausted.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrLookupFailed)
)

// StatusError is a well-formed answer whose status is not "success",
// e.g. {"status":"fail","message":"private range"}.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("iplookup: status %q", e.Status)
	}
	return fmt.Sprintf("iplookup: status %q: %s", e.Status, e.Message)
}

// Result is one resolved location. Only successful lookups produce a Result.
type Result struct {
	Query    string  `json:"query"`
	Status   string  `json:"status"`
	City     string  `json:"city"`
	Country  string  `json:"country"`
	ISP      string  `json:"isp"`
	Timezone string  `json:"timezone"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Source   string  `json:"source"`
	Cached   bool    `json:"cached"`
}

// MapsURL links the resolved position to a Google Maps query.
func (r *Result) MapsURL() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", r.Lat, r.Lon)
}

// Provider resolves one IP address.
type Provider interface {
	Lookup(ctx context.Context, ip string) (*Result, error)
}

// Cache stores successful results keyed by normalized IP.
type Cache interface {
	Get(ctx context.Context, ip string) (*Result, bool, error)
	Put(ctx context.Context, ip string, r *Result, ttl time.Duration) error
}

// NormalizeIP trims and validates the input and returns the canonical text form.
func NormalizeIP(ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return parsed.String(), nil
}
