package iplookup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	res   *Result
	err   error
	calls int
}

func (s *stubProvider) Lookup(ctx context.Context, ip string) (*Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := *s.res
	r.Query = ip
	return &r, nil
}

type mapCache struct {
	mu     sync.Mutex
	items  map[string]Result
	ttls   map[string]time.Duration
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]Result{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(ctx context.Context, ip string) (*Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	r, ok := m.items[ip]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (m *mapCache) Put(ctx context.Context, ip string, r *Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ip] = *r
	m.ttls[ip] = ttl
	return nil
}

func TestCachedServesHits(t *testing.T) {
	p := &stubProvider{res: &Result{Status: "success", City: "X", Lat: 1, Lon: 2}}
	cache := newMapCache()
	c := NewCached(p, cache, time.Hour)

	first, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Lookup(context.Background(), " 8.8.8.8")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "X", second.City)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, time.Hour, cache.ttls["8.8.8.8"])
}

func TestCachedSkipsFailures(t *testing.T) {
	p := &stubProvider{err: &StatusError{Status: "fail"}}
	cache := newMapCache()
	c := NewCached(p, cache, time.Hour)

	_, err := c.Lookup(context.Background(), "10.0.0.1")
	require.Error(t, err)
	assert.Empty(t, cache.items)
}

func TestCachedReadErrorFallsThrough(t *testing.T) {
	p := &stubProvider{res: &Result{Status: "success", Lat: 1, Lon: 2}}
	cache := newMapCache()
	cache.getErr = errors.New("disk on fire")

	res, err := NewCached(p, cache, time.Hour).Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Lat)
	assert.Equal(t, 1, p.calls)
}

func TestCachedRejectsInvalidIP(t *testing.T) {
	p := &stubProvider{res: &Result{}}
	_, err := NewCached(p, newMapCache(), time.Hour).Lookup(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrInvalidIP))
	assert.Equal(t, 0, p.calls)
}

func TestChainFallsBack(t *testing.T) {
	down := &stubProvider{err: ErrRateLimited}
	local := &stubProvider{res: &Result{Status: "success", Source: "geoip2", Lat: 3, Lon: 4}}

	res, err := Chain{down, local}.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "geoip2", res.Source)
	assert.Equal(t, 1, down.calls)
}

func TestChainReturnsFirstError(t *testing.T) {
	a := &stubProvider{err: ErrRateLimited}
	b := &stubProvider{err: &StatusError{Status: "fail"}}

	_, err := Chain{a, b}.Lookup(context.Background(), "8.8.8.8")
	assert.True(t, errors.Is(err, ErrRateLimited))

	_, err = Chain{}.Lookup(context.Background(), "8.8.8.8")
	assert.True(t, errors.Is(err, ErrLookupFailed))
}

func TestChainStopsOnInvalidIP(t *testing.T) {
	a := &stubProvider{err: ErrInvalidIP}
	b := &stubProvider{res: &Result{}}

	_, err := Chain{a, b}.Lookup(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrInvalidIP))
	assert.Equal(t, 0, b.calls)
}

func TestGeoIPMissingDatabase(t *testing.T) {
	_, err := OpenGeoIP("testdata/does-not-exist.mmdb")
	assert.Error(t, err)

	var g *GeoIPProvider
	_, err = g.Lookup(context.Background(), "8.8.8.8")
	assert.True(t, errors.Is(err, ErrLookupFailed))
	_, err = g.Lookup(context.Background(), "bogus")
	assert.True(t, errors.Is(err, ErrInvalidIP))
	assert.NoError(t, g.Close())
}
