package iplookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photoTracker/utils"
)

// Cached serves repeated lookups from a Cache. Cache failures are logged and
// the lookup falls through to the provider.
type Cached struct {
	Provider Provider
	Cache    Cache
	TTL      time.Duration
}

func NewCached(p Provider, c Cache, ttl time.Duration) *Cached {
	return &Cached{Provider: p, Cache: c, TTL: ttl}
}

func (c *Cached) Lookup(ctx context.Context, ip string) (*Result, error) {
	norm, err := NormalizeIP(ip)
	if err != nil {
		return nil, err
	}
	log := utils.Logger(ctx).WithField("ip", norm)

	if hit, ok, err := c.Cache.Get(ctx, norm); err != nil {
		log.WithError(err).Warn("lookup cache read failed")
	} else if ok {
		hit.Cached = true
		return hit, nil
	}

	res, err := c.Provider.Lookup(ctx, norm)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Put(ctx, norm, res, c.TTL); err != nil {
		log.WithError(err).Warn("lookup cache write failed")
	}
	return res, nil
}

// Chain asks each provider in turn and returns the first success. When all
// fail, the first provider's error is returned.
type Chain []Provider

func (ch Chain) Lookup(ctx context.Context, ip string) (*Result, error) {
	var first error
	for _, p := range ch {
		res, err := p.Lookup(ctx, ip)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ErrInvalidIP) {
			return nil, err
		}
		if first == nil {
			first = err
		}
		utils.Logger(ctx).WithError(err).Debug("provider failed, trying next")
	}
	if first == nil {
		first = fmt.Errorf("%w: no providers configured", ErrLookupFailed)
	}
	return nil, first
}
