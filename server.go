package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"photoTracker/handle"
	"photoTracker/iplookup"
	"photoTracker/redis"
	"photoTracker/utils"
)

// lookupStack is the assembled IP lookup provider plus what must be closed on exit.
type lookupStack struct {
	provider iplookup.Provider
	closers  []func() error
	db       *DB
}

func (s *lookupStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		utils.CloseQuietly("lookup stack", s.closers[i])
	}
}

// buildLookup wires ip-api.com, the optional GeoIP fallback and the optional cache.
func buildLookup(ctx context.Context, cfg Config) (*lookupStack, error) {
	stack := &lookupStack{}

	var provider iplookup.Provider = iplookup.NewClient(cfg.IPAPIBaseURL, cfg.LookupTimeout)
	if cfg.GeoIPPath != "" {
		geo, err := iplookup.OpenGeoIP(cfg.GeoIPPath)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, geo.Close)
		provider = iplookup.Chain{provider, geo}
		logrus.WithField("path", cfg.GeoIPPath).Info("GeoIP fallback enabled")
	}

	switch {
	case cfg.RedisURL != "":
		pool, err := redis.InitializeRedis(ctx, cfg.RedisURL)
		if err != nil {
			stack.Close()
			return nil, err
		}
		stack.closers = append(stack.closers, pool.Close)
		provider = iplookup.NewCached(provider, redis.NewLookupCache(pool), cfg.CacheTTL)
		logrus.Info("Redis lookup cache enabled")
	case cfg.CachePath != "":
		db, err := openAndInitDB(cfg.CachePath)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("failed to open/init lookup cache: %w", err)
		}
		if n, err := db.pruneExpired(ctx); err != nil {
			logrus.WithError(err).Warn("pruning lookup cache")
		} else if n > 0 {
			logrus.WithField("rows", n).Info("pruned expired lookups")
		}
		stack.db = db
		stack.closers = append(stack.closers, db.Close)
		provider = iplookup.NewCached(provider, db, cfg.CacheTTL)
		logrus.WithField("path", cfg.CachePath).Info("SQLite lookup cache enabled")
	}

	stack.provider = provider
	return stack, nil
}

func newRouter(h *handle.Handler) http.Handler {
	r := mux.NewRouter()
	handle.InitializeRoutes(r, h)

	cors := handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Accept", "X-Request-Id"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"}),
	)
	return cors(r)
}

func StartServer(cfg Config) error {
	stack, err := buildLookup(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: newRouter(&handle.Handler{
			Lookup:         stack.provider,
			MaxUploadBytes: cfg.MaxUploadBytes(),
			MaxPixels:      cfg.MaxPixels(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.LookupTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go utils.Quit("HTTP server", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("server shutdown")
		}
	})

	logrus.WithField("addr", cfg.Addr).Info("serving HTTP")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
