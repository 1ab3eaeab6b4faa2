package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"photoTracker/iplookup"
)

var (
	defaultAddr     = "127.0.0.1:7070"
	defaultCacheTTL = 24 * time.Hour
	defaultUploadMB = 20
	defaultMaxMP    = 50
)

// Config is the resolved runtime configuration. Environment variables (and a
// .env file) supply defaults; command-line flags win.
type Config struct {
	Addr          string
	IPAPIBaseURL  string
	LookupTimeout time.Duration
	CachePath     string
	CacheTTL      time.Duration
	RedisURL      string
	GeoIPPath     string
	MaxUploadMB   int
	MaxMegapixels int
	LogLevel      string
	LogFormat     string

	Serve      bool
	PhotoPath  string
	LookupIP   string
	ClearCache bool
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// MaxPixels is the largest declared image size decoded from an upload.
func (c Config) MaxPixels() int64 {
	return int64(c.MaxMegapixels) * 1_000_000
}

// loadEnvFile reads .env into the process environment when it exists.
func loadEnvFile() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not read .env file")
	}
}

func loadConfig(args []string, getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	lookupTimeout, err := envDuration(env("LOOKUP_TIMEOUT", ""), iplookup.DefaultTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("LOOKUP_TIMEOUT: %w", err)
	}
	cacheTTL, err := envDuration(env("CACHE_TTL", ""), defaultCacheTTL)
	if err != nil {
		return Config{}, fmt.Errorf("CACHE_TTL: %w", err)
	}
	uploadMB := defaultUploadMB
	if v := env("MAX_UPLOAD_MB", ""); v != "" {
		if uploadMB, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("MAX_UPLOAD_MB: %w", err)
		}
	}
	maxMP := defaultMaxMP
	if v := env("MAX_MEGAPIXELS", ""); v != "" {
		if maxMP, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("MAX_MEGAPIXELS: %w", err)
		}
	}

	var cfg Config
	fs := flag.NewFlagSet("photoTracker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&cfg.Serve, "serve", false, "Run HTTP server with the lookup form and wait for requests")
	fs.StringVar(&cfg.PhotoPath, "photo", "", "Extract device info and GPS location from a photo file and exit")
	fs.StringVar(&cfg.LookupIP, "ip", "", "Resolve the location of an IP address and exit")
	fs.BoolVar(&cfg.ClearCache, "clear-cache", false, "Delete all cached IP lookups and exit")
	fs.StringVar(&cfg.Addr, "addr", env("LISTEN_ADDR", defaultAddr), "HTTP listen address")
	fs.StringVar(&cfg.IPAPIBaseURL, "ipapi-url", env("IPAPI_BASE_URL", iplookup.DefaultBaseURL), "Base URL of the ip-api.com service")
	fs.DurationVar(&cfg.LookupTimeout, "lookup-timeout", lookupTimeout, "Timeout for one IP lookup")
	fs.StringVar(&cfg.CachePath, "cache-db", env("CACHE_DB", ""), "SQLite lookup cache file (empty disables)")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cacheTTL, "How long cached lookups stay valid")
	fs.StringVar(&cfg.RedisURL, "redis-url", env("REDIS_URL", ""), "Redis URL for a shared lookup cache (overrides -cache-db)")
	fs.StringVar(&cfg.GeoIPPath, "geoip-db", env("GEOIP_DB", ""), "MaxMind City database used when ip-api.com fails")
	fs.IntVar(&cfg.MaxUploadMB, "max-upload-mb", uploadMB, "Largest accepted photo upload, in MiB")
	fs.IntVar(&cfg.MaxMegapixels, "max-megapixels", maxMP, "Largest declared image size decoded, in megapixels")
	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", env("LOG_FORMAT", "text"), "Log format: text or json")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.MaxUploadMB <= 0 {
		return Config{}, fmt.Errorf("max upload size must be positive, got %d", cfg.MaxUploadMB)
	}
	if cfg.MaxMegapixels <= 0 {
		return Config{}, fmt.Errorf("max megapixels must be positive, got %d", cfg.MaxMegapixels)
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = iplookup.DefaultTimeout
	}
	return cfg, nil
}

func envDuration(v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func setupLogging(cfg Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return nil
}
