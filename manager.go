package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"photoTracker/redis"
)

func main() {
	loadEnvFile()

	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid logging configuration:", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		logrus.WithError(err).Error("photoTracker failed")
		os.Exit(1)
	}
}

func run(cfg Config) error {
	switch {
	case cfg.Serve:
		return StartServer(cfg)

	case cfg.ClearCache:
		return clearCaches(context.Background(), cfg)

	case cfg.PhotoPath != "":
		out, err := BuildPhotoReportJSON(cfg.PhotoPath, cfg.MaxPixels())
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil

	case cfg.LookupIP != "":
		ctx := context.Background()
		stack, err := buildLookup(ctx, cfg)
		if err != nil {
			return err
		}
		defer stack.Close()
		res, err := stack.provider.Lookup(ctx, cfg.LookupIP)
		fmt.Println(lookupReportJSON(res, err))
		return nil

	default:
		return fmt.Errorf("nothing to do: pass -serve, -photo <file>, -ip <addr> or -clear-cache")
	}
}

// clearCaches empties every configured lookup cache.
func clearCaches(ctx context.Context, cfg Config) error {
	if cfg.CachePath == "" && cfg.RedisURL == "" {
		return fmt.Errorf("no lookup cache configured (set -cache-db or -redis-url)")
	}

	if cfg.RedisURL != "" {
		pool, err := redis.InitializeRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		n, err := redis.NewLookupCache(pool).Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Cleared %d cached lookups from Redis\n", n)
	}

	if cfg.CachePath != "" {
		db, err := openAndInitDB(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("failed to open DB: %w", err)
		}
		defer db.Close()
		if err := db.clearDBTables(); err != nil {
			return fmt.Errorf("failed to clear DB: %w", err)
		}
		fmt.Println("Cleared lookup cache:", cfg.CachePath)
	}
	return nil
}
