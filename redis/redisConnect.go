package redis

import (
	"context"
	"fmt"
	"time"

	redigo "github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"
)

// InitializeRedis builds a connection pool for rawURL (redis://[:password@]host:port[/db])
// and checks it with a PING.
func InitializeRedis(ctx context.Context, rawURL string) (*redigo.Pool, error) {
	pool := &redigo.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redigo.Conn, error) {
			return redigo.DialURLContext(ctx, rawURL,
				redigo.DialConnectTimeout(5*time.Second),
				redigo.DialReadTimeout(5*time.Second),
				redigo.DialWriteTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redigo.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	conn, err := pool.GetContext(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logrus.Info("Connected Redis!")
	return pool, nil
}
