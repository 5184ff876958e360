package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"chat-sync/internal/apperrors"
)

// Config is used to build the redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewClient connects to redis and verifies the connection with a bounded ping.
func NewClient(c Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

func unavailable(err error, op string) error {
	return apperrors.NewUnavailableError(errors.Wrap(err, op), op)
}
