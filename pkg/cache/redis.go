package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/univern/academics-api/pkg/config"
)

// NewRedis constructs a Redis client from configuration.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
