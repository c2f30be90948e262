package locker

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/learnway/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("locker",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
