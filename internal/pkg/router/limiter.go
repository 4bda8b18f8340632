package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/cuidarte/crm/internal/pkg/cache"
	"github.com/cuidarte/crm/internal/pkg/env"
)

// limiterDatabase keeps rate limit counters apart from the cache (DB 0).
const limiterDatabase = 1

// newLimiterStorage shares the cache's redis server for limiter counters.
func newLimiterStorage() fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

// APIRateLimiter limits each client IP to RATE_LIMIT_MAX requests per minute.
func APIRateLimiter(storage fiber.Storage) fiber.Handler {
	max := env.GetInt("RATE_LIMIT_MAX", 120)
	log.Infof("[Router] API rate limit %d req/min", max)
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Too many requests, try again later",
			})
		},
	})
}
