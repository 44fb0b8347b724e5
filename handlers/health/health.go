package health

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Health reports liveness of the process and its backing stores.
func Health(pool *pgxpool.Pool, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := pool.Ping(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unreachable")
		}
		if rdb != nil {
			if err := rdb.Ping(c.Context()).Err(); err != nil {
				return fiber.NewError(fiber.StatusServiceUnavailable, "redis unreachable")
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
