package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// ReadinessProbe is one named dependency check for /readyz.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

func PostgresProbe(sqlDB *sql.DB) ReadinessProbe {
	return ReadinessProbe{
		Name:  "postgres",
		Check: sqlDB.PingContext,
	}
}

func RedisProbe(rdb *redis.Client) ReadinessProbe {
	return ReadinessProbe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
}

func RegisterHealthRoutes(app fiber.Router, probes ...ReadinessProbe) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(probes...))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(probes ...ReadinessProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		checks := fiber.Map{}
		ready := true
		for _, probe := range probes {
			if err := probe.Check(ctx); err != nil {
				checks[probe.Name] = "down"
				ready = false
				continue
			}
			checks[probe.Name] = "ok"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
