// Package server exposes the latest predictions, backtest results and metrics over HTTP.
package server

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/storage"
)

func NewServer(addr string, docs DocumentSource, registry *prometheus.Registry) *Server {
	app := fiber.New(fiber.Config{
		Prefork:               false,
		ErrorHandler:          fiberErrHandler,
		JSONEncoder:           sonic.ConfigStd.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		BodyLimit:             DefaultBodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// gzip/brotli for clients without zstd; a body already encoded by ZstdMiddleware is left alone
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(ZstdMiddleware([]string{"/health", "/metrics"}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(createResponse(fiber.Map{"status": "ok"}, nil))
	})
	app.Get("/predictions", documentHandler(docs, docs.PredictionsKey()))
	app.Get("/backtest", documentHandler(docs, docs.BacktestKey()))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &Server{App: app, addr: addr}
}

// documentHandler serves the stored JSON document under key unchanged.
func documentHandler(docs DocumentSource, key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := docs.Latest(c.UserContext(), key)
		if errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, key+" not available yet")
		}
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(raw)
	}
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("Fiber error handler triggered")

	return ctx.Status(code).JSON(createResponse(map[string]any{}, err))
}

// Start blocks serving on the configured address until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("http server listening")
	return s.App.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}
