package server

import (
	"bytes"
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// ZstdMiddleware compresses the response with zstd when the client accepts it. Paths in
// skipRoutes are served as-is.
func ZstdMiddleware(skipRoutes []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if slices.Contains(skipRoutes, c.Path()) {
			return nil
		}
		if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderAcceptEncoding)), "zstd") {
			return nil
		}
		if len(c.Response().Header.Peek(fiber.HeaderContentEncoding)) > 0 {
			return nil
		}

		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			log.Error().Err(err).Msg("zstd: failed to create writer for response body")
			return nil
		}
		if _, err := w.Write(c.Response().Body()); err != nil {
			_ = w.Close()
			log.Error().Err(err).Msg("zstd: failed to compress response body")
			return nil
		}
		if err := w.Close(); err != nil {
			log.Error().Err(err).Msg("zstd: failed to flush response body")
			return nil
		}

		comp := buf.Bytes()
		c.Response().SetBody(comp)
		c.Set(fiber.HeaderContentEncoding, "zstd")
		c.Set(fiber.HeaderVary, fiber.HeaderAcceptEncoding)
		c.Set(fiber.HeaderContentLength, strconv.Itoa(len(comp)))
		return nil
	}
}
