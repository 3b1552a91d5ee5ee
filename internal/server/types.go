package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

const DefaultBodyLimit = 1 * 1024 * 1024 // 1MB, the API only serves reads

// Server is the forecaster's read-only HTTP API.
type Server struct {
	App  *fiber.App
	addr string
}

// DocumentSource serves the latest stored prediction and backtest documents.
type DocumentSource interface {
	Latest(ctx context.Context, key string) ([]byte, error)
	PredictionsKey() string
	BacktestKey() string
}

// StdResponse is the envelope for every non-document response.
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}

func createResponse[T any](body T, err error) StdResponse[T] {
	if err != nil {
		errMsg := err.Error()
		return StdResponse[T]{
			Body:  body,
			Error: &errMsg,
		}
	}
	return StdResponse[T]{
		Body:  body,
		Error: nil,
	}
}
