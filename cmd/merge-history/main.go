package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/config"
	"github.com/tensorplex-labs/subnet-rankings/internal/forecast"
	"github.com/tensorplex-labs/subnet-rankings/internal/history"
	"github.com/tensorplex-labs/subnet-rankings/internal/storage"
	"github.com/tensorplex-labs/subnet-rankings/internal/utils/logger"
)

func main() {
	input := flag.String("input", "-", "snapshot file to merge (a snapshot object or an array), - for stdin")
	logger.Init()

	raw, err := readInput(*input)
	if err != nil {
		log.Fatal().Err(err).Str("input", *input).Msg("failed to read snapshots")
	}
	incoming, err := history.ParseSnapshots(raw)
	if err != nil {
		log.Fatal().Err(err).Str("input", *input).Msg("malformed snapshot input")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	store, closeStore, err := storage.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init storage")
	}
	defer closeStore()

	svc, err := forecast.NewService(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init forecast service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer cancel()

	added, err := svc.MergeHistory(ctx, incoming)
	if err != nil {
		log.Error().Err(err).Msg("merge failed")
		closeStore()
		os.Exit(1)
	}
	log.Info().Int("incoming", len(incoming)).Int("added", added).Msg("merge complete")
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
