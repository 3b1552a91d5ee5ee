package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/config"
	"github.com/tensorplex-labs/subnet-rankings/internal/forecast"
	"github.com/tensorplex-labs/subnet-rankings/internal/prediction"
	"github.com/tensorplex-labs/subnet-rankings/internal/storage"
	"github.com/tensorplex-labs/subnet-rankings/internal/utils/logger"
)

func main() {
	plotRows := flag.Int("plot", 10, "number of subnets in the terminal probability chart, 0 to disable")
	logger.Init()
	log.Info().Msg("Starting subnet ranking prediction...")

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

	rec, err := svc.Predict(ctx, time.Now().UTC())
	if err != nil {
		msg := "prediction run failed"
		if errors.Is(err, forecast.ErrInsufficientHistory) || errors.Is(err, forecast.ErrNoHistory) {
			msg = "not enough data to predict"
		}
		log.Error().Err(err).Msg(msg)
		closeStore()
		os.Exit(1)
	}

	if *plotRows > 0 {
		for _, dp := range rec.PredictionsByDate {
			prediction.PlotProbabilitiesTerminal(os.Stdout, dp, *plotRows)
		}
	}
	log.Info().Int("target_dates", len(rec.PredictionsByDate)).Msg("predictions stored")
}
