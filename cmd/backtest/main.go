package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/backtest"
	"github.com/tensorplex-labs/subnet-rankings/internal/config"
	"github.com/tensorplex-labs/subnet-rankings/internal/forecast"
	"github.com/tensorplex-labs/subnet-rankings/internal/storage"
	"github.com/tensorplex-labs/subnet-rankings/internal/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting prediction backtest...")

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

	// a sweep replays up to MaxTests points per window, give it more room than one prediction
	ctx, cancel := context.WithTimeout(context.Background(), 5*cfg.RunTimeout)
	defer cancel()

	report, err := svc.Backtest(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("backtest failed")
		closeStore()
		os.Exit(1)
	}

	for _, window := range report.PredictionWindows {
		wr, ok := report.Results[backtest.WindowLabel(window)]
		if !ok {
			log.Warn().Int("window_days", window).Msg("no results for window")
			continue
		}
		log.Info().
			Int("window_days", wr.WindowDays).
			Int("correct", wr.CorrectPredictions).
			Int("total", wr.TotalTests).
			Float64("accuracy", wr.Accuracy).
			Float64("brier_score", float64(wr.BrierScore)).
			Float64("avg_rank1_probability", wr.AvgRank1Probability).
			Msg("window result")
	}
	if label, best, ok := report.BestWindow(); ok {
		log.Info().Str("best_window", label).Float64("accuracy", best.Accuracy).Msg(report.Verdict())
	}
}
