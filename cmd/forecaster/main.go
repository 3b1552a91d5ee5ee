package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/config"
	"github.com/tensorplex-labs/subnet-rankings/internal/forecast"
	"github.com/tensorplex-labs/subnet-rankings/internal/scheduler"
	"github.com/tensorplex-labs/subnet-rankings/internal/server"
	"github.com/tensorplex-labs/subnet-rankings/internal/storage"
	"github.com/tensorplex-labs/subnet-rankings/internal/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting forecaster...")

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(ctx, cfg.RunTimeout)
	predictJob := scheduler.NewJob(forecast.JobPredict, cfg.ForecastCron, func(ctx context.Context) error {
		_, err := svc.Predict(ctx, time.Now().UTC())
		return err
	})
	backtestJob := scheduler.NewJob(forecast.JobBacktest, cfg.BacktestCron, func(ctx context.Context) error {
		_, err := svc.Backtest(ctx, time.Now().UTC())
		return err
	})
	for _, job := range []*scheduler.Job{predictJob, backtestJob} {
		if err := sched.Add(job); err != nil {
			log.Fatal().Err(err).Msg("failed to schedule job")
		}
	}

	srv := server.NewServer(cfg.HTTPAddr, svc, svc.Metrics().Registry)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	sched.Start()
	// serve something useful right away instead of waiting for the first tick
	go sched.RunNow(predictJob)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping forecaster")

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("forecaster stopped")
}
