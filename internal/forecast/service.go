// Package forecast wires history storage, feature extraction, the rank model and the backtest
// harness into the jobs the commands and the scheduler run.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/backtest"
	"github.com/tensorplex-labs/subnet-rankings/internal/config"
	"github.com/tensorplex-labs/subnet-rankings/internal/features"
	"github.com/tensorplex-labs/subnet-rankings/internal/history"
	"github.com/tensorplex-labs/subnet-rankings/internal/prediction"
	"github.com/tensorplex-labs/subnet-rankings/internal/storage"
)

var (
	ErrNoHistory           = errors.New("no history data available")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrNoFeatures          = errors.New("no subnet has enough observations in the lookback window")
)

const (
	minProbabilitySum = 0.99
	maxProbabilitySum = 1.01
)

type Service struct {
	cfg      *config.AppConfig
	store    storage.Store
	modelCfg prediction.Config
	metrics  *Metrics
}

type Option func(*Service)

func WithModelConfig(cfg prediction.Config) Option {
	return func(s *Service) {
		s.modelCfg = cfg
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService uses the model config from MODEL_CONFIG_FILE unless WithModelConfig is given.
func NewService(cfg *config.AppConfig, store storage.Store, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	modelCfg, err := config.LoadModelConfig(cfg.ModelConfigFile)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		modelCfg: modelCfg,
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// LoadHistory reads and parses the stored history, sorted oldest first.
func (s *Service) LoadHistory(ctx context.Context) (history.History, error) {
	raw, err := s.store.Get(ctx, s.cfg.HistoryKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	h, err := history.ParseHistory(raw)
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, ErrNoHistory
	}
	return h, nil
}

// Predict runs the model for every configured target date as of now and stores the record.
func (s *Service) Predict(ctx context.Context, now time.Time) (rec prediction.Record, err error) {
	started := time.Now()
	defer func() { s.metrics.observeRun(JobPredict, started, err) }()

	now = now.UTC()
	h, err := s.LoadHistory(ctx)
	if err != nil {
		return prediction.Record{}, err
	}
	s.metrics.Snapshots.Set(float64(len(h)))
	if len(h) < s.cfg.MinDataPoints {
		return prediction.Record{}, fmt.Errorf("%w: %d snapshots (need %d)", ErrInsufficientHistory, len(h), s.cfg.MinDataPoints)
	}
	log.Info().Int("snapshots", len(h)).Int("lookback_days", s.cfg.LookbackDays).Msg("loaded history")

	targets := config.ParseTargetDates(s.cfg.TargetDates, now)

	extractor := features.NewExtractor(h, s.cfg.LookbackDays, features.WithDefaultLeaderGap(s.cfg.DefaultLeaderGap))
	featuresBySubnet := extractor.ExtractAll()
	log.Info().
		Int("subnets", len(extractor.SubnetIDs())).
		Int("with_features", len(featuresBySubnet)).
		Msg("extracted features")
	if len(featuresBySubnet) == 0 {
		return prediction.Record{}, ErrNoFeatures
	}

	model := prediction.NewModel(s.modelCfg, prediction.WithNow(now))
	meta := prediction.MetaOf(h, s.cfg.LookbackDays)

	byDate := make([]prediction.DatePrediction, 0, len(targets))
	for _, target := range targets {
		probs := model.CalculateProbabilities(featuresBySubnet, target)
		dp := prediction.FormatDatePrediction(probs, featuresBySubnet, target, now, meta)

		if sum := dp.ProbabilitySum(); sum < minProbabilitySum || sum > maxProbabilitySum {
			log.Warn().Str("target_date", dp.TargetDate).Float64("sum", sum).Msg("probabilities do not sum to 1.0")
		}
		if len(dp.Predictions) > 0 {
			top := dp.Predictions[0]
			s.metrics.TopProbability.WithLabelValues(strconv.Itoa(model.DaysUntil(target))).Set(top.Probability)
			log.Info().
				Str("target_date", dp.TargetDate).
				Str("netuid", string(top.NetUID)).
				Str("name", top.SubnetName).
				Str("probability", top.ProbabilityPct).
				Msg("top prediction")
		}
		byDate = append(byDate, dp)
	}

	rec = prediction.NewRecord(now, byDate, s.modelCfg, s.cfg.LookbackDays, s.cfg.MinDataPoints)
	if err := storage.PutJSON(ctx, s.store, s.cfg.PredictionsKey, rec); err != nil {
		return prediction.Record{}, fmt.Errorf("store predictions: %w", err)
	}
	return rec, nil
}

// Backtest sweeps every configured window over the stored history and stores the report.
func (s *Service) Backtest(ctx context.Context, now time.Time) (report backtest.Report, err error) {
	started := time.Now()
	defer func() { s.metrics.observeRun(JobBacktest, started, err) }()

	h, err := s.LoadHistory(ctx)
	if err != nil {
		return backtest.Report{}, err
	}
	log.Info().
		Int("snapshots", len(h)).
		Time("oldest", h.Oldest()).
		Time("newest", h.Newest()).
		Ints("windows", s.cfg.PredictionWindows).
		Msg("running backtest")

	report = backtest.Sweep(h, backtest.SweepConfig{
		BacktestDays:      s.cfg.BacktestDays,
		Windows:           s.cfg.PredictionWindows,
		MaxTests:          s.cfg.MaxTests,
		LookbackFloorDays: s.cfg.LookbackFloorDays,
		GeneratedAt:       now.UTC(),
		Options: []backtest.Option{
			backtest.WithMinSnapshots(s.cfg.MinSnapshots),
			backtest.WithLookbackDays(s.cfg.LookbackDays),
			backtest.WithModelConfig(s.modelCfg),
			backtest.WithExtractorOptions(features.WithDefaultLeaderGap(s.cfg.DefaultLeaderGap)),
		},
	})

	for label, wr := range report.Results {
		s.metrics.BacktestAccuracy.WithLabelValues(label).Set(wr.Accuracy)
		s.metrics.BacktestBrier.WithLabelValues(label).Set(float64(wr.BrierScore))
	}
	if label, best, ok := report.BestWindow(); ok {
		log.Info().Str("window", label).Float64("accuracy", best.Accuracy).Str("verdict", report.Verdict()).Msg("backtest summary")
	}

	if err := storage.PutJSON(ctx, s.store, s.cfg.BacktestKey, report); err != nil {
		return backtest.Report{}, fmt.Errorf("store backtest results: %w", err)
	}
	return report, nil
}

// MergeHistory folds incoming snapshots into the stored history and returns how many new
// timestamps were added. Snapshots at an existing timestamp replace the stored one.
func (s *Service) MergeHistory(ctx context.Context, incoming history.History) (added int, err error) {
	started := time.Now()
	defer func() { s.metrics.observeRun(JobMergeHistory, started, err) }()

	existing, err := s.LoadHistory(ctx)
	if err != nil && !errors.Is(err, ErrNoHistory) {
		return 0, err
	}

	merged := history.Merge(existing, incoming)
	raw, err := history.Marshal(merged)
	if err != nil {
		return 0, fmt.Errorf("encode history: %w", err)
	}
	if err := s.store.Put(ctx, s.cfg.HistoryKey, raw); err != nil {
		return 0, fmt.Errorf("store history: %w", err)
	}

	added = countNew(existing, incoming)
	log.Info().
		Int("existing", len(existing)).
		Int("incoming", len(incoming)).
		Int("merged", len(merged)).
		Int("added", added).
		Msg("history merged")
	return added, nil
}

// countNew counts the distinct incoming timestamps not already present in existing.
func countNew(existing, incoming history.History) int {
	seen := make(map[int64]struct{}, len(existing)+len(incoming))
	for _, snap := range existing {
		seen[snap.Timestamp.UnixNano()] = struct{}{}
	}
	n := 0
	for _, snap := range incoming {
		key := snap.Timestamp.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		n++
	}
	return n
}

// Latest returns the raw stored document under key, for serving as-is.
func (s *Service) Latest(ctx context.Context, key string) ([]byte, error) {
	return s.store.Get(ctx, key)
}

func (s *Service) PredictionsKey() string { return s.cfg.PredictionsKey }
func (s *Service) BacktestKey() string    { return s.cfg.BacktestKey }
