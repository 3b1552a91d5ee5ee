package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/features"
	"github.com/tensorplex-labs/subnet-rankings/internal/history"
	"github.com/tensorplex-labs/subnet-rankings/internal/prediction"
)

const (
	DefaultMinSnapshots = 48
	DefaultLookbackDays = 28

	topPredictions = 5
)

type runner struct {
	minSnapshots  int
	lookbackDays  int
	modelCfg      prediction.Config
	extractorOpts []features.ExtractorOption
}

type Option func(*runner)

func WithMinSnapshots(n int) Option {
	return func(r *runner) {
		r.minSnapshots = n
	}
}

func WithLookbackDays(days int) Option {
	return func(r *runner) {
		r.lookbackDays = days
	}
}

func WithModelConfig(cfg prediction.Config) Option {
	return func(r *runner) {
		r.modelCfg = cfg
	}
}

func WithExtractorOptions(opts ...features.ExtractorOption) Option {
	return func(r *runner) {
		r.extractorOpts = append(r.extractorOpts, opts...)
	}
}

func newRunner(opts ...Option) *runner {
	r := &runner{
		minSnapshots: DefaultMinSnapshots,
		lookbackDays: DefaultLookbackDays,
		modelCfg:     prediction.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunBacktest simulates a prediction made at testDate using only snapshots at or before it, then
// scores the top pick against the full history at testDate + windowDays.
func RunBacktest(h history.History, testDate time.Time, windowDays int, opts ...Option) Result {
	return newRunner(opts...).run(h, testDate, windowDays)
}

func (r *runner) run(h history.History, testDate time.Time, windowDays int) Result {
	training := h.Until(testDate)
	if len(training) < r.minSnapshots {
		return Result{
			Status: StatusInsufficientData,
			Error:  fmt.Sprintf("Only %d snapshots available", len(training)),
		}
	}

	extractor := features.NewExtractor(training, r.lookbackDays, r.extractorOpts...)
	featuresBySubnet := make(map[string]*features.FeatureVector)
	for _, id := range training.SubnetIDs() {
		if fv := extractor.ExtractFeatures(id); fv != nil {
			featuresBySubnet[id] = fv
		}
	}
	if len(featuresBySubnet) == 0 {
		return Result{
			Status: StatusNoFeatures,
			Error:  "Could not extract features from training data",
		}
	}

	// the simulated run happens at testDate, so days_until is the window itself
	targetDate := testDate.AddDate(0, 0, windowDays)
	model := prediction.NewModel(r.modelCfg, prediction.WithNow(testDate))
	probs := model.CalculateProbabilities(featuresBySubnet, targetDate)

	ranked := prediction.Ranked(probs)
	if len(ranked) == 0 {
		return Result{
			Status: StatusNoFeatures,
			Error:  "Could not extract features from training data",
		}
	}
	predicted := ranked[0]

	res := Result{
		Status:               StatusSuccess,
		TestDate:             history.Timestamp{Time: testDate},
		TargetDate:           history.Timestamp{Time: targetDate},
		PredictionWindowDays: windowDays,
		TrainingSnapshots:    len(training),
		PredictedNetUID:      prediction.NetUID(predicted),
		PredictedProbability: probs[predicted],
	}

	// ground truth comes from the full history, never from after targetDate
	if actual, ok := h.SnapshotAt(targetDate); ok {
		if e, ok := actual.Entry(predicted); ok {
			rank := e.Rank
			res.ActualRank = &rank
		}
		if leader, ok := actual.Leader(); ok {
			id := prediction.NetUID(leader.ID)
			res.ActualRank1NetUID = &id
			res.PredictedRank1Probability = probs[leader.ID]
		}
	}
	res.PredictionCorrect = res.ActualRank != nil && *res.ActualRank == 1

	for _, id := range ranked[:min(topPredictions, len(ranked))] {
		res.TopPredictions = append(res.TopPredictions, PredictedSubnet{NetUID: prediction.NetUID(id), Probability: probs[id]})
	}

	log.Debug().
		Time("test_date", testDate).
		Int("window_days", windowDays).
		Str("predicted", predicted).
		Float64("probability", res.PredictedProbability).
		Bool("correct", res.PredictionCorrect).
		Msg("backtest point scored")

	return res
}
