// Package pipeline classifies text. A Pipeline is either a linear model read
// from the shared model cache or a hosted SageMaker endpoint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"hfserverless/modelstore"
	"hfserverless/sagemaker"

	"go.uber.org/zap"
)

// Prediction is one label and its confidence in [0, 1].
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Pipeline returns every known label for text, highest score first.
type Pipeline interface {
	Classify(ctx context.Context, text string) ([]Prediction, error)
}

type Task string

const (
	SentimentAnalysis Task = "sentiment-analysis"
)

// TaskInfo is what a task resolves to when no model is given explicitly.
type TaskInfo struct {
	DefaultModel string
	Artifact     string
}

var ErrUnknownTask = errors.New("unknown pipeline task")

var tasks = map[Task]TaskInfo{
	SentimentAnalysis: {
		DefaultModel: "hfserverless/sentiment-lexicon-en",
		Artifact:     "model.json",
	},
}

func LookupTask(task Task) (TaskInfo, error) {
	info, ok := tasks[task]
	if !ok {
		return TaskInfo{}, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	return info, nil
}

type Args struct {
	modelstore.ModelStoreArgs
	sagemaker.SagemakerArgs
	Model string `arg:"--model,env:MODEL_ID,help:Model id overriding the task default"`
}

// Loader builds the pipeline backing a task.
type Loader interface {
	Load(ctx context.Context, task Task) (Pipeline, error)
}

// DefaultLoader picks the SageMaker backend when an endpoint is configured and
// the local linear model otherwise.
type DefaultLoader struct {
	args     Args
	logger   *zap.Logger
	fetchers []modelstore.Fetcher
}

var _ Loader = DefaultLoader{}

func NewLoader(args Args, logger *zap.Logger, fetchers ...modelstore.Fetcher) DefaultLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return DefaultLoader{args: args, logger: logger, fetchers: fetchers}
}

func (l DefaultLoader) Load(ctx context.Context, task Task) (Pipeline, error) {
	return New(ctx, task, l.args, l.logger, l.fetchers...)
}

func New(ctx context.Context, task Task, args Args, logger *zap.Logger, fetchers ...modelstore.Fetcher) (Pipeline, error) {
	info, err := LookupTask(task)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if args.SagemakerArgs.Enabled() {
		client, err := sagemaker.NewClient(args.SagemakerArgs)
		if err != nil {
			return nil, fmt.Errorf("failed to create sagemaker client: %w", err)
		}
		logger.Info("using sagemaker pipeline", zap.String("task", string(task)), zap.String("endpoint", client.EndpointName()))
		return traced(NewRemote(client), "sagemaker"), nil
	}

	model := info.DefaultModel
	if args.Model != "" {
		model = args.Model
	}
	cache := modelstore.NewCache(args.CacheDir, logger, fetchers...)
	path, err := cache.Ensure(ctx, modelstore.Key{ModelID: model, File: info.Artifact})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model %s: %w", model, err)
	}
	linear, err := LoadLinearFile(path)
	if err != nil {
		return nil, err
	}
	logger.Info("using local pipeline", zap.String("task", string(task)), zap.String("model", model), zap.String("path", path))
	return traced(linear, "local"), nil
}

// rank orders predictions by score, keeping the input order between ties.
func rank(preds []Prediction) []Prediction {
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Score > preds[j].Score
	})
	return preds
}
