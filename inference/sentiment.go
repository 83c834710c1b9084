package inference

import (
	"context"
	"fmt"
	"net/http"

	"hfserverless/handler"
	"hfserverless/lib/timer"
	"hfserverless/pipeline"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

func init() {
	handler.MustRegister("sentiment", newSentimentHandler)
}

func newSentimentHandler(env *handler.Env) (handler.Func, error) {
	if env.Loader == nil {
		return nil, fmt.Errorf("sentiment handler needs a pipeline loader")
	}
	lazy := pipeline.NewLazy(func(ctx context.Context) (pipeline.Pipeline, error) {
		return env.Loader.Load(ctx, pipeline.SentimentAnalysis)
	})
	env.OnClose(lazy.Close)
	logger := env.Logger

	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		text, err := handler.Text(req)
		if err != nil {
			logger.Debug("rejected request", zap.Error(err))
			return handler.Error(http.StatusBadRequest, err), nil
		}
		p, err := lazy.Get(ctx)
		if err != nil {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to load sentiment pipeline: %w", err)
		}
		timer.Mark(ctx, "pipeline_ready")
		preds, err := p.Classify(ctx, text)
		if err != nil {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to classify text: %w", err)
		}
		if len(preds) == 0 {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("pipeline returned no predictions")
		}
		return handler.JSON(http.StatusOK, preds[0])
	}, nil
}
