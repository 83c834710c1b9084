package handler

import (
	"context"
	"strconv"
	"time"

	"hfserverless/lib/service"
	"hfserverless/lib/timer"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handler_invocations_total",
		Help: "Requests received per service",
	}, []string{"service"})
	responses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handler_responses_total",
		Help: "Responses returned per service and status code",
	}, []string{"service", "status"})
	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handler_failures_total",
		Help: "Requests that ended in a handler error",
	}, []string{"service"})
)

func instrument(name service.Name, logger *zap.Logger, fn Func) Func {
	svc := name.Value()
	logger = logger.With(zap.String("service", svc))
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		defer timer.Start("handler." + svc).Stop()
		ctx = timer.WithTracing(ctx)
		invocations.WithLabelValues(svc).Inc()
		start := time.Now()

		resp, err := fn(ctx, req)
		if err != nil {
			failures.WithLabelValues(svc).Inc()
			logger.Error("request failed", zap.String("method", req.HTTPMethod), zap.Error(err))
			return resp, err
		}
		responses.WithLabelValues(svc, strconv.Itoa(resp.StatusCode)).Inc()
		logger.Debug("request served",
			zap.String("method", req.HTTPMethod),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)),
		)
		_ = timer.LogTracingInfo(ctx, logger)
		return resp, nil
	}
}
