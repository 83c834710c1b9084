// Command lambda is the entry point of every inference container image. The
// image CMD names the handler to serve.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"hfserverless/handler"
	"hfserverless/inference"
	"hfserverless/lib/logger"
	"hfserverless/lib/service"
	"hfserverless/lib/tracer"
	"hfserverless/modelstore"
	"hfserverless/pipeline"
	"hfserverless/s3"

	"github.com/alexflint/go-arg"
	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

type args struct {
	logger.LoggerArgs
	tracer.TracerArgs
	pipeline.Args
	s3.S3Args
	Handler string `arg:"positional" help:"handler to serve, defaults to $_HANDLER"`
}

func fetchers(flags args, log *zap.Logger) []modelstore.Fetcher {
	fs := make([]modelstore.Fetcher, 0, 2)
	if flags.ModelStoreS3Bucket != "" {
		fs = append(fs, modelstore.NewS3Fetcher(s3.NewClient(flags.S3Args), flags.ModelStoreS3Bucket, flags.ModelStoreS3Prefix))
	}
	fs = append(fs, modelstore.NewFSFetcher("bundle", inference.Bundle(), "."))
	for _, f := range fs {
		log.Debug("model source", zap.String("name", f.Name()))
	}
	return fs
}

func main() {
	var flags args
	arg.MustParse(&flags)
	if flags.Handler == "" {
		flags.Handler = os.Getenv("_HANDLER")
	}

	log, err := logger.New(flags.LoggerArgs)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	provider, err := tracer.InitProvider(context.Background(), flags.TracerArgs)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}

	name := service.Name(flags.Handler)
	loader := pipeline.NewLoader(flags.Args, log, fetchers(flags, log)...)
	env := handler.NewEnv(log, loader)
	fn, err := handler.Build(name, env)
	if err != nil {
		log.Fatal("failed to build handler", zap.String("handler", flags.Handler), zap.Strings("registered", names()), zap.Error(err))
	}
	log.Info("serving handler", zap.String("handler", flags.Handler), zap.String("cache_dir", flags.CacheDir))

	serve := func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		// the instance may be frozen as soon as the response is returned
		defer func() {
			if err := provider.Flush(ctx); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
		return fn(ctx, req)
	}
	awslambda.StartWithOptions(serve, awslambda.WithEnableSIGTERM(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		if err := env.Close(); err != nil {
			log.Warn("failed to close handler", zap.Error(err))
		}
		if err := provider.Shutdown(ctx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
		_ = log.Sync()
	}))
}

func names() []string {
	registered := handler.Names()
	out := make([]string, len(registered))
	for i, n := range registered {
		out[i] = n.Value()
	}
	return out
}
