// Command devserver serves the registered handlers over plain HTTP with the
// same routes the deployed REST APIs expose.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hfserverless/handler"
	"hfserverless/inference"
	httplib "hfserverless/lib/http"
	"hfserverless/lib/logger"
	"hfserverless/lib/service"
	"hfserverless/lib/tracer"
	"hfserverless/lib/utils/memory"
	"hfserverless/modelstore"
	"hfserverless/pipeline"
	"hfserverless/s3"
	"hfserverless/service/common"

	"github.com/alexflint/go-arg"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

type args struct {
	logger.LoggerArgs
	tracer.TracerArgs
	pipeline.Args
	s3.S3Args
	common.PrometheusArgs
	common.HealthCheckArgs
	common.PprofArgs
	memory.WatchdogArgs
	Port           uint `arg:"--port,env:PORT" default:"3000"`
	TimeoutSeconds int  `arg:"--timeout-seconds,env:TIMEOUT_SECONDS" default:"600"`
}

func main() {
	var flags args
	arg.MustParse(&flags)
	log, err := logger.New(flags.LoggerArgs)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	provider, err := tracer.InitProvider(ctx, flags.TracerArgs)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}
	defer provider.Shutdown(context.Background())

	if flags.CacheDir == "" {
		flags.CacheDir = modelstore.DefaultCacheDir()
	}
	fetchers := []modelstore.Fetcher{}
	if flags.ModelStoreS3Bucket != "" {
		fetchers = append(fetchers, modelstore.NewS3Fetcher(s3.NewClient(flags.S3Args), flags.ModelStoreS3Bucket, flags.ModelStoreS3Prefix))
	}
	fetchers = append(fetchers, modelstore.NewFSFetcher("bundle", inference.Bundle(), "."))
	env := handler.NewEnv(log, pipeline.NewLoader(flags.Args, log, fetchers...))
	defer env.Close()

	functions := make(map[service.Name]handler.Func)
	for _, name := range handler.Names() {
		fn, err := handler.Build(name, env)
		if err != nil {
			log.Fatal("failed to build handler", zap.String("service", name.Value()), zap.Error(err))
		}
		functions[name] = fn
	}
	srv := server{
		functions: functions,
		timeout:   time.Duration(flags.TimeoutSeconds) * time.Second,
		logger:    log,
	}

	stopWatchdog, err := memory.RunMemoryWatchdog(flags.WatchdogArgs, log)
	if err != nil {
		log.Fatal("failed to start memory watchdog", zap.Error(err))
	}
	defer stopWatchdog()

	common.StartPromMetricsServer(flags.MetricsPort)
	common.StartPprofServer(flags.PprofPort)
	common.StartHealthCheckServer(flags.HealthPort, common.NewHealthHandler(map[string]healthcheck.Check{
		"model-cache": func() error {
			return os.MkdirAll(flags.CacheDir, 0750)
		},
	}))

	if flags.Port == 0 {
		flags.Port = httplib.PORT
	}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", flags.Port),
		Handler: srv.router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	log.Info("serving handlers", zap.Uint("port", flags.Port), zap.Strings("services", srv.names()), zap.Int("timeout_seconds", flags.TimeoutSeconds))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server stopped unexpectedly", zap.Error(err))
	}
}
