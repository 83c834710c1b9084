// Package common holds the side servers every long-running binary exposes:
// metrics, health and pprof, each on its own port.
package common

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type PrometheusArgs struct {
	MetricsPort uint `arg:"--metrics-port,env:METRICS_PORT" default:"2112"`
}

type HealthCheckArgs struct {
	HealthPort uint `arg:"--health-port,env:HEALTH_PORT" default:"8082"`
}

type PprofArgs struct {
	PprofPort uint `arg:"--pprof-port,env:PPROF_PORT" default:"6060"`
}

func MetricsRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	return router
}

// NewHealthHandler serves /live and /ready. The process is ready once every
// readiness check passes; checks run on each /ready request.
func NewHealthHandler(readiness map[string]healthcheck.Check) healthcheck.Handler {
	health := healthcheck.NewHandler()
	for name, check := range readiness {
		health.AddReadinessCheck(name, check)
	}
	return health
}

func StartPromMetricsServer(port uint) {
	serve("metrics", port, MetricsRouter())
}

func StartHealthCheckServer(port uint, health http.Handler) {
	serve("health check", port, health)
}

// StartPprofServer serves the pprof endpoints registered on the default mux.
// Ref: https://pkg.go.dev/net/http/pprof
func StartPprofServer(port uint) {
	serve("pprof", port, http.DefaultServeMux)
}

func serve(name string, port uint, h http.Handler) {
	go func() {
		err := http.ListenAndServe(fmt.Sprintf(":%d", port), h)
		if err != nil && err != http.ErrServerClosed {
			zap.L().Error(name+" server stopped unexpectedly", zap.Uint("port", port), zap.Error(err))
		}
	}()
}
