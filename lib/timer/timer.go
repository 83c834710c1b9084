package timer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var phaseDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name: "phase_duration_seconds",
	Help: "Duration of one phase of an invocation, e.g. model fetch or classification",
	Objectives: map[float64]float64{
		0.50: 0.05,
		0.90: 0.05,
		0.99: 0.01,
	},
}, []string{"phase"})

type Timer struct {
	phase string
	start time.Time
}

func Start(phase string) Timer {
	return Timer{phase: phase, start: time.Now()}
}

// Stop records the time since Start under the phase and returns it.
func (t Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	phaseDuration.WithLabelValues(t.phase).Observe(elapsed.Seconds())
	return elapsed
}
