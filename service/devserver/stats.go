package main

import (
	"go.uber.org/atomic"
)

// serviceStats counts the traffic of one service since the server started.
type serviceStats struct {
	Requests atomic.Uint64
	Failures atomic.Uint64
	InFlight atomic.Int32
}

type statsSnapshot struct {
	Requests uint64 `json:"requests"`
	Failures uint64 `json:"failures"`
	InFlight int32  `json:"in_flight"`
}

func (s *serviceStats) snapshot() statsSnapshot {
	return statsSnapshot{
		Requests: s.Requests.Load(),
		Failures: s.Failures.Load(),
		InFlight: s.InFlight.Load(),
	}
}
