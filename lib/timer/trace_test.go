package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	// without a trace nothing is logged
	Mark(context.Background(), "ignored")
	assert.Nil(t, Marks(context.Background()))
	assert.NoError(t, LogTracingInfo(context.Background(), log))
	assert.Equal(t, 0, logs.Len())

	ctx := WithTracing(context.Background())
	Mark(ctx, "pipeline_loaded")
	Mark(ctx, "classified")
	assert.Equal(t, []string{"pipeline_loaded", "classified"}, Marks(ctx))
	assert.NoError(t, LogTracingInfo(ctx, log))

	entries := logs.FilterMessage("invocation trace").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Contains(t, fields, "pipeline_loaded")
	assert.Contains(t, fields, "classified")
	assert.Contains(t, fields, "total")
}

func TestLogTracingInfo_WrongValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), traceKey{}, "not a trace")
	assert.Error(t, LogTracingInfo(ctx, zap.NewNop()))
}

func TestTimer(t *testing.T) {
	tm := Start("test")
	time.Sleep(time.Millisecond)
	assert.True(t, tm.Stop() >= time.Millisecond)
}
