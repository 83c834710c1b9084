package pipeline

import (
	"context"
	"io"

	"hfserverless/lib/timer"
	"hfserverless/lib/tracer"
)

type tracedPipeline struct {
	Pipeline
	backend string
}

func traced(p Pipeline, backend string) Pipeline {
	return tracedPipeline{Pipeline: p, backend: backend}
}

func (t tracedPipeline) Classify(ctx context.Context, text string) ([]Prediction, error) {
	defer timer.Start("pipeline.classify." + t.backend).Stop()
	span := tracer.StartSpan(ctx, "pipeline.classify")
	defer span.End()
	span.SetStringAttribute("backend", t.backend)

	preds, err := t.Pipeline.Classify(span.Context(), text)
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	if len(preds) > 0 {
		span.SetStringAttribute("label", preds[0].Label)
		span.SetFloatAttribute("score", preds[0].Score)
	}
	timer.Mark(ctx, "classified")
	return preds, nil
}

func (t tracedPipeline) Close() error {
	if c, ok := t.Pipeline.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
