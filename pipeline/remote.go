package pipeline

import (
	"context"
	"fmt"

	"hfserverless/sagemaker"

	"github.com/samber/lo"
)

type textClassifier interface {
	ClassifyText(ctx context.Context, text string) ([]sagemaker.Label, error)
}

var _ textClassifier = sagemaker.SMClient{}

// Remote classifies with a model hosted on a SageMaker endpoint.
type Remote struct {
	client textClassifier
}

func NewRemote(client textClassifier) Remote {
	return Remote{client: client}
}

func (r Remote) Classify(ctx context.Context, text string) ([]Prediction, error) {
	labels, err := r.client.ClassifyText(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("endpoint returned no labels")
	}
	return rank(lo.Map(labels, func(l sagemaker.Label, _ int) Prediction {
		return Prediction{Label: l.Label, Score: l.Score}
	})), nil
}
