package sagemaker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
)

type SagemakerArgs struct {
	Region string `arg:"--sagemaker-region,env:AWS_REGION,help:AWS region"`
	// EndpointName selects a hosted text-classification model instead of the local one.
	EndpointName string `arg:"--sagemaker-endpoint,env:SAGEMAKER_ENDPOINT,help:SageMaker endpoint hosting the classifier"`
	Endpoint     string `arg:"--sagemaker-runtime-endpoint,env:SAGEMAKER_RUNTIME_ENDPOINT,help:SageMaker runtime endpoint override"`
}

func (args SagemakerArgs) Enabled() bool {
	return args.EndpointName != ""
}

func NewClient(args SagemakerArgs) (SMClient, error) {
	if args.EndpointName == "" {
		return SMClient{}, fmt.Errorf("sagemaker endpoint name is not set")
	}
	config := &aws.Config{
		Region:                        aws.String(args.Region),
		CredentialsChainVerboseErrors: aws.Bool(true),
	}
	if args.Endpoint != "" {
		config.Endpoint = aws.String(args.Endpoint)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return SMClient{}, fmt.Errorf("failed to create aws session: %v", err)
	}
	return SMClient{
		args:          args,
		runtimeClient: sagemakerruntime.New(sess),
	}, nil
}

type SMClient struct {
	args          SagemakerArgs
	runtimeClient *sagemakerruntime.SageMakerRuntime
}

// Label is one (label, confidence) pair returned by a text-classification container.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type classifyRequest struct {
	Inputs     string                 `json:"inputs"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

func (smc SMClient) EndpointName() string {
	return smc.args.EndpointName
}

// ClassifyText sends text to the endpoint in the Hugging Face inference
// container format and returns every label the container reports.
func (smc SMClient) ClassifyText(ctx context.Context, text string) ([]Label, error) {
	payload, err := json.Marshal(classifyRequest{
		Inputs:     text,
		Parameters: map[string]interface{}{"top_k": nil},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}
	out, err := smc.runtimeClient.InvokeEndpointWithContext(ctx, &sagemakerruntime.InvokeEndpointInput{
		Body:         payload,
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
		EndpointName: aws.String(smc.args.EndpointName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke sagemaker endpoint: %v", err)
	}
	return parseLabels(out.Body)
}

// parseLabels accepts both `[{...}]` and the batched `[[{...}]]` shapes.
func parseLabels(body []byte) ([]Label, error) {
	var flat []Label
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}
	var nested [][]Label
	if err := json.Unmarshal(body, &nested); err != nil {
		return nil, fmt.Errorf("failed to parse response as labels: %v", err)
	}
	if len(nested) == 0 {
		return []Label{}, nil
	}
	return nested[0], nil
}
