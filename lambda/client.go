package lambda

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lambda"
)

type LambdaArgs struct {
	Region   string `arg:"--lambda-region,env:AWS_REGION,help:AWS region"`
	Endpoint string `arg:"--lambda-endpoint,env:LAMBDA_ENDPOINT,help:Lambda endpoint override"`
}

type Client struct {
	client *lambda.Lambda
}

func NewClient(args LambdaArgs) Client {
	config := &aws.Config{
		Region:                        aws.String(args.Region),
		CredentialsChainVerboseErrors: aws.Bool(true),
	}
	if args.Endpoint != "" {
		config.Endpoint = aws.String(args.Endpoint)
	}
	sess := session.Must(session.NewSession(config))
	return Client{
		client: lambda.New(sess),
	}
}

// FunctionError is returned when the function itself failed, as opposed to
// the invocation request.
type FunctionError struct {
	Kind    string
	Payload []byte
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function error (%s): %s", e.Kind, string(e.Payload))
}

func (c Client) Invoke(ctx context.Context, functionName string, payload []byte) ([]byte, error) {
	input := &lambda.InvokeInput{
		FunctionName: aws.String(functionName),
		Payload:      payload,
	}
	output, err := c.client.InvokeWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", functionName, err)
	}
	if output.FunctionError != nil {
		return nil, &FunctionError{Kind: aws.StringValue(output.FunctionError), Payload: output.Payload}
	}
	return output.Payload, nil
}

// InvokeProxy sends req the way API Gateway's proxy integration would and
// decodes the proxy response.
func (c Client) InvokeProxy(ctx context.Context, functionName string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var resp events.APIGatewayProxyResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("failed to marshal proxy request: %v", err)
	}
	out, err := c.Invoke(ctx, functionName, payload)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return resp, fmt.Errorf("failed to decode proxy response: %v", err)
	}
	return resp, nil
}
