// Command smoke invokes a deployed inference function with the event API
// Gateway would send and checks the response.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"hfserverless/lambda"
	"hfserverless/lib/logger"
	"hfserverless/lib/service"

	"github.com/alexflint/go-arg"
	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

type args struct {
	logger.LoggerArgs
	lambda.LambdaArgs
	Function string        `arg:"--function,required,help:deployed function name (the <service>-function stack output)"`
	Service  string        `arg:"--service,env:SERVICE" default:"sentiment"`
	Text     string        `arg:"--text" default:"I love this product"`
	Method   string        `arg:"--method" default:"POST"`
	Expect   int           `arg:"--expect-status" default:"200"`
	Timeout  time.Duration `arg:"--timeout" default:"10m"`
}

func request(flags args) (events.APIGatewayProxyRequest, error) {
	name := service.Name(flags.Service)
	if err := name.Valid(); err != nil {
		return events.APIGatewayProxyRequest{}, err
	}
	req := events.APIGatewayProxyRequest{
		Resource:   "/" + name.Value(),
		Path:       "/" + name.Value(),
		HTTPMethod: flags.Method,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if flags.Method == "GET" {
		req.QueryStringParameters = map[string]string{"text": flags.Text}
		return req, nil
	}
	body, err := json.Marshal(map[string]string{"text": flags.Text})
	if err != nil {
		return req, err
	}
	req.Body = string(body)
	return req, nil
}

func main() {
	var flags args
	arg.MustParse(&flags)
	log, err := logger.New(flags.LoggerArgs)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer log.Sync()

	req, err := request(flags)
	if err != nil {
		log.Fatal("invalid request", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), flags.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := lambda.NewClient(flags.LambdaArgs).InvokeProxy(ctx, flags.Function, req)
	if err != nil {
		log.Fatal("invocation failed", zap.String("function", flags.Function), zap.Error(err))
	}
	log.Info("invocation finished",
		zap.String("function", flags.Function),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.String("cors", resp.Headers["Access-Control-Allow-Origin"]),
	)
	fmt.Println(resp.Body)
	if resp.StatusCode != flags.Expect {
		log.Error("unexpected status", zap.Int("expected", flags.Expect), zap.Int("got", resp.StatusCode))
		os.Exit(1)
	}
}
