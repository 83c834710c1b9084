package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"hfserverless/lib/service"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func echoFactory(env *Env) (Func, error) {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		text, err := Text(req)
		if err != nil {
			return Error(http.StatusInternalServerError, err), nil
		}
		if text == "boom" {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("exploded")
		}
		return JSON(http.StatusOK, map[string]string{"text": text})
	}, nil
}

func TestRegistry(t *testing.T) {
	name := service.Name("echo")
	require.NoError(t, Register(name, echoFactory))
	defer unregister(name)

	assert.Error(t, Register(name, echoFactory))
	assert.Error(t, Register("1nvalid", echoFactory))
	assert.Error(t, Register("other", nil))
	assert.Panics(t, func() { MustRegister(name, echoFactory) })
	assert.Contains(t, Names(), name)

	_, err := Lookup("missing")
	assert.True(t, errors.Is(err, ErrNotRegistered))
	_, err = Build("missing", NewEnv(nil, nil))
	assert.True(t, errors.Is(err, ErrNotRegistered))
}

func TestBuild_FactoryError(t *testing.T) {
	name := service.Name("broken")
	require.NoError(t, Register(name, func(env *Env) (Func, error) {
		return nil, fmt.Errorf("no model")
	}))
	defer unregister(name)
	_, err := Build(name, NewEnv(nil, nil))
	assert.EqualError(t, err, "failed to build handler 'broken': no model")
}

func TestBuild_Instrumented(t *testing.T) {
	name := service.Name("echo-logged")
	require.NoError(t, Register(name, echoFactory))
	defer unregister(name)

	core, logs := observer.New(zap.DebugLevel)
	fn, err := Build(name, NewEnv(zap.New(core), nil))
	require.NoError(t, err)

	resp, err := fn(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: `{"text": "hi"}`})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"text": "hi"}`, resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])

	_, err = fn(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: `{"text": "boom"}`})
	assert.EqualError(t, err, "exploded")

	served := logs.FilterMessage("request served").All()
	require.Len(t, served, 1)
	assert.Equal(t, "echo-logged", served[0].ContextMap()["service"])
	assert.Len(t, logs.FilterMessage("request failed").All(), 1)
}

func TestText(t *testing.T) {
	text, err := Text(events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: `{"text": "I love this product"}`})
	require.NoError(t, err)
	assert.Equal(t, "I love this product", text)

	text, err = Text(events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: `{"text": "café \"quoted\""}`})
	require.NoError(t, err)
	assert.Equal(t, `café "quoted"`, text)

	encoded := base64.StdEncoding.EncodeToString([]byte(`{"text": "encoded"}`))
	text, err = Text(events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: encoded, IsBase64Encoded: true})
	require.NoError(t, err)
	assert.Equal(t, "encoded", text)

	text, err = Text(events.APIGatewayProxyRequest{HTTPMethod: "GET", QueryStringParameters: map[string]string{"text": "from query"}})
	require.NoError(t, err)
	assert.Equal(t, "from query", text)
}

func TestText_BadRequests(t *testing.T) {
	for _, req := range []events.APIGatewayProxyRequest{
		{HTTPMethod: "POST", Body: ""},
		{HTTPMethod: "POST", Body: "{}"},
		{HTTPMethod: "POST", Body: "not json"},
		{HTTPMethod: "POST", Body: `["text"]`},
		{HTTPMethod: "POST", Body: `{"text": 42}`},
		{HTTPMethod: "POST", Body: `{"text": null}`},
		{HTTPMethod: "POST", Body: `{"text": "   "}`},
		{HTTPMethod: "POST", Body: `{"text": "unterminated`},
		{HTTPMethod: "POST", Body: "%%%", IsBase64Encoded: true},
		{HTTPMethod: "POST", QueryStringParameters: map[string]string{"text": "query only works on GET"}},
		{HTTPMethod: "GET"},
	} {
		_, err := Text(req)
		var bad BadRequestError
		assert.True(t, errors.As(err, &bad), "%+v", req)
	}
}

func TestError(t *testing.T) {
	resp := Error(http.StatusInternalServerError, BadRequestError{Reason: "missing required field 'text'"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.JSONEq(t, `{"error": "missing required field 'text'"}`, resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])

	resp = Error(http.StatusServiceUnavailable, fmt.Errorf("wrapped: %w", BadRequestError{Reason: "x"}))
	assert.Equal(t, 400, resp.StatusCode)

	resp = Error(http.StatusServiceUnavailable, fmt.Errorf("model unavailable"))
	assert.Equal(t, 503, resp.StatusCode)
}

func TestEnv_Close(t *testing.T) {
	env := NewEnv(nil, nil)
	order := []int{}
	env.OnClose(func() error { order = append(order, 1); return fmt.Errorf("first") })
	env.OnClose(func() error { order = append(order, 2); return fmt.Errorf("second") })
	assert.EqualError(t, env.Close(), "second")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, env.Close())
}
