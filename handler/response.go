package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// BadRequestError is a client error that is reported back with status 400.
type BadRequestError struct {
	Reason string
}

func (e BadRequestError) Error() string {
	return e.Reason
}

func headers() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin": "*",
		"Content-Type":                "application/json",
	}
}

// JSON encodes v as the body of a response with status code.
func JSON(status int, v interface{}) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers(),
		Body:       string(body),
	}, nil
}

// Error reports err as {"error": ...}. A BadRequestError maps to 400; anything
// else maps to status.
func Error(status int, err error) events.APIGatewayProxyResponse {
	var bad BadRequestError
	if errors.As(err, &bad) {
		status = http.StatusBadRequest
	}
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers(),
		Body:       string(body),
	}
}
