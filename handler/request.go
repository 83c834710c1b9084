package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/buger/jsonparser"
)

// Body returns the raw request body, decoding it if API Gateway base64 encoded it.
func Body(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	body, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, BadRequestError{Reason: "request body is not valid base64"}
	}
	return body, nil
}

// Text extracts the required string field "text". The body must be a JSON
// object; a GET without a body may pass it as the query parameter instead.
func Text(req events.APIGatewayProxyRequest) (string, error) {
	body, err := Body(req)
	if err != nil {
		return "", err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		if req.HTTPMethod == http.MethodGet {
			if text := strings.TrimSpace(req.QueryStringParameters["text"]); text != "" {
				return req.QueryStringParameters["text"], nil
			}
		}
		return "", BadRequestError{Reason: "missing required field 'text'"}
	}
	if body[0] != '{' || !json.Valid(body) {
		return "", BadRequestError{Reason: "request body must be a JSON object"}
	}
	v, dt, _, err := jsonparser.Get(body, "text")
	if dt == jsonparser.NotExist || err == jsonparser.KeyPathNotFoundError {
		return "", BadRequestError{Reason: "missing required field 'text'"}
	}
	if err != nil {
		return "", BadRequestError{Reason: "request body must be a JSON object"}
	}
	if dt != jsonparser.String {
		return "", BadRequestError{Reason: "field 'text' must be a string"}
	}
	text, err := jsonparser.ParseString(v)
	if err != nil {
		return "", BadRequestError{Reason: "field 'text' is not a valid string"}
	}
	if strings.TrimSpace(text) == "" {
		return "", BadRequestError{Reason: "field 'text' must not be empty"}
	}
	return text, nil
}
