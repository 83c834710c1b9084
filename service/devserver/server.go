package main

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"hfserverless/handler"
	httplib "hfserverless/lib/http"
	"hfserverless/lib/service"
	"hfserverless/plan"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const stage = "local"

var proxyStatus = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "devserver_proxy_responses_total",
	Help: "Responses of the local gateway per service and status",
}, []string{"service", "status"})

type server struct {
	functions map[service.Name]handler.Func
	timeout   time.Duration
	logger    *zap.Logger
}

func (s server) names() []string {
	names := make([]string, 0, len(s.functions))
	for name := range s.functions {
		names = append(names, name.Value())
	}
	sort.Strings(names)
	return names
}

// router mirrors the deployed API surface: a root that accepts any method and
// one resource per service taking GET and POST. Each service runs one request
// at a time, like a single function instance.
func (s server) router() *mux.Router {
	cors := httplib.CORSMiddleware(httplib.CORSPolicy{
		AllowOrigins: plan.AllOrigins,
		AllowMethods: plan.AllMethods,
		AllowHeaders: []string{"Content-Type", "X-Amz-Date", "Authorization", "X-Api-Key", "X-Amz-Security-Token", "X-Amz-User-Agent"},
	})
	router := mux.NewRouter()
	methods := append([]string{http.MethodOptions}, plan.ServiceMethods...)
	stats := make(map[string]*serviceStats, len(s.functions))
	for _, name := range s.names() {
		stats[name] = &serviceStats{}
		name := service.Name(name)
		var h http.Handler = s.proxy(name, s.functions[name], stats[name.Value()])
		h = httplib.ConcurrencyMiddleware(1)(h)
		h = httplib.TimeoutMiddleware(s.timeout)(h)
		router.Handle("/"+name.Value(), cors(h)).Methods(methods...)
	}
	router.Handle("/", cors(s.listing(stats)))
	return router
}

type serviceListing struct {
	Services []string                 `json:"services"`
	Stats    map[string]statsSnapshot `json:"stats"`
}

func (s server) listing(stats map[string]*serviceStats) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := serviceListing{Services: s.names(), Stats: make(map[string]statsSnapshot, len(stats))}
		for name, st := range stats {
			body.Stats[name] = st.snapshot()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
}

func (s server) proxy(name service.Name, fn handler.Func, stats *serviceStats) http.Handler {
	logger := s.logger.With(zap.String("service", name.Value()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats.Requests.Inc()
		stats.InFlight.Inc()
		defer stats.InFlight.Dec()
		req, err := toProxyRequest(r, name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			logger.Error("function error", zap.String("request_id", req.RequestContext.RequestID), zap.Error(err))
			stats.Failures.Inc()
			proxyStatus.WithLabelValues(name.Value(), strconv.Itoa(http.StatusBadGateway)).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"message": "Internal server error"}`)
			return
		}
		if err := writeProxyResponse(w, resp); err != nil {
			logger.Warn("failed to write response", zap.Error(err))
		}
		proxyStatus.WithLabelValues(name.Value(), strconv.Itoa(status(resp))).Inc()
	})
}

func toProxyRequest(r *http.Request, name service.Name) (events.APIGatewayProxyRequest, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}
	req := events.APIGatewayProxyRequest{
		Resource:                        "/" + name.Value(),
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:    uuid.NewString(),
			Stage:        stage,
			ResourcePath: "/" + name.Value(),
			HTTPMethod:   r.Method,
			Path:         "/" + stage + r.URL.Path,
		},
	}
	for k, v := range r.Header {
		req.MultiValueHeaders[k] = v
		req.Headers[k] = v[len(v)-1]
	}
	for k, v := range r.URL.Query() {
		req.MultiValueQueryStringParameters[k] = v
		req.QueryStringParameters[k] = v[len(v)-1]
	}
	if utf8.Valid(body) {
		req.Body = string(body)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}
	return req, nil
}

func status(resp events.APIGatewayProxyResponse) int {
	if resp.StatusCode == 0 {
		return http.StatusOK
	}
	return resp.StatusCode
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) error {
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			return err
		}
		body = decoded
	}
	w.WriteHeader(status(resp))
	_, err := w.Write(body)
	return err
}
