package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const (
	PORT = 3000
)

func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.TimeoutHandler(h, timeout, `{"message": "Endpoint request timed out"}`)
	}
}

// ConcurrencyMiddleware admits at most maxConcurrentRequests at a time; the
// rest wait until admitted or until the client goes away.
func ConcurrencyMiddleware(maxConcurrentRequests int) mux.MiddlewareFunc {
	bucket := make(chan struct{}, maxConcurrentRequests)
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case bucket <- struct{}{}:
				defer func() { <-bucket }()
				h.ServeHTTP(w, r)
			case <-r.Context().Done():
				return
			}
		})
	}
}

type CORSPolicy struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
}

// CORSMiddleware answers preflight requests itself and decorates every other
// response with the allowed origin.
func CORSMiddleware(p CORSPolicy) mux.MiddlewareFunc {
	origins := strings.Join(p.AllowOrigins, ",")
	methods := strings.Join(p.AllowMethods, ",")
	headers := strings.Join(p.AllowHeaders, ",")
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origins)
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				if headers != "" {
					w.Header().Set("Access-Control-Allow-Headers", headers)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
