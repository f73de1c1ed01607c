// Package localserver serves the Lambda handler over plain HTTP for local
// development.
package localserver

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxBodyBytes = 1 << 20

// ProxyHandler is satisfied by *handler.Handler.
type ProxyHandler interface {
	Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

// NewRouter mounts every API route on h. An empty origins list allows any
// origin.
func NewRouter(h ProxyHandler, origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-Id"},
		ExposedHeaders: []string{"X-Correlation-Id", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	proxy := adapt(h)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", proxy)
		r.Post("/sessions", proxy)
		r.Get("/warehouse-config", proxy)
		r.Post("/warehouse-config", proxy)
		r.Get("/visualization", proxy)
		r.Post("/export", proxy)
		r.Get("/export/{id}", proxy)
	})
	return r
}

func adapt(h ProxyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, `{"error":"INVALID_INPUT","reason":"unreadable_body"}`, http.StatusBadRequest)
			return
		}

		resp, err := h.Handle(r.Context(), toProxyRequest(r, string(body)))
		if err != nil {
			http.Error(w, `{"error":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
			return
		}
		writeProxyResponse(w, resp)
	}
}

func toProxyRequest(r *http.Request, body string) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}
	params := map[string]string{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, k := range rctx.URLParams.Keys {
			if k != "*" {
				params[k] = rctx.URLParams.Values[i]
			}
		}
	}

	return events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               headers,
		QueryStringParameters: query,
		PathParameters:        params,
		Body:                  body,
	}
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			http.Error(w, `{"error":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
			return
		}
		body = decoded
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}
