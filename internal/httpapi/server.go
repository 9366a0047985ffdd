package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxkey/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() types.ModelsResponse
	Model(id string) (types.Model, error)
	Status() types.StatusResponse
	Download(id string) error
	Cancel(id string) error
	Retry(id string) error
	Select(id string) (types.SelectResponse, error)
	Delete(ctx context.Context, id string) error
	Ready() bool
	// Subscribe streams lifecycle events until the returned func is called.
	Subscribe() (<-chan types.Event, func())
}

// sseHeartbeat keeps idle event streams alive through proxies.
var sseHeartbeat = 15 * time.Second

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(accessLog)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ListModels())
	})

	r.Route("/models/{id}", func(r chi.Router) {
		r.Use(limitBody)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			m, err := svc.Model(chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, m)
		})
		r.Post("/download", actionHandler(svc, svc.Download))
		r.Post("/cancel", actionHandler(svc, svc.Cancel))
		r.Post("/retry", actionHandler(svc, svc.Retry))
		r.Post("/select", func(w http.ResponseWriter, r *http.Request) {
			res, err := svc.Select(chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})
		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			// Join server base context with request context so shutdown cancels the wait too.
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			if err := svc.Delete(ctx, chi.URLParam(r, "id")); err != nil {
				writeServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, svc)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no model ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// actionHandler runs a model-scoped command and answers 202 with the
// model's resulting view.
func actionHandler(svc Service, op func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := op(id); err != nil {
			writeServiceError(w, err)
			return
		}
		m, err := svc.Model(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, m)
	}
}

// limitBody caps and drains request bodies; commands take no payload.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.Method != http.MethodGet {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if _, err := io.Copy(io.Discard, r.Body); err != nil {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// streamEvents writes lifecycle events as Server-Sent Events until the
// client disconnects or the server shuts down.
func streamEvents(w http.ResponseWriter, r *http.Request, svc Service) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, unsubscribe := svc.Subscribe()
	defer unsubscribe()
	sseSubscribers.Inc()
	defer sseSubscribers.Dec()

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				zlog.Error().Err(err).Str("event", ev.Name).Msg("encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
