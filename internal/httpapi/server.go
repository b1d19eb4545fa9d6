package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"comfyd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Run(ctx context.Context, req types.JobRequest) (types.JobResult, error)
	Workflows() []string
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Post("/v1/jobs", handleSubmit(svc))

	r.Get("/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.WorkflowsResponse{Workflows: svc.Workflows()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// handleSubmit runs one job synchronously and writes the result envelope.
// A FAILED envelope is still a full JSON body; the error kind only selects
// the HTTP status code.
func handleSubmit(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.JobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// An oversized body also lands here; 400 avoids leaking limits.
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		workflow := strings.TrimSpace(req.WorkflowName)
		if workflow == "" {
			workflow = "custom"
		}
		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Str("path", r.URL.Path).Str("workflow", workflow)
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("job start")
			} else {
				log.Printf("job start path=%s workflow=%s", r.URL.Path, workflow)
			}
		}

		// Join server base context with request context so shutdown cancels work too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		res, err := svc.Run(joinedCtx, req)
		status := http.StatusOK
		if err != nil {
			// If context was canceled (client disconnect), just return.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status = statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("job_slot")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if encErr := json.NewEncoder(w).Encode(res); encErr != nil && lvl >= LevelError {
			if zlog != nil {
				zlog.Error().Err(encErr).Msg("encode job result")
			} else {
				log.Printf("encode job result: %v", encErr)
			}
		}
		logJobEnd(r, lvl, status, workflow, start, err)
	}
}

func logJobEnd(r *http.Request, lvl LogLevel, status int, workflow string, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Int("status", status).Str("workflow", workflow).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("job end")
		return
	}
	if err != nil {
		log.Printf("job end status=%d workflow=%s dur=%s err=%v", status, workflow, time.Since(start), err)
		return
	}
	log.Printf("job end status=%d workflow=%s dur=%s", status, workflow, time.Since(start))
}
