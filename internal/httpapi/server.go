package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelkeep/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.ModelDescriptor
	Reindex() ([]types.ModelDescriptor, error)
	LoadByIndex(ctx context.Context, index, gpuLayers int) (types.ActiveInfo, error)
	LoadLast(ctx context.Context) (types.ActiveInfo, error)
	ActiveInfo() (types.ActiveInfo, error)
	ApplyParams(p types.GenParams) error
	HardwareStatus() types.HardwareStatus
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
	r.Use(MetricsMiddleware)
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
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Post("/reindex", func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.Reindex()
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	r.Post("/load/last", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		handleLoad(w, r, func() (types.ActiveInfo, error) {
			return svc.LoadLast(ctx)
		})
	})

	r.Post("/load/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		gpuLayers, ok := decodeLoadRequest(w, r)
		if !ok {
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		handleLoad(w, r, func() (types.ActiveInfo, error) {
			return svc.LoadByIndex(ctx, index, gpuLayers)
		})
	})

	r.Get("/active", func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.ActiveInfo()
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	r.Put("/params", func(w http.ResponseWriter, r *http.Request) {
		if !requireJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ParamsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if msg := validateParams(req.Params); msg != "" {
			writeJSONError(w, http.StatusBadRequest, msg)
			return
		}
		if err := svc.ApplyParams(req.Params); err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, req.Params)
	})

	r.Get("/hardware", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.HardwareStatus())
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
		w.Write([]byte("no model loaded"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	mountPersonas(r, svc)
	MountSwagger(r)

	return r
}

// handleLoad runs a load operation and writes the resulting active info,
// logging and counting the outcome.
func handleLoad(w http.ResponseWriter, r *http.Request, load func() (types.ActiveInfo, error)) {
	start := time.Now()
	lvl := requestLogLevel(r)
	info, err := load()
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		recordLoad("error", false)
		status := statusForError(err)
		writeJSONError(w, status, err.Error())
		if lvl >= LevelError && zlog != nil {
			z := zlog.Error().Int("status", status).Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Err(err).Msg("load failed")
		}
		return
	}
	recordLoad("ok", info.HardwareFallback)
	writeJSON(w, http.StatusOK, info)
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().
			Str("model", info.Descriptor.Name).
			Str("mode", string(info.Hardware.Mode)).
			Bool("fallback", info.HardwareFallback).
			Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("load ok")
	}
}

// decodeLoadRequest reads an optional LoadRequest body. An empty body means
// "use the configured defaults" (gpu_layers = -1).
func decodeLoadRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	gpuLayers := -1
	if r.ContentLength == 0 {
		return gpuLayers, true
	}
	if !requireJSON(w, r) {
		return 0, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return 0, false
	}
	if req.GPULayers != nil {
		gpuLayers = *req.GPULayers
	}
	if gpuLayers < -1 {
		writeJSONError(w, http.StatusBadRequest, "gpu_layers must be >= -1")
		return 0, false
	}
	return gpuLayers, true
}

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

func validateParams(p types.GenParams) string {
	switch {
	case p.Temperature <= 0 || p.Temperature > 2:
		return "temperature must be in (0, 2]"
	case p.TopP <= 0 || p.TopP > 1:
		return "top_p must be in (0, 1]"
	case p.TopK <= 0:
		return "top_k must be positive"
	case p.RepeatPenalty < 1:
		return "repeat_penalty must be >= 1"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
