package handlers

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Brownie44l1/kaleo-api/internal/logger"
	"github.com/Brownie44l1/kaleo-api/internal/metrics"
)

func NewRouter(h *Handler, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware)
	r.Use(m.Middleware)
	r.Use(recoverJSON)
	r.Use(enableCORS)

	r.Get("/", h.Home)
	r.Get("/favicon.ico", h.Favicon)
	r.Get("/health", h.Health)
	r.Post("/classify", h.Classify)
	r.Post("/predict", h.Predict)
	r.Handle("/metrics", m.Handler())

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoverJSON turns a panic into the same {"error": ...} body as any other
// server-side failure.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.FromContext(r.Context()).Error("panic recovered", "panic", rec, "stack", string(debug.Stack()))
			respondError(w, fmt.Sprint(rec), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
