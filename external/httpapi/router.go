package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/conversations", handler.StartConversation)
		r.Get("/conversations", handler.ListConversations)
		r.Get("/conversations/{id}", handler.GetConversation)
		r.Post("/conversations/{id}/stop", handler.StopConversation)
		r.Get("/conversations/{id}/transcript", handler.GetTranscript)
		r.Get("/conversations/{id}/live", handler.LiveTranscript)
		r.Post("/conversations/{id}/report", handler.GenerateReport)
		r.Get("/conversations/{id}/reports", handler.ListReports)
	})

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(begin),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
