package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"imagegate/internal/handlers"
	"imagegate/internal/metrics"
	"imagegate/internal/middleware"
)

// SetupRouter mounts the image routes plus health and metrics endpoints.
// requestTimeout should exceed the compute timeout so the resolver, not the
// middleware, decides what a slow transform returns.
func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, imageHandler *handlers.ImageHandler, requestTimeout time.Duration) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())

	// images: GET and HEAD only, everything else is 405
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/*", imageHandler.ServeImage)
		r.Head("/*", imageHandler.ServeImage)
	})
}
