package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forgebench/scheduler/internal/api"
	apiMiddleware "github.com/forgebench/scheduler/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	jobHandler := api.NewJobHandler(app.queue)
	queueHandler := api.NewQueueHandler(app.queue, app.pool)

	r.Route("/api", func(r chi.Router) {
		// Bearer auth is enabled only when a JWT secret is configured.
		if app.config.Auth.JWTSecret != "" {
			authMiddleware := apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)
			r.Use(authMiddleware.Authenticate)
		}

		// Job submission and results
		r.Post("/jobs", jobHandler.EnqueueJob)
		r.Post("/jobs/batch", jobHandler.EnqueueBatch)
		r.Get("/jobs/{id}/result", jobHandler.GetResult)

		// Queue inspection and administration
		r.Get("/queue/stats", queueHandler.Stats)
		r.Get("/queue/dead-letter", queueHandler.PeekDeadLetter)
		r.Post("/queue/dead-letter/requeue", queueHandler.RequeueDeadLetter)
		r.Delete("/queue", queueHandler.Clear)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
