// Package server exposes assessments over an HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/org-posture/internal/server/middleware"
)

// Config configures the WebAPI.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// WebAPI is the HTTP server.
type WebAPI struct {
	router  *chi.Mux
	logger  *zerolog.Logger
	server  *http.Server
	tracker *RunTracker
	timeout time.Duration
}

// ConfigureRouter mounts every route on a new chi router.
func ConfigureRouter(logger zerolog.Logger, h *Handler) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(middleware.Logger(&logger))
	router.Use(chimw.Recoverer)

	router.Get("/healthz", h.Health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/assessments", h.StartAssessment)
		r.Get("/assessments", h.ListAssessments)
		r.Get("/assessments/{id}", h.GetAssessment)
		r.Get("/assessments/{id}/findings", h.GetFindings)
		r.Get("/accounts", h.ListAccounts)
	})
	return router
}

// NewWebAPI returns a server for h. tracker is cancelled and drained on
// shutdown.
func NewWebAPI(logger zerolog.Logger, config Config, h *Handler, tracker *RunTracker) *WebAPI {
	router := ConfigureRouter(logger, h)
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebAPI{
		router:  router,
		logger:  &logger,
		tracker: tracker,
		timeout: timeout,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		sctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		err := w.server.Shutdown(sctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if w.tracker != nil {
			w.tracker.CancelAll()
			w.tracker.Wait()
		}
		return err
	}
}
