// Package server exposes the voice-review workflow over HTTP: the mobile
// session API, the diarization webhook, recording/speaker endpoints, and the
// health and metrics surfaces.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teangalab/beal/internal/conversation"
	"github.com/teangalab/beal/internal/diarize"
	"github.com/teangalab/beal/internal/health"
	"github.com/teangalab/beal/internal/observe"
	"github.com/teangalab/beal/internal/record"
	"github.com/teangalab/beal/internal/review"
)

const shutdownTimeout = 10 * time.Second

// Options wires the server's collaborators.
type Options struct {
	ListenAddr string
	Store      record.Store
	Manager    *conversation.Manager
	Reconciler *diarize.Reconciler
	Queue      *review.Queue
	Health     *health.Handler
	Metrics    *observe.Metrics
	Log        *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	opts   Options
	router *gin.Engine
	log    *slog.Logger
}

// New builds the router and returns a ready-to-run Server.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{opts: opts, router: router, log: opts.Log}
	router.Use(s.requestMetrics())

	api := router.Group("/api")
	{
		api.POST("/recordings/:id/diarization", s.handleDiarizationWebhook)
		api.GET("/recordings", s.handleListRecordings)
		api.GET("/review/random-recording", s.handleRandomRecording)
		api.GET("/recordings/:id", s.handleGetRecording)
		api.GET("/recordings/:id/entries", s.handleListEntries)
		api.POST("/recordings/:id/transcriptions", s.handleImportVTT)

		api.POST("/speakers/:id/merge", s.handleMergeSpeakers)
		api.GET("/speakers/:id/suggestions", s.handleMergeSuggestions)

		sess := api.Group("/session")
		{
			sess.GET("", s.handleGetSession)
			sess.POST("/input", s.handleSessionInput)
			sess.POST("/recording/:id", s.handleStartRecording)
			sess.POST("/random", s.handleSelectRandom)
			sess.POST("/confirm", s.handleConfirm)
			sess.POST("/playback", s.handlePlayback)
			sess.POST("/advance", s.handleAdvance)
			sess.POST("/reset", s.handleReset)
		}
	}

	if opts.Health != nil {
		router.GET("/healthz", gin.WrapF(opts.Health.Healthz))
		router.GET("/readyz", gin.WrapF(opts.Health.Readyz))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.opts.ListenAddr,
		Handler: s.router,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.opts.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
