package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/mos-registry-driver/metrics"
	"go.uber.org/atomic"
)

// HTTPServerConfig contains all configuration parameters for the HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// EnablePprof enables the pprof debugging API when true.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
}

// New creates a server for handler. metricsSrv may be nil, in which case no
// metrics endpoint is served regardless of cfg.MetricsAddr.
func New(cfg *HTTPServerConfig, handler *Handler, metricsSrv *metrics.MetricsServer) *Server {
	srv := &Server{
		cfg:        cfg,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
		handler:    handler,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.getRouter(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return srv
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)

		r.Get("/blobs/*", srv.handler.HandleGetBlob)
		r.Head("/blobs/*", srv.handler.HandleHeadBlob)
		r.Put("/blobs/*", srv.handler.HandlePutBlob)
		r.Delete("/blobs/*", srv.handler.HandleDeleteBlob)

		r.Get("/stream/*", srv.handler.HandleStreamRead)
		r.Put("/stream/*", srv.handler.HandleStreamWrite)

		r.Get("/list/*", srv.handler.HandleList)

		// Health and diagnostic endpoints
		r.Get("/livez", srv.handleLivenessCheck)
		r.Get("/readyz", srv.handleReadinessCheck)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already draining"})
		return
	}

	srv.log.Info("Server marked as not ready", slog.Duration("drain", srv.cfg.DrainDuration))
	writeJSON(w, http.StatusOK, map[string]string{"status": "draining"})
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already ready"})
		return
	}

	srv.log.Info("Server marked as ready")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Handler returns the router, for use with httptest.
func (srv *Server) Handler() http.Handler {
	return srv.srv.Handler
}

func (srv *Server) RunInBackground() {
	// metrics
	if srv.metricsSrv != nil && srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	// api
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown marks the server not ready, waits out the drain period unless a
// drain already happened, then stops both servers gracefully.
func (srv *Server) Shutdown() {
	if srv.isReady.Swap(false) && srv.cfg.DrainDuration > 0 {
		srv.log.Info("Draining before shutdown", slog.Duration("drain", srv.cfg.DrainDuration))
		time.Sleep(srv.cfg.DrainDuration)
	}

	// api
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	// metrics
	if srv.metricsSrv != nil && len(srv.cfg.MetricsAddr) != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()

		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
