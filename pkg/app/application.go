package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridepool/internal/rides/handler"
	"ridepool/pkg/auth"
	"ridepool/pkg/config"
	"ridepool/pkg/contracts"
	"ridepool/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

// SweepFunc is the periodic reconciliation entry point the application's
// ticker drives.
type SweepFunc func(ctx context.Context, now time.Time) error

type closer struct {
	name  string
	close func() error
}

type Application struct {
	cfg            *config.Config
	jwt            *auth.JWTManager
	server         *http.Server
	healthHandler  http.Handler
	appHttpHandler http.Handler

	sweep         SweepFunc
	sweepInterval time.Duration
	sweepStop     chan struct{}
	sweepDone     chan struct{}

	closers []closer
}

func NewApplication(cfg *config.Config, jwt *auth.JWTManager) *Application {
	return &Application{
		cfg:       cfg,
		jwt:       jwt,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
}

// SetApp wires the route groups and builds the middleware chains.
func (a *Application) SetApp(handlers ...contracts.Handler) {
	a.setHealthHandler()
	a.setAppHandler(handlers...)
	a.setAppServer()
}

// SetSweep installs the periodic reconciliation worker.
func (a *Application) SetSweep(fn SweepFunc) {
	a.sweep = fn
	a.sweepInterval = a.cfg.SweepInterval
}

// AddCloser registers a resource to close during graceful shutdown, in
// registration order.
func (a *Application) AddCloser(name string, close func() error) {
	a.closers = append(a.closers, closer{name: name, close: close})
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	healthHandler := handler.NewHealthHandler(a.cfg.Client.Mongo, a.cfg.Log)
	healthHandler.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(handlers ...contracts.Handler) {
	appRouter := httprouter.New()
	for _, h := range handlers {
		h.RegisterRoutes(appRouter, a.jwt)
	}

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	a.startSweepWorker()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) startSweepWorker() {
	if a.sweep == nil {
		close(a.sweepDone)
		return
	}

	go func() {
		defer close(a.sweepDone)

		ticker := time.NewTicker(a.sweepInterval)
		defer ticker.Stop()

		a.cfg.Log.Info("Reconciliation sweep worker started", "interval", a.sweepInterval)
		for {
			select {
			case <-a.sweepStop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), a.sweepInterval)
				if err := a.sweep(ctx, time.Now()); err != nil {
					a.cfg.Log.Error("Reconciliation sweep failed", "error", err)
				}
				cancel()
			}
		}
	}()
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	a.cfg.Log.Info("Stopping background workers...")
	close(a.sweepStop)
	<-a.sweepDone
	a.cfg.Log.Info("Background workers stopped")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	for _, c := range a.closers {
		if err := c.close(); err != nil {
			a.cfg.Log.Error("Failed to close resource", "resource", c.name, "error", err)
		}
	}

	a.cfg.GracefulShutdown()
	a.cfg.Log.Info("Server stopped gracefully")
}
