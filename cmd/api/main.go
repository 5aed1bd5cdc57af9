package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"campusattend/internal/app"
	"campusattend/internal/audit"
	"campusattend/internal/config"
	"campusattend/internal/handler"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New("campusattend-api", cfg.LogLevel, cfg.LogFormat)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("http server failed")
	}
}

func run(cfg config.App, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	// Memory challenges live in this process, so the worker cannot sweep them.
	if cfg.ChallengeBackend == "memory" {
		sweeper, err := a.ScheduleSweep(ctx)
		if err != nil {
			return err
		}
		if sweeper != nil {
			defer sweeper.Stop()
		}
	}

	// Without a shared queue nobody else drains the audit events.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := audit.Consume(ctx, a.Queue, a.AuditRecorder(), a.Metrics, log); err != nil {
				log.WithError(err).Error("in-process audit consumer stopped")
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.Instrument(a.Metrics))
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).GinMiddleware())

	h := &handler.Handler{
		Engine:      a.Engine,
		Locations:   a.Locations,
		Ledger:      a.Ledger,
		Credentials: a.Credentials,
		Enroller:    a.Enroller,
		Verifier:    a.Verifier,
		Health:      a.Health,
		Log:         log,
		SigningKey:  cfg.JWTSigningKey,
		Issuer:      cfg.JWTIssuer,
	}
	h.Mount(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":      cfg.HTTPPort,
			"storage":   cfg.StorageBackend,
			"challenge": cfg.ChallengeBackend,
			"queue":     cfg.QueueBackend,
			"timezone":  cfg.CampusTimezone,
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	log.Info("server exited")
	return nil
}

func corsConfig(cfg config.App) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	c.MaxAge = 24 * time.Hour
	if len(cfg.CORSAllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.CORSAllowedOrigins
		c.AllowCredentials = true
	}
	return c
}
