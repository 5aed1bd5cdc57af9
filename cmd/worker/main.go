package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"campusattend/internal/app"
	"campusattend/internal/audit"
	"campusattend/internal/config"
	"campusattend/internal/logging"
)

// Worker drains the audit queue and sweeps expired challenges.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New("campusattend-worker", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	// In-process backends belong to the API; this process would only see
	// its own empty copies.
	if cfg.ChallengeBackend == "memory" {
		log.Info("CHALLENGE_BACKEND=memory: the API process sweeps its own challenges")
	} else {
		sweeper, err := a.ScheduleSweep(ctx)
		if err != nil {
			log.WithError(err).Fatal("schedule challenge sweep")
		}
		if sweeper != nil {
			defer sweeper.Stop()
		}
	}

	if cfg.QueueBackend == "memory" {
		log.Info("QUEUE_BACKEND=memory: the API process records its own audit events")
		<-ctx.Done()
	} else {
		log.Info("worker started, waiting for audit events")
		if err := audit.Consume(ctx, a.Queue, a.AuditRecorder(), a.Metrics, log); err != nil {
			log.WithError(err).Error("audit consumer failed")
		}
	}
	log.Info("worker stopped")
}
