// Package app wires configuration, storage and the attendance core into
// the objects the binaries run.
package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"campusattend/internal/attendance"
	"campusattend/internal/audit"
	"campusattend/internal/challenge"
	"campusattend/internal/checkin"
	"campusattend/internal/clock"
	"campusattend/internal/config"
	"campusattend/internal/credential"
	"campusattend/internal/location"
	"campusattend/internal/metrics"
	"campusattend/internal/passkey"
	"campusattend/internal/queue"
	"campusattend/internal/store"
)

const auditQueueKey = "campusattend:audit"

type App struct {
	Config  config.App
	Log     logrus.FieldLogger
	Clock   clock.Clock
	Zone    *time.Location
	Stores  *store.Stores
	Metrics *metrics.Metrics
	Queue   queue.Queue

	Locations   *location.Registry
	Credentials *credential.Store
	Ledger      *attendance.Ledger
	Challenges  *challenge.Ledger
	Enroller    *passkey.Enroller
	Verifier    *passkey.Verifier
	Engine      *checkin.Engine
}

// New validates cfg, opens the configured stores and builds the core.
// reg may be nil when the process exports no metrics.
func New(ctx context.Context, cfg config.App, log logrus.FieldLogger, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	zone, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	pk := passkey.Config{
		RPID:             cfg.WebAuthnRPID,
		RPDisplayName:    cfg.WebAuthnRPName,
		RPOrigins:        cfg.WebAuthnRPOrigins,
		UserVerification: cfg.WebAuthnUserVerification,
	}
	pk.SetDefaults()
	if err := pk.Validate(); err != nil {
		return nil, err
	}

	stores, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Log:    log,
		Clock:  clock.Real{},
		Zone:   zone,
		Stores: stores,
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.Metrics = metrics.New(reg)

	if cfg.QueueBackend == "redis" {
		a.Queue = queue.NewRedisQueue(stores.Redis.Client, auditQueueKey, log)
	} else {
		a.Queue = queue.NewInMemory(256)
	}

	a.Locations = location.NewRegistry(stores.Locations, a.Clock)
	a.Credentials = credential.NewStore(stores.Credentials, a.Clock)
	a.Ledger = attendance.NewLedger(stores.Attendance, a.Clock, zone)
	a.Challenges = challenge.NewLedger(stores.Challenges, a.Clock, cfg.ChallengeTTL)
	a.Enroller = passkey.NewEnroller(pk, a.Credentials, a.Challenges)
	a.Verifier = passkey.NewVerifier(pk, a.Credentials, a.Challenges)
	a.Engine = checkin.NewEngine(checkin.Deps{
		Locations:        a.Locations,
		Credentials:      a.Credentials,
		Ledger:           a.Ledger,
		Verifier:         a.Verifier,
		Tx:               stores.Tx,
		Clock:            a.Clock,
		Zone:             zone,
		Metrics:          a.Metrics,
		Audit:            audit.NewPublisher(a.Queue),
		Log:              log,
		RequireAssertion: cfg.RequireAssertion,
	})

	if cfg.SeedLocations {
		created, err := a.Locations.Seed(ctx, location.DefaultSites)
		if err != nil {
			a.Close()
			return nil, err
		}
		for _, l := range created {
			log.WithFields(logrus.Fields{"location_id": l.ID, "name": l.Name}).Info("seeded location")
		}
	}
	return a, nil
}

// AuditRecorder appends to Postgres when it is configured and logs
// otherwise.
func (a *App) AuditRecorder() audit.Recorder {
	if a.Stores.DB != nil {
		return audit.NewPostgresRecorder(a.Stores.DB.Client)
	}
	return audit.LogRecorder{Log: a.Log}
}

// Health reports the reachability of each configured backend.
func (a *App) Health(ctx context.Context) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	checks := map[string]bool{}
	if a.Stores.DB != nil {
		checks["db"] = a.Stores.DB.Healthy(ctx)
	}
	if a.Stores.Redis != nil {
		checks["redis"] = a.Stores.Redis.Healthy(ctx)
	}
	return checks
}

// SweepChallenges removes challenges that have expired by now. It is a
// no-op for stores that expire entries themselves.
func (a *App) SweepChallenges(ctx context.Context) (int64, error) {
	sw := a.Stores.Sweeper()
	if sw == nil {
		return 0, nil
	}
	n, err := sw.Sweep(ctx, a.Clock.Now())
	if err != nil {
		return 0, err
	}
	a.Metrics.ChallengesSwept.Add(float64(n))
	return n, nil
}

// ScheduleSweep starts SweepChallenges on the configured cron schedule.
// It returns nil when the challenge store needs no sweeping; otherwise the
// caller stops the returned scheduler.
func (a *App) ScheduleSweep(ctx context.Context) (*cron.Cron, error) {
	if a.Stores.Sweeper() == nil {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(a.Config.ChallengeSweepSchedule, func() {
		n, err := a.SweepChallenges(ctx)
		if err != nil {
			a.Log.WithError(err).Warn("challenge sweep failed")
			return
		}
		if n > 0 {
			a.Log.WithField("removed", n).Debug("expired challenges swept")
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid CHALLENGE_SWEEP_SCHEDULE")
	}
	c.Start()
	a.Log.WithField("schedule", a.Config.ChallengeSweepSchedule).Info("challenge sweep scheduled")
	return c, nil
}

func (a *App) Close() error {
	return a.Stores.Close()
}
