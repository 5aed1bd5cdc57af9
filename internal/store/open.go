package store

import (
	"context"

	"github.com/pkg/errors"

	"campusattend/internal/attendance"
	"campusattend/internal/challenge"
	"campusattend/internal/config"
	"campusattend/internal/credential"
	"campusattend/internal/location"
)

// Stores is the storage a process runs on, selected by configuration.
// DB and Redis are nil when no backend needs them.
type Stores struct {
	DB    *DB
	Redis *Redis

	Locations   location.Repository
	Credentials credential.Repository
	Attendance  attendance.Repository
	Challenges  challenge.Store
	Tx          Transactor
}

// Open connects the configured backends. Postgres is migrated on open.
func Open(ctx context.Context, cfg config.App) (*Stores, error) {
	s := &Stores{}
	if cfg.StorageBackend == "postgres" {
		db, err := NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, db.Client); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.DB = db
		s.Locations = location.NewPostgresRepository(db.Client)
		s.Credentials = credential.NewPostgresRepository(db.Client)
		s.Attendance = attendance.NewPostgresRepository(db.Client)
		s.Tx = NewPostgresTx(db.Client)
	} else {
		creds := credential.NewMemoryRepository()
		entries := attendance.NewMemoryRepository()
		s.Locations = location.NewMemoryRepository()
		s.Credentials = creds
		s.Attendance = entries
		s.Tx = NewMemoryTx(creds, entries)
	}

	if cfg.ChallengeBackend == "redis" || cfg.QueueBackend == "redis" {
		r, err := NewRedis(cfg.RedisAddr)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = r
	}

	switch cfg.ChallengeBackend {
	case "redis":
		s.Challenges = challenge.NewRedisStore(s.Redis.Client, "")
	case "postgres":
		if s.DB == nil {
			s.Close()
			return nil, errors.New("postgres challenge store needs STORAGE_BACKEND=postgres")
		}
		s.Challenges = challenge.NewPostgresStore(s.DB.Client)
	default:
		s.Challenges = challenge.NewMemoryStore()
	}
	return s, nil
}

// Sweeper returns the challenge store's expiry sweep, or nil when the
// backend expires entries itself.
func (s *Stores) Sweeper() challenge.Sweeper {
	sw, _ := s.Challenges.(challenge.Sweeper)
	return sw
}

func (s *Stores) Close() error {
	var first error
	if err := s.Redis.Close(); err != nil {
		first = err
	}
	if err := s.DB.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
