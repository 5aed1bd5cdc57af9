package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/audit"
	"campusattend/internal/challenge"
	"campusattend/internal/checkin"
	"campusattend/internal/config"
	"campusattend/internal/geo"
	"campusattend/internal/location"
	"campusattend/internal/logging"
	"campusattend/internal/queue"
)

func memoryConfig() config.App {
	return config.App{
		JWTSigningKey:    "k",
		AccessTTL:        time.Minute,
		QueueBackend:     "memory",
		RateLimitPerMin:  60,
		StorageBackend:   "memory",
		ChallengeBackend: "memory",
		ChallengeTTL:     time.Minute,
		CampusTimezone:   "Africa/Lagos",
		WebAuthnRPID:     "attend.example.edu",
	}
}

func TestNewMemoryWiring(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &queue.InMemory{}, a.Queue)
	assert.IsType(t, audit.LogRecorder{}, a.AuditRecorder())
	assert.Empty(t, a.Health(context.Background()))

	ctx := context.Background()
	loc, err := a.Locations.Create(ctx, location.Input{Name: "Library", Latitude: 6.5244, Longitude: 3.3792, RadiusMeters: 50})
	require.NoError(t, err)
	_, err = a.Credentials.Register(ctx, "stu-1", []byte{1, 2, 3}, []byte{4}, 0)
	require.NoError(t, err)

	out, err := a.Engine.CheckIn(ctx, checkin.Request{StudentID: "stu-1", LocationID: loc.ID, Latitude: 6.5244, Longitude: 3.3792})
	require.NoError(t, err)
	assert.Equal(t, checkin.ResultCheckedIn, out.Result)
	assert.Equal(t, geo.MustPoint(6.5244, 3.3792), out.Entry.Coordinates)

	// The decision was published for the audit consumer.
	msgs, err := a.Queue.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		assert.Equal(t, audit.MessageType, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("no audit event published")
	}
}

func TestNewRedisWiring(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.QueueBackend = "redis"
	cfg.ChallengeBackend = "redis"
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, logging.Discard(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &queue.RedisQueue{}, a.Queue)
	assert.Equal(t, map[string]bool{"redis": true}, a.Health(context.Background()))
	assert.Nil(t, a.Stores.Sweeper())

	ch, err := a.Challenges.Issue(context.Background(), "stu-1", "authentication")
	require.NoError(t, err)
	assert.True(t, mr.Exists("campusattend:challenge:authentication:stu-1"))
	assert.Len(t, ch.Value, 32)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageBackend = "sqlite"
	_, err := New(context.Background(), cfg, logging.Discard(), nil)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.WebAuthnRPOrigins = []string{"not a url"}
	_, err = New(context.Background(), cfg, logging.Discard(), nil)
	assert.Error(t, err)
}

func TestSweepChallengesInMemory(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.ChallengeSweepSchedule = "@every 1h"
	a, err := New(ctx, cfg, logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	now := time.Now()
	require.NoError(t, a.Stores.Challenges.Put(ctx, challenge.Challenge{
		Principal: "stu-1", Purpose: challenge.PurposeAuthentication, Value: []byte{1},
		IssuedAt: now.Add(-2 * time.Minute), ExpiresAt: now.Add(-time.Minute),
	}))
	_, err = a.Challenges.Issue(ctx, "stu-2", challenge.PurposeRegistration)
	require.NoError(t, err)

	n, err := a.SweepChallenges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.ChallengesSwept))

	c, err := a.ScheduleSweep(ctx)
	require.NoError(t, err)
	require.NotNil(t, c)
	c.Stop()

	a.Config.ChallengeSweepSchedule = "every so often"
	_, err = a.ScheduleSweep(ctx)
	assert.Error(t, err)
}

func TestRedisChallengesNeedNoSweep(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.ChallengeBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	a, err := New(context.Background(), cfg, logging.Discard(), nil)
	require.NoError(t, err)
	defer a.Close()

	c, err := a.ScheduleSweep(context.Background())
	require.NoError(t, err)
	assert.Nil(t, c)
	n, err := a.SweepChallenges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewSeedsDefaultLocations(t *testing.T) {
	cfg := memoryConfig()
	cfg.SeedLocations = true
	a, err := New(context.Background(), cfg, logging.Discard(), nil)
	require.NoError(t, err)
	defer a.Close()

	locs, err := a.Locations.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, len(location.DefaultSites))
	assert.Equal(t, "Hardware Lab", locs[0].Name)
}
