// Package challenge issues single-use random challenges bound to a
// principal and a ceremony purpose.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"campusattend/internal/apperr"
	"campusattend/internal/clock"
)

type Purpose string

const (
	PurposeRegistration   Purpose = "registration"
	PurposeAuthentication Purpose = "authentication"
)

func (p Purpose) Valid() bool {
	return p == PurposeRegistration || p == PurposeAuthentication
}

const (
	// Size is the number of random bytes in a challenge.
	Size       = 32
	DefaultTTL = 5 * time.Minute
)

type Challenge struct {
	Principal string    `json:"principal"`
	Purpose   Purpose   `json:"purpose"`
	Value     []byte    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Encoded is the base64url form WebAuthn clients echo back in clientDataJSON.
func (c Challenge) Encoded() string {
	return base64.RawURLEncoding.EncodeToString(c.Value)
}

func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Store keeps at most one challenge per (principal, purpose). Put replaces
// any existing challenge. Take removes and returns the challenge in one
// atomic step; found is false when nothing was stored.
type Store interface {
	Put(ctx context.Context, c Challenge) error
	Take(ctx context.Context, principal string, purpose Purpose) (c Challenge, found bool, err error)
}

type Ledger struct {
	store   Store
	clock   clock.Clock
	ttl     time.Duration
	entropy io.Reader
}

func NewLedger(store Store, clk clock.Clock, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{store: store, clock: clk, ttl: ttl, entropy: rand.Reader}
}

func (l *Ledger) TTL() time.Duration { return l.ttl }

// Issue creates a fresh challenge for the pair, invalidating any earlier
// unconsumed one.
func (l *Ledger) Issue(ctx context.Context, principal string, purpose Purpose) (Challenge, error) {
	if err := checkKey(principal, purpose); err != nil {
		return Challenge{}, err
	}
	value := make([]byte, Size)
	if _, err := io.ReadFull(l.entropy, value); err != nil {
		return Challenge{}, apperr.Internal("generate challenge", err)
	}
	now := l.clock.Now().UTC()
	c := Challenge{
		Principal: principal,
		Purpose:   purpose,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.store.Put(ctx, c); err != nil {
		return Challenge{}, errors.Wrap(err, "store challenge")
	}
	return c, nil
}

// Consume takes the live challenge for the pair. The stored challenge is
// gone afterwards whether or not it had expired.
func (l *Ledger) Consume(ctx context.Context, principal string, purpose Purpose) (Challenge, error) {
	if err := checkKey(principal, purpose); err != nil {
		return Challenge{}, err
	}
	c, found, err := l.store.Take(ctx, principal, purpose)
	if err != nil {
		return Challenge{}, errors.Wrap(err, "take challenge")
	}
	if !found {
		return Challenge{}, apperr.Newf(apperr.CodeNoActiveChallenge, "no active %s challenge", purpose)
	}
	if c.Expired(l.clock.Now()) {
		return Challenge{}, apperr.Newf(apperr.CodeExpired, "%s challenge expired at %s", purpose, c.ExpiresAt.Format(time.RFC3339))
	}
	return c, nil
}

func checkKey(principal string, purpose Purpose) error {
	if strings.TrimSpace(principal) == "" {
		return apperr.InvalidInput("challenge principal is required")
	}
	if !purpose.Valid() {
		return apperr.Newf(apperr.CodeInvalidInput, "unknown challenge purpose %q", purpose)
	}
	return nil
}

// Sweeper is implemented by stores that do not expire entries on their own.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}
