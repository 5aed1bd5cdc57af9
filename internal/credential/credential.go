// Package credential tracks the one authenticator each student may
// register and its signature counter.
package credential

import (
	"bytes"
	"context"
	"strings"
	"time"

	"campusattend/internal/apperr"
	"campusattend/internal/clock"
)

type Credential struct {
	StudentID    string     `json:"student_id"`
	CredentialID []byte     `json:"credential_id"`
	PublicKey    []byte     `json:"-"`
	SignCount    uint32     `json:"sign_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// Repository persists credentials.
//
// Insert fails with ErrAlreadyRegistered when the student has a credential
// and ErrDuplicateCredentialID when another student owns the id.
// AdvanceCounter must be atomic: it stores newCount only if it is strictly
// greater than the stored counter and reports whether it did.
type Repository interface {
	Get(ctx context.Context, studentID string) (Credential, error)
	Insert(ctx context.Context, c Credential) error
	AdvanceCounter(ctx context.Context, studentID string, newCount uint32, at time.Time) (bool, error)
	Delete(ctx context.Context, studentID string) error
}

type Store struct {
	repo  Repository
	clock clock.Clock
}

func NewStore(repo Repository, clk clock.Clock) *Store {
	return &Store{repo: repo, clock: clk}
}

// With returns a Store bound to repo, typically a transaction-scoped one.
func (s *Store) With(repo Repository) *Store {
	return &Store{repo: repo, clock: s.clock}
}

func (s *Store) Get(ctx context.Context, studentID string) (Credential, error) {
	if strings.TrimSpace(studentID) == "" {
		return Credential{}, apperr.InvalidInput("student id is required")
	}
	return s.repo.Get(ctx, studentID)
}

// Register binds a new authenticator to studentID. signCount is the counter
// reported at registration, usually zero.
func (s *Store) Register(ctx context.Context, studentID string, credentialID, publicKey []byte, signCount uint32) (Credential, error) {
	switch {
	case strings.TrimSpace(studentID) == "":
		return Credential{}, apperr.InvalidInput("student id is required")
	case len(credentialID) == 0:
		return Credential{}, apperr.InvalidInput("credential id is required")
	case len(publicKey) == 0:
		return Credential{}, apperr.InvalidInput("public key is required")
	}
	c := Credential{
		StudentID:    studentID,
		CredentialID: bytes.Clone(credentialID),
		PublicKey:    bytes.Clone(publicKey),
		SignCount:    signCount,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// AdvanceCounter moves the student's counter forward to newCount. A value
// that does not exceed the stored counter is a replay.
func (s *Store) AdvanceCounter(ctx context.Context, studentID string, newCount uint32) error {
	ok, err := s.repo.AdvanceCounter(ctx, studentID, newCount, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	current, err := s.repo.Get(ctx, studentID)
	if err != nil {
		return err
	}
	return apperr.Newf(apperr.CodeReplayDetected,
		"signature counter %d does not exceed stored counter %d", newCount, current.SignCount)
}

// Reset removes the student's credential so a new one can be registered.
func (s *Store) Reset(ctx context.Context, studentID string) error {
	if strings.TrimSpace(studentID) == "" {
		return apperr.InvalidInput("student id is required")
	}
	return s.repo.Delete(ctx, studentID)
}

func unregistered(studentID string) error {
	return apperr.Newf(apperr.CodeUnregistered, "no credential registered for student %q", studentID)
}
