package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
	"time"

	"campusattend/internal/apperr"
)

type MemoryRepository struct {
	mu        sync.RWMutex
	byStudent map[string]Credential
	owners    map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byStudent: make(map[string]Credential),
		owners:    make(map[string]string),
	}
}

func idKey(id []byte) string { return base64.RawURLEncoding.EncodeToString(id) }

func (m *MemoryRepository) Get(_ context.Context, studentID string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byStudent[studentID]
	if !ok {
		return Credential{}, unregistered(studentID)
	}
	c.CredentialID = bytes.Clone(c.CredentialID)
	c.PublicKey = bytes.Clone(c.PublicKey)
	return c, nil
}

func (m *MemoryRepository) Insert(_ context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byStudent[c.StudentID]; ok {
		return apperr.ErrAlreadyRegistered
	}
	if _, ok := m.owners[idKey(c.CredentialID)]; ok {
		return apperr.ErrDuplicateCredentialID
	}
	m.byStudent[c.StudentID] = c
	m.owners[idKey(c.CredentialID)] = c.StudentID
	return nil
}

func (m *MemoryRepository) AdvanceCounter(_ context.Context, studentID string, newCount uint32, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byStudent[studentID]
	if !ok {
		return false, unregistered(studentID)
	}
	if newCount <= c.SignCount {
		return false, nil
	}
	c.SignCount = newCount
	c.LastUsedAt = &at
	m.byStudent[studentID] = c
	return true, nil
}

func (m *MemoryRepository) Delete(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byStudent[studentID]
	if !ok {
		return unregistered(studentID)
	}
	delete(m.owners, idKey(c.CredentialID))
	delete(m.byStudent, studentID)
	return nil
}
