package store

import (
	"context"
	"sync"
)

// Memory is an in-process credential store used by tests and for running
// the service without a database. Create holds the lock across the
// uniqueness check and the insert, so two concurrent registrations of the
// same email cannot both pass.
type Memory struct {
	mu      sync.Mutex
	nextID  uint
	byEmail map[string]*User
}

func NewMemory() *Memory {
	return &Memory{byEmail: make(map[string]*User)}
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[u.Email]; exists {
		return ErrDuplicateEmail
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.byEmail[u.Email] = &cp
	return nil
}

// Len reports the number of stored credentials.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byEmail)
}
