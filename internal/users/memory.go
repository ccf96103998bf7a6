package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/viewtube/viewtube-backend/internal/models"
)

// MemoryRepository is an in-memory Repository used by unit tests. It honors
// the same atomicity contract as the Mongo implementation: every mutation
// holds the lock across its check-and-write.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.User)}
}

func (m *MemoryRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	m.store[u.ID.Hex()] = &cp
	return u, nil
}

func (m *MemoryRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if strings.EqualFold(u.UserName, identifier) || strings.EqualFold(u.Email, identifier) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) UpdateRefreshToken(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = token
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return ErrRotateConflict
	}
	if u.RefreshToken != presented {
		return ErrRotateConflict
	}
	u.RefreshToken = next
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) ClearRefreshToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = ""
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}
