package guest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the persistence surface guest provisioning needs.
type Repository interface {
	Create(ctx context.Context, guest *Guest) error
	GetByEmail(ctx context.Context, email string) (*Guest, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed guest repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, guest *Guest) error {
	err := r.db.WithContext(ctx).Create(guest).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailExists
	}
	return err
}

func (r *gormRepository) GetByEmail(ctx context.Context, email string) (*Guest, error) {
	var guest Guest
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&guest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &guest, nil
}

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu     sync.RWMutex
	guests map[string]Guest
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{guests: make(map[string]Guest)}
}

func (r *MemoryRepository) Create(ctx context.Context, guest *Guest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(guest.Email)
	if _, ok := r.guests[key]; ok {
		return ErrEmailExists
	}
	if guest.ID == uuid.Nil {
		guest.ID = uuid.New()
	}
	r.guests[key] = *guest
	return nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*Guest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	guest, ok := r.guests[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &guest, nil
}
