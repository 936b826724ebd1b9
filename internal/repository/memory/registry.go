// Package memory keeps the group registry in process memory. It backs the
// "memory" store driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
	"github.com/Kerhoff/AnnoyBoT/internal/repository"
)

// RegistryRepository is an in-memory repository.RegistryRepository
type RegistryRepository struct {
	mu     sync.Mutex
	record *models.ControllingGroupRecord
	saves  int
}

// NewRegistryRepository creates an empty in-memory registry
func NewRegistryRepository() *RegistryRepository {
	return &RegistryRepository{}
}

var _ repository.RegistryRepository = (*RegistryRepository)(nil)

func (r *RegistryRepository) Load(ctx context.Context) (*models.ControllingGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.record == nil {
		return nil, fmt.Errorf("%w: found 0", repository.ErrRegistryCorrupt)
	}
	return r.record.ControllingGroup(), nil
}

func (r *RegistryRepository) Exists(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.record != nil, nil
}

func (r *RegistryRepository) Save(ctx context.Context, group *models.ControllingGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := group.Record()
	r.record = &rec
	r.saves++
	return nil
}

// Saves returns how many times Save has been called
func (r *RegistryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.saves
}
