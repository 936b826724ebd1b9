package repository

import (
	"context"
	"errors"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

// ErrRegistryCorrupt is returned when the store does not hold exactly one
// controlling group record.
var ErrRegistryCorrupt = errors.New("registry corrupt: expected exactly one controlling group record")

// RegistryRepository defines the persistence contract of the group registry
type RegistryRepository interface {
	// Load fetches the sole controlling group record
	Load(ctx context.Context) (*models.ControllingGroup, error)
	// Exists reports whether the controlling group record has been created
	Exists(ctx context.Context) (bool, error)
	// Save overwrites the whole controlling group record
	Save(ctx context.Context, group *models.ControllingGroup) error
}
