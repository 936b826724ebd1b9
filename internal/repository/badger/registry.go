// Package badger stores the group registry as a JSON document in an
// embedded Badger database.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
	"github.com/Kerhoff/AnnoyBoT/internal/repository"
)

const (
	registryPrefix = "registry:"
	// controllingGroupKey is the well-known key of the singleton record
	controllingGroupKey = registryPrefix + "controlling_group"
)

type registryRepository struct {
	db *badger.DB
}

// NewRegistryRepository creates a registry repository on an open Badger database
func NewRegistryRepository(db *badger.DB) repository.RegistryRepository {
	return &registryRepository{db: db}
}

// Open opens (or creates) the Badger database at path
func Open(path string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return db, nil
}

// Load scans every record under the registry prefix so that a stray
// document is reported instead of silently ignored.
func (r *registryRepository) Load(ctx context.Context) (*models.ControllingGroup, error) {
	var values [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(registryPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read controlling group: %w", err)
	}

	if len(values) != 1 {
		return nil, fmt.Errorf("%w: found %d", repository.ErrRegistryCorrupt, len(values))
	}

	var rec models.ControllingGroupRecord
	if err := json.Unmarshal(values[0], &rec); err != nil {
		return nil, fmt.Errorf("failed to decode controlling group: %w", err)
	}
	return rec.ControllingGroup(), nil
}

func (r *registryRepository) Exists(ctx context.Context) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(controllingGroupKey))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check controlling group: %w", err)
	}
}

func (r *registryRepository) Save(ctx context.Context, group *models.ControllingGroup) error {
	value, err := json.Marshal(group.Record())
	if err != nil {
		return fmt.Errorf("failed to encode controlling group: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(controllingGroupKey), value)
	})
	if err != nil {
		return fmt.Errorf("failed to save controlling group: %w", err)
	}
	return nil
}
