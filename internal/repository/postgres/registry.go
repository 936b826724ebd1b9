package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
	"github.com/Kerhoff/AnnoyBoT/internal/repository"
)

type registryRepository struct {
	db *sql.DB
}

// NewRegistryRepository creates a registry repository backed by the
// controlling_groups table
func NewRegistryRepository(db *sql.DB) repository.RegistryRepository {
	return &registryRepository{db: db}
}

func (r *registryRepository) Load(ctx context.Context) (*models.ControllingGroup, error) {
	query := `
		SELECT group_id, group_name, invite_code, waiting_for_input, user_invoked_command, receiving_groups
		FROM controlling_groups`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query controlling group: %w", err)
	}
	defer rows.Close()

	var records []models.ControllingGroupRecord
	for rows.Next() {
		var (
			rec       models.ControllingGroupRecord
			receiving []byte
		)
		if err := rows.Scan(
			&rec.GroupID,
			&rec.GroupName,
			&rec.InviteCode,
			&rec.WaitingForInput,
			&rec.UserInvokedCommand,
			&receiving,
		); err != nil {
			return nil, fmt.Errorf("failed to scan controlling group: %w", err)
		}
		if len(receiving) > 0 {
			if err := json.Unmarshal(receiving, &rec.ReceivingGroups); err != nil {
				return nil, fmt.Errorf("failed to decode receiving groups: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read controlling group: %w", err)
	}

	if len(records) != 1 {
		return nil, fmt.Errorf("%w: found %d", repository.ErrRegistryCorrupt, len(records))
	}

	return records[0].ControllingGroup(), nil
}

func (r *registryRepository) Exists(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM controlling_groups WHERE singleton)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check controlling group: %w", err)
	}
	return exists, nil
}

func (r *registryRepository) Save(ctx context.Context, group *models.ControllingGroup) error {
	query := `
		INSERT INTO controlling_groups (singleton, group_id, group_name, invite_code, waiting_for_input, user_invoked_command, receiving_groups, created_at, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6::jsonb, $7, $7)
		ON CONFLICT (singleton) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			group_name = EXCLUDED.group_name,
			invite_code = EXCLUDED.invite_code,
			waiting_for_input = EXCLUDED.waiting_for_input,
			user_invoked_command = EXCLUDED.user_invoked_command,
			receiving_groups = EXCLUDED.receiving_groups,
			updated_at = EXCLUDED.updated_at`

	rec := group.Record()
	receiving, err := json.Marshal(rec.ReceivingGroups)
	if err != nil {
		return fmt.Errorf("failed to encode receiving groups: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		rec.GroupID,
		rec.GroupName,
		rec.InviteCode,
		rec.WaitingForInput,
		rec.UserInvokedCommand,
		string(receiving),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save controlling group: %w", err)
	}

	return nil
}
