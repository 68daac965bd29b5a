package database

import (
	"context"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

// Write records values in the history. Unset values are not recorded.
func (db *Database) Write(ctx context.Context, data []model.Property) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, record := range data {
		if record.Value == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO property_history (time_stamp, path, value, unit_of_measurement)
			VALUES ($1, $2, $3, $4)
		`, record.TimeStamp, record.Path, record.Value, record.Unit); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) RegisterProperty(ctx context.Context, p state.Property) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO property (path, name, type, unit, role, writable)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE
		SET name = EXCLUDED.name, type = EXCLUDED.type, unit = EXCLUDED.unit,
		    role = EXCLUDED.role, writable = EXCLUDED.writable;`,
		p.Path, p.Name, p.Type.String(), p.Unit, p.Role, p.Write)
	return err
}
