package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
)

// DefaultHistoryWindow applies when a history query has no range.
const DefaultHistoryWindow = 48 * time.Hour

func (db *Database) GetProperties(ctx context.Context, path string, from, to *time.Time) (model.Properties, error) {
	if from == nil || to == nil {
		now := time.Now()
		start := now.Add(-DefaultHistoryWindow)
		from, to = &start, &now
	}
	const query = `
	SELECT id, time_stamp, unit_of_measurement, value, path
	FROM property_history
	WHERE path = $1 AND time_stamp BETWEEN $2 AND $3
	ORDER BY time_stamp DESC;
	`

	rows, err := db.pool.Query(ctx, query, path, *from, *to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProperties(rows)
}

func (db *Database) GetLatestProperties(ctx context.Context) (model.Properties, error) {
	const query = `
	SELECT DISTINCT ON (path) id, time_stamp, unit_of_measurement, value, path
	FROM property_history
	ORDER BY path, time_stamp DESC;
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProperties(rows)
}

func (db *Database) GetPropertyDefinitions(ctx context.Context) ([]model.PropertyDefinition, error) {
	rows, err := db.pool.Query(ctx, `SELECT path, name, type, unit, role, writable FROM property ORDER BY path;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []model.PropertyDefinition
	for rows.Next() {
		var d model.PropertyDefinition
		if err := rows.Scan(&d.Path, &d.Name, &d.Type, &d.Unit, &d.Role, &d.Writable); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func scanProperties(rows pgx.Rows) (model.Properties, error) {
	var properties model.Properties
	for rows.Next() {
		var property model.Property
		if err := rows.Scan(&property.Id, &property.TimeStamp, &property.Unit, &property.Value, &property.Path); err != nil {
			return nil, err
		}
		properties = append(properties, property)
	}

	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return properties, nil
		}
		return nil, err
	}

	return properties, nil
}
