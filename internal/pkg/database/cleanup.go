package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleanup removes history older than retention.
func (db *Database) Cleanup(ctx context.Context, retention time.Duration) error {
	tag, err := db.pool.Exec(ctx, "DELETE FROM property_history WHERE time_stamp < $1", time.Now().Add(-retention))
	if err != nil {
		return err
	}
	db.logger.Info("cleaned up property history", zap.Int64("rows", tag.RowsAffected()), zap.Duration("retention", retention))
	return nil
}
